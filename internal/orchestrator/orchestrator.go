package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

// Default configuration values.
const (
	defaultStageTimeout = 30 * time.Second
	defaultLakeBucket   = "permitflow-lake"
)

// Fencer выдаёт fencing token'ы (реализации: fence.Fencer, fence.Local).
type Fencer interface {
	Acquire(ctx context.Context, key string) (int64, error)
}

// Orchestrator строит и выполняет pipeline'ы поверх execution backend.
type Orchestrator struct {
	backend backend.Backend
	fence   Fencer

	stageTimeout time.Duration
	chunkSize    int
	lakeBucket   string
	now          func() time.Time

	// Активные promote (lake job id)
	active map[uuid.UUID]struct{}
	mu     sync.Mutex

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Backend — execution backend. Обязателен.
	Backend backend.Backend

	// Fence — источник fencing token'ов. Обязателен.
	Fence Fencer

	// StageTimeout — ожидание одной стадии (default: 30s).
	StageTimeout time.Duration

	// ChunkSize — строк на файл выгрузки; 0 — один файл.
	ChunkSize int

	// LakeBucket — bucket data lake (для file_path в ответе ingest).
	LakeBucket string

	// Now — часы (default: time.Now). Партиция promote — дата вызова в UTC.
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}

	lakeBucket := cfg.LakeBucket
	if lakeBucket == "" {
		lakeBucket = defaultLakeBucket
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		backend:      cfg.Backend,
		fence:        cfg.Fence,
		stageTimeout: stageTimeout,
		chunkSize:    cfg.ChunkSize,
		lakeBucket:   lakeBucket,
		now:          now,
		active:       make(map[uuid.UUID]struct{}),
		logger:       logger,
	}
}

// acquire регистрирует lake job как активный. Возвращает release.
func (o *Orchestrator) acquire(jobID uuid.UUID) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.active[jobID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyActive, jobID)
	}
	o.active[jobID] = struct{}{}

	return func() {
		o.mu.Lock()
		delete(o.active, jobID)
		o.mu.Unlock()
	}, nil
}

// ActiveJobs возвращает количество выполняющихся promote.
func (o *Orchestrator) ActiveJobs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// CheckTask возвращает состояние task, ожидая финального не дольше wait.
// wait <= 0 — без ожидания.
func (o *Orchestrator) CheckTask(ctx context.Context, id uuid.UUID, wait time.Duration) (domain.Handle, error) {
	h, err := o.backend.Await(ctx, id, wait)
	if err != nil {
		return domain.Handle{}, o.readError(ctx, err, ErrTaskNotFound, "task_id", id)
	}
	return h, nil
}

// JobStatus — сводное состояние job.
type JobStatus struct {
	JobID uuid.UUID        `json:"job_id"`
	State domain.TaskState `json:"state"`
	Tasks []domain.Handle  `json:"tasks"`
}

// CheckJob возвращает сводное состояние всех tasks job'а.
func (o *Orchestrator) CheckJob(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	handles, err := o.backend.PollJob(ctx, jobID)
	if err != nil {
		return nil, o.readError(ctx, err, ErrJobNotFound, "job_id", jobID)
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	states := make([]domain.TaskState, len(handles))
	for i, h := range handles {
		states[i] = h.State
	}

	return &JobStatus{
		JobID: jobID,
		State: domain.AggregateState(states),
		Tasks: handles,
	}, nil
}

// readError сводит ошибку чтения backend'а к ошибкам оркестратора.
// Отмена ctx вызывающим возвращается как есть.
func (o *Orchestrator) readError(ctx context.Context, err, notFound error, key string, id uuid.UUID) error {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return fmt.Errorf("%w: %s", notFound, id)
	case ctx.Err() != nil:
		return fmt.Errorf("read %s: %w", id, ctx.Err())
	case errors.Is(err, backend.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		telemetry.FromContextOr(ctx, o.logger).Error("unexpected backend response", key, id, "error", err)
		return fmt.Errorf("%w: %v", ErrBackendProtocol, err)
	}
}
