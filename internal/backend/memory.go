package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/task"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

// Default configuration values.
const (
	defaultBufferSize = 64
	defaultWorkers    = 4
	defaultRetention  = time.Hour
	maxSweepInterval  = time.Minute
)

// Runner выполняет task. Ошибка — причина FAILURE.
type Runner interface {
	Run(ctx context.Context, t *domain.Task) (map[string]any, error)
}

// RunnerFunc — адаптер функции к Runner.
type RunnerFunc func(ctx context.Context, t *domain.Task) (map[string]any, error)

// Run вызывает f.
func (f RunnerFunc) Run(ctx context.Context, t *domain.Task) (map[string]any, error) {
	return f(ctx, t)
}

// MemoryConfig — конфигурация MemoryBackend.
type MemoryConfig struct {
	// BufferSize — ёмкость очереди (default: 64). При переполнении
	// Dispatch возвращает ErrUnavailable.
	BufferSize int

	// Workers — количество горутин-исполнителей (default: 4).
	Workers int

	// Retention — сколько хранить завершённые tasks (default: 1 час).
	// Более старые удаляются фоновой очисткой, Poll для них вернёт ErrNotFound.
	Retention time.Duration

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// MemoryBackend — backend в памяти процесса.
//
// Tasks кладутся в ограниченный канал и выполняются пулом горутин.
// Завершённые tasks хранятся Retention, durability нет.
type MemoryBackend struct {
	runner    Runner
	queue     chan *memoryEntry
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	// mu защищает entries, jobs и closed. Отправка в queue и закрытие
	// выполняются под mu, поэтому после Close в очередь ничего не попадёт.
	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
	jobs    map[uuid.UUID][]uuid.UUID
	closed  bool

	wg       sync.WaitGroup
	shutdown chan struct{}
}

type memoryEntry struct {
	task domain.Task
	done chan struct{}
}

// NewMemory создаёт MemoryBackend и запускает исполнителей.
func NewMemory(runner Runner, cfg MemoryConfig) *MemoryBackend {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &MemoryBackend{
		runner:    runner,
		queue:     make(chan *memoryEntry, cfg.BufferSize),
		retention: cfg.Retention,
		now:       time.Now,
		logger:    logger.With("component", "memory-backend"),
		entries:   make(map[uuid.UUID]*memoryEntry),
		jobs:      make(map[uuid.UUID][]uuid.UUID),
		shutdown:  make(chan struct{}),
	}

	b.wg.Add(cfg.Workers + 1)
	for i := 0; i < cfg.Workers; i++ {
		go b.worker()
	}
	go b.janitor(min(cfg.Retention/2, maxSweepInterval))

	return b
}

// Dispatch ставит Unit в очередь.
func (b *MemoryBackend) Dispatch(ctx context.Context, unit task.Unit, opts DispatchOptions) (domain.Handle, error) {
	t, err := newTask(unit, opts)
	if err != nil {
		return domain.Handle{}, err
	}

	entry := &memoryEntry{task: *t, done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.Handle{}, fmt.Errorf("%w: backend is closed", ErrUnavailable)
	}
	select {
	case b.queue <- entry:
	default:
		b.mu.Unlock()
		return domain.Handle{}, fmt.Errorf("%w: queue is full", ErrUnavailable)
	}
	b.entries[t.ID] = entry
	b.jobs[t.JobID] = append(b.jobs[t.JobID], t.ID)
	b.mu.Unlock()

	telemetry.TasksDispatched.WithLabelValues(string(t.Kind)).Inc()
	return t.Handle(), nil
}

// Poll возвращает текущее состояние handle.
func (b *MemoryBackend) Poll(_ context.Context, id uuid.UUID) (domain.Handle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[id]
	if !ok {
		return domain.Handle{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry.task.Handle(), nil
}

// Await ждёт финального состояния handle.
func (b *MemoryBackend) Await(ctx context.Context, id uuid.UUID, timeout time.Duration) (domain.Handle, error) {
	if timeout <= 0 {
		return b.Poll(ctx, id)
	}

	b.mu.RLock()
	entry, ok := b.entries[id]
	b.mu.RUnlock()
	if !ok {
		return domain.Handle{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-entry.done:
	case <-timer.C:
	case <-ctx.Done():
		h, _ := b.Poll(ctx, id)
		return h, ctx.Err()
	}
	return b.Poll(ctx, id)
}

// PollJob возвращает handles всех tasks job'а.
func (b *MemoryBackend) PollJob(_ context.Context, jobID uuid.UUID) ([]domain.Handle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.jobs[jobID]
	handles := make([]domain.Handle, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, b.entries[id].task.Handle())
	}
	return handles, nil
}

// Close останавливает исполнителей. Уже поставленные в очередь tasks
// выполняются до выхода.
func (b *MemoryBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.shutdown)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("memory backend shutdown timed out", "remaining", len(b.queue))
		return ctx.Err()
	}
}

func (b *MemoryBackend) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.shutdown:
			b.drain()
			return
		case entry := <-b.queue:
			b.execute(entry)
		}
	}
}

func (b *MemoryBackend) drain() {
	for {
		select {
		case entry := <-b.queue:
			b.execute(entry)
		default:
			return
		}
	}
}

func (b *MemoryBackend) execute(entry *memoryEntry) {
	b.mu.Lock()
	entry.task.MarkRunning()
	snapshot := entry.task
	b.mu.Unlock()

	outputs, err := b.runner.Run(context.Background(), &snapshot)

	b.mu.Lock()
	if err != nil {
		entry.task.MarkFailed(err.Error())
	} else {
		entry.task.MarkSucceeded(outputs)
	}
	state := entry.task.State
	b.mu.Unlock()
	close(entry.done)

	telemetry.TasksFinished.WithLabelValues(string(snapshot.Kind), string(state)).Inc()
	b.logger.Debug("task finished",
		"task_id", snapshot.ID,
		"job_id", snapshot.JobID,
		"kind", snapshot.Kind,
		"state", state,
	)
}

func (b *MemoryBackend) janitor(interval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.shutdown:
			return
		case <-ticker.C:
			if n := b.sweep(b.now().Add(-b.retention)); n > 0 {
				b.logger.Debug("finished tasks swept", "removed", n)
			}
		}
	}
}

// sweep удаляет tasks, завершённые раньше before. Возвращает их количество.
func (b *MemoryBackend) sweep(before time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed int
	for jobID, ids := range b.jobs {
		kept := ids[:0]
		for _, id := range ids {
			finished := b.entries[id].task.FinishedAt
			if finished != nil && finished.Before(before) {
				delete(b.entries, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(b.jobs, jobID)
		} else {
			b.jobs[jobID] = kept
		}
	}
	return removed
}

var _ Backend = (*MemoryBackend)(nil)
