package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/orchestrator"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
	"github.com/robfig/cron/v3"
)

// ErrNothingScheduled — не задано ни одного расписания.
var ErrNothingScheduled = errors.New("no schedules configured")

// IngestSubmitter — запуск выгрузки отчёта.
type IngestSubmitter interface {
	SubmitIngest(ctx context.Context) (*orchestrator.IngestAck, error)
}

// ResultStore — хранилище результатов tasks с очисткой завершённых.
type ResultStore interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// StaleReclaimer возвращает в очередь tasks, зависшие в RUNNING.
type StaleReclaimer interface {
	ReclaimStale(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

// Scheduler — периодическая выгрузка отчёта и очистка старых результатов.
type Scheduler struct {
	ingest     IngestSubmitter
	results    ResultStore
	retention  time.Duration
	reclaimer  StaleReclaimer
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// Config — конфигурация Scheduler.
type Config struct {
	Ingest  IngestSubmitter
	Results ResultStore

	// IngestCron — расписание выгрузки. Пусто — выгрузка только по запросу.
	IngestCron string

	// RetentionCron — расписание очистки (default: @hourly).
	RetentionCron string

	// Retention — сколько хранить завершённые tasks (default: 7 дней).
	Retention time.Duration

	// Reclaimer — возврат зависших tasks; выполняется в задании retention.
	Reclaimer StaleReclaimer

	// StaleAfter — сколько task может быть RUNNING, прежде чем его
	// вернут в PENDING (default: 1 час). Должно превышать самый долгий stage.
	StaleAfter time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт Scheduler и регистрирует задания. Задания без коллабораторов
// не регистрируются.
func New(cfg Config) (*Scheduler, error) {
	if cfg.RetentionCron == "" {
		cfg.RetentionCron = "@hourly"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Scheduler{
		ingest:     cfg.Ingest,
		results:    cfg.Results,
		retention:  cfg.Retention,
		reclaimer:  cfg.Reclaimer,
		staleAfter: cfg.StaleAfter,
		now:        cfg.Now,
		logger:     cfg.Logger,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}

	var jobs int
	if cfg.Ingest != nil && cfg.IngestCron != "" {
		if err := s.add("ingest", cfg.IngestCron, func(ctx context.Context) error {
			_, err := s.RunIngest(ctx)
			return err
		}); err != nil {
			return nil, err
		}
		jobs++
	}
	if cfg.Results != nil {
		if err := s.add("retention", cfg.RetentionCron, func(ctx context.Context) error {
			_, err := s.RunRetention(ctx)
			if s.reclaimer != nil {
				_, reclaimErr := s.RunReclaim(ctx)
				err = errors.Join(err, reclaimErr)
			}
			return err
		}); err != nil {
			return nil, err
		}
		jobs++
	}
	if jobs == 0 {
		return nil, ErrNothingScheduled
	}

	return s, nil
}

func (s *Scheduler) add(name, expr string, fn func(ctx context.Context) error) error {
	if err := ValidateCronExpr(expr); err != nil {
		return fmt.Errorf("%s schedule: %w", name, err)
	}

	_, err := s.cron.AddFunc(expr, func() {
		ctx := s.context()
		if ctx == nil {
			return
		}
		if err := fn(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%s schedule: %w", name, err)
	}

	s.logger.Info("job scheduled", "job", name, "cron", expr)
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start запускает cron. Задания выполняются с контекстом, производным от ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop останавливает cron и ждёт завершения выполняющихся заданий.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// NextRuns возвращает время следующего срабатывания каждого задания.
func (s *Scheduler) NextRuns() []time.Time {
	entries := s.cron.Entries()
	next := make([]time.Time, len(entries))
	for i, e := range entries {
		next[i] = e.Next
	}
	return next
}

// RunIngest запускает выгрузку отчёта.
func (s *Scheduler) RunIngest(ctx context.Context) (*orchestrator.IngestAck, error) {
	if s.ingest == nil {
		return nil, ErrNothingScheduled
	}

	ack, err := s.ingest.SubmitIngest(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit ingest: %w", err)
	}

	telemetry.WithJobID(s.logger, ack.JobID.String()).Info("scheduled ingest submitted",
		"task_id", ack.TaskID,
		"file_path", ack.FilePath,
	)
	return ack, nil
}

// RunRetention удаляет tasks, завершённые раньше now-retention.
func (s *Scheduler) RunRetention(ctx context.Context) (int64, error) {
	if s.results == nil {
		return 0, ErrNothingScheduled
	}

	before := s.now().UTC().Add(-s.retention)
	deleted, err := s.results.DeleteFinishedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished tasks: %w", err)
	}

	telemetry.TasksPurged.Add(float64(deleted))
	if deleted > 0 {
		s.logger.Info("finished tasks purged", "deleted", deleted, "before", before)
	} else {
		s.logger.Debug("no finished tasks to purge", "before", before)
	}
	return deleted, nil
}

// RunReclaim возвращает в PENDING tasks, запущенные раньше now-staleAfter.
// Worker подхватит их через polling.
func (s *Scheduler) RunReclaim(ctx context.Context) ([]uuid.UUID, error) {
	if s.reclaimer == nil {
		return nil, ErrNothingScheduled
	}

	before := s.now().UTC().Add(-s.staleAfter)
	ids, err := s.reclaimer.ReclaimStale(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale tasks: %w", err)
	}

	telemetry.TasksReclaimed.Add(float64(len(ids)))
	for _, id := range ids {
		s.logger.Warn("stale running task reclaimed", "task_id", id, "started_before", before)
	}
	return ids, nil
}
