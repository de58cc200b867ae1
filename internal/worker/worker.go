package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
	defaultTaskTimeout  = 5 * time.Minute
)

// TaskStore — таблица tasks (реализация: repo.TaskRepo).
type TaskStore interface {
	ClaimPending(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	ListPending(ctx context.Context, limit int) ([]domain.Task, error)
}

// CompletionPublisher публикует task.completed (реализация: mq.Publisher).
type CompletionPublisher interface {
	PublishTaskCompleted(ctx context.Context, payload mq.TaskCompletedPayload) error
}

// Worker выполняет отдельные tasks.
//
// Worker — stateless компонент системы, который:
//   - Получает tasks из очереди RabbitMQ (event-driven)
//   - Периодически проверяет PENDING tasks в БД (polling fallback)
//   - Атомарно забирает task (PENDING → RUNNING), чтобы два worker'а
//     не выполнили одно сообщение дважды
//   - Выполняет task executor'ом по типу Unit'а
//   - Повторяет инфраструктурные ошибки с exponential backoff
//   - Публикует task.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	tasks     TaskStore
	publisher CompletionPublisher
	conn      *mq.Connection

	registry *Registry
	retry    RetryPolicy

	consumer *mq.Consumer

	pollInterval time.Duration
	batchSize    int
	taskTimeout  time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Tasks — таблица tasks. Обязательна.
	Tasks TaskStore

	// MQ (опционально; без соединения работает только polling)
	Publisher CompletionPublisher
	Conn      *mq.Connection

	// Registry — executor'ы по типу Unit'а. Обязателен.
	Registry *Registry

	// Retry — политика повторов инфраструктурных ошибок.
	Retry RetryPolicy

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество tasks за один poll (default: 50)

	// TaskTimeout — ограничение одной попытки выполнения (default: 5m).
	TaskTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Worker{
		tasks:        cfg.Tasks,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		registry:     registry,
		retry:        cfg.Retry.withDefaults(),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		taskTimeout:  taskTimeout,
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для tasks.ready (если есть соединение с RabbitMQ)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"max_attempts", w.retry.MaxAttempts,
		"kinds", w.registry.Kinds(),
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueTasksReady),
			Handler:  w.handleTaskReady,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("task consumer error", "error", err)
			}
		}()
	} else {
		w.logger.Warn("RabbitMQ not available, running in polling-only mode")
	}

	// Запускаем polling
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем tasks созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	tasks, err := w.tasks.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending tasks", "error", err)
		return
	}

	if len(tasks) == 0 {
		return
	}

	w.logger.Debug("poll found pending tasks", "count", len(tasks))

	for i := range tasks {
		if ctx.Err() != nil {
			return
		}
		if err := w.processTask(ctx, tasks[i].ID); err != nil && !isSkip(err) {
			w.logger.Error("failed to process task from poll",
				"task_id", tasks[i].ID,
				"error", err,
			)
		}
	}
}
