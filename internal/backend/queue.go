package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/mq"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/task"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

const defaultAwaitPollInterval = 500 * time.Millisecond

// TaskStore — хранилище tasks (реализация: repo.TaskRepo).
type TaskStore interface {
	Create(ctx context.Context, t *domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListByJobID(ctx context.Context, jobID uuid.UUID) ([]domain.Task, error)
}

// ReadyPublisher публикует task.ready (реализация: mq.Publisher).
type ReadyPublisher interface {
	PublishTaskReady(ctx context.Context, payload mq.TaskReadyPayload) error
}

// QueueConfig — конфигурация QueueBackend.
type QueueConfig struct {
	// Store — таблица tasks. Обязателен.
	Store TaskStore

	// Publisher — публикация task.ready (опционально; без него
	// worker подхватит task через polling).
	Publisher ReadyPublisher

	// Conn — соединение для listener'а task.completed (опционально;
	// без него Await опрашивает БД с интервалом PollInterval).
	Conn *mq.Connection

	// PollInterval — интервал опроса БД в Await (default: 500ms).
	PollInterval time.Duration

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// QueueBackend — backend поверх таблицы tasks и RabbitMQ.
//
// Dispatch пишет task в БД (PENDING) и публикует task.ready.
// Worker'ы меняют состояние в БД и публикуют task.completed,
// которое будит ожидающих Await в этом процессе.
type QueueBackend struct {
	store        TaskStore
	publisher    ReadyPublisher
	conn         *mq.Connection
	pollInterval time.Duration
	logger       *slog.Logger

	consumer *mq.Consumer
	wg       sync.WaitGroup

	mu      sync.Mutex
	waiters map[uuid.UUID]map[chan struct{}]struct{}
}

// NewQueue создаёт QueueBackend.
func NewQueue(cfg QueueConfig) *QueueBackend {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultAwaitPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QueueBackend{
		store:        cfg.Store,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		logger:       logger.With("component", "queue-backend"),
		waiters:      make(map[uuid.UUID]map[chan struct{}]struct{}),
	}
}

// Start запускает listener task.completed, если есть соединение с RabbitMQ.
func (b *QueueBackend) Start(ctx context.Context) {
	if b.conn == nil {
		b.logger.Warn("RabbitMQ not available, await falls back to polling",
			"poll_interval", b.pollInterval,
		)
		return
	}

	b.consumer = mq.NewConsumer(b.conn, b.logger, mq.ConsumerConfig{
		Handler:  b.handleTaskCompleted,
		Prefetch: 50,
		Declare:  mq.DeclareListenerQueue,
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("completion listener error", "error", err)
		}
	}()
}

// Stop останавливает listener.
func (b *QueueBackend) Stop() {
	if b.consumer != nil {
		b.consumer.Stop()
	}
	b.wg.Wait()
}

// Dispatch сохраняет task и публикует task.ready.
func (b *QueueBackend) Dispatch(ctx context.Context, unit task.Unit, opts DispatchOptions) (domain.Handle, error) {
	t, err := newTask(unit, opts)
	if err != nil {
		return domain.Handle{}, err
	}

	if err := b.store.Create(ctx, t); err != nil {
		return domain.Handle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	telemetry.TasksDispatched.WithLabelValues(string(t.Kind)).Inc()

	if b.publisher == nil {
		b.logger.Warn("publisher not available, task will be picked up by polling",
			"task_id", t.ID,
		)
		return t.Handle(), nil
	}

	err = b.publisher.PublishTaskReady(ctx, mq.TaskReadyPayload{
		TaskID: t.ID,
		JobID:  t.JobID,
		Kind:   string(t.Kind),
	})
	if err != nil {
		// task уже в БД — worker подхватит его через polling
		b.logger.Warn("failed to publish task.ready",
			"task_id", t.ID,
			"error", err,
		)
	}

	return t.Handle(), nil
}

// Poll читает task из БД.
func (b *QueueBackend) Poll(ctx context.Context, id uuid.UUID) (domain.Handle, error) {
	t, err := b.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Handle{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if ctx.Err() != nil {
			return domain.Handle{}, ctx.Err()
		}
		return domain.Handle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := checkHandle(t); err != nil {
		return domain.Handle{}, err
	}
	return t.Handle(), nil
}

// Await ждёт финального состояния: событие task.completed или опрос БД,
// что наступит раньше.
func (b *QueueBackend) Await(ctx context.Context, id uuid.UUID, timeout time.Duration) (domain.Handle, error) {
	if timeout <= 0 {
		return b.Poll(ctx, id)
	}

	// Подписка до первого чтения, чтобы не пропустить событие между ними
	wake, unsubscribe := b.subscribe(id)
	defer unsubscribe()

	deadline := time.Now().Add(timeout)
	for {
		h, err := b.Poll(ctx, id)
		if err != nil || h.IsTerminal() {
			return h, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return h, nil
		}

		timer := time.NewTimer(min(remaining, b.pollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return h, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// PollJob возвращает handles всех tasks job'а.
func (b *QueueBackend) PollJob(ctx context.Context, jobID uuid.UUID) ([]domain.Handle, error) {
	tasks, err := b.store.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	handles := make([]domain.Handle, 0, len(tasks))
	for i := range tasks {
		if err := checkHandle(&tasks[i]); err != nil {
			return nil, err
		}
		handles = append(handles, tasks[i].Handle())
	}
	return handles, nil
}

// handleTaskCompleted будит ожидающих Await для task из события.
func (b *QueueBackend) handleTaskCompleted(_ context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskCompletedPayload](&delivery.Message)
	if err != nil {
		// Битое событие не повлияет на корректность: Await дочитает из БД
		b.logger.Warn("failed to parse task.completed payload", "error", err)
		return nil
	}

	b.logger.Debug("received task.completed event",
		"task_id", payload.TaskID,
		"job_id", payload.JobID,
		"state", payload.State,
	)

	b.notify(payload.TaskID)
	return nil
}

func (b *QueueBackend) subscribe(id uuid.UUID) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.waiters[id] == nil {
		b.waiters[id] = make(map[chan struct{}]struct{})
	}
	b.waiters[id][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.waiters[id], ch)
		if len(b.waiters[id]) == 0 {
			delete(b.waiters, id)
		}
	}
}

func (b *QueueBackend) notify(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.waiters[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

var _ Backend = (*QueueBackend)(nil)
