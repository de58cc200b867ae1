package backend

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// Ошибки backend'а.
var (
	// ErrUnavailable — backend недоступен (БД, брокер, закрыт, переполнен).
	ErrUnavailable = errors.New("execution backend unavailable")

	// ErrInvalidTask — Unit отклонён при dispatch (не прошёл валидацию).
	ErrInvalidTask = errors.New("invalid task unit")

	// ErrNotFound — handle с таким id неизвестен backend'у.
	ErrNotFound = errors.New("task handle not found")

	// ErrProtocol — backend вернул ответ неожиданной формы.
	ErrProtocol = errors.New("backend protocol error")
)

// DispatchOptions — параметры dispatch'а.
type DispatchOptions struct {
	// JobID — операция, к которой относится task. Обязателен.
	JobID uuid.UUID

	// Label — метка для логов и просмотра job'а (например, имя стадии).
	Label string
}

// Backend — execution backend.
type Backend interface {
	// Dispatch ставит Unit в очередь и возвращает handle в состоянии PENDING.
	// Ошибки: ErrInvalidTask, ErrUnavailable.
	Dispatch(ctx context.Context, unit task.Unit, opts DispatchOptions) (domain.Handle, error)

	// Poll возвращает текущее состояние handle. Не блокирует.
	Poll(ctx context.Context, id uuid.UUID) (domain.Handle, error)

	// Await ждёт финального состояния не дольше timeout.
	// По таймауту возвращает нефинальный handle и nil.
	// timeout <= 0 — то же, что Poll.
	Await(ctx context.Context, id uuid.UUID, timeout time.Duration) (domain.Handle, error)

	// PollJob возвращает handles всех tasks job'а в порядке dispatch'а.
	PollJob(ctx context.Context, jobID uuid.UUID) ([]domain.Handle, error)
}

// newTask строит запись task для Unit'а. Общая часть dispatch'а обеих реализаций.
func newTask(unit task.Unit, opts DispatchOptions) (*domain.Task, error) {
	if unit == nil {
		return nil, ErrInvalidTask
	}
	if opts.JobID == uuid.Nil {
		return nil, errors.Join(ErrInvalidTask, errors.New("job id is required"))
	}
	if err := unit.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidTask, err)
	}

	payload, err := task.Encode(unit)
	if err != nil {
		return nil, errors.Join(ErrInvalidTask, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}

	return &domain.Task{
		ID:        id,
		JobID:     opts.JobID,
		Kind:      unit.Kind(),
		Label:     opts.Label,
		State:     domain.TaskStatePending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// checkHandle отсекает записи, которые backend не должен был вернуть.
func checkHandle(t *domain.Task) error {
	if !t.State.Valid() {
		return errors.Join(ErrProtocol, errors.New("unknown state "+string(t.State)))
	}
	if !t.Kind.Known() {
		return errors.Join(ErrProtocol, errors.New("unknown kind "+string(t.Kind)))
	}
	return nil
}
