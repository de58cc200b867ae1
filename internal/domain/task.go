package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — запись об одной отправленной в backend единице работы.
//
// Task создаётся при dispatch (состояние PENDING) и хранится в таблице tasks.
// Это и есть Job Handle: клиенты и оркестратор читают его через backend,
// а состояние меняет только worker.
type Task struct {
	// ID — идентификатор dispatch'а (handle id).
	ID uuid.UUID `json:"id"`

	// JobID — идентификатор операции, видимой клиенту (ingest, promote).
	JobID uuid.UUID `json:"job_id"`

	// Kind — тип операции.
	Kind TaskKind `json:"kind"`

	// Label — человекочитаемая метка (например, имя стадии pipeline).
	Label string `json:"label,omitempty"`

	// State — текущее состояние.
	State TaskState `json:"state"`

	// Payload — типизированные аргументы Task Unit в виде JSON-объекта.
	Payload map[string]any `json:"payload,omitempty"`

	// Outputs — результат успешного выполнения.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — причина неудачи (человекочитаемая строка).
	Error string `json:"error,omitempty"`

	// Attempt — номер попытки выполнения (начиная с 1).
	Attempt int `json:"attempt"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время dispatch'а.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если task в финальном состоянии.
func (t *Task) IsFinished() bool {
	return t.State.IsTerminal()
}

// MarkRunning переводит task в RUNNING.
func (t *Task) MarkRunning() {
	now := time.Now()
	t.State = TaskStateRunning
	t.StartedAt = &now
	t.Attempt++
}

// MarkSucceeded переводит task в SUCCESS с результатом.
func (t *Task) MarkSucceeded(outputs map[string]any) {
	now := time.Now()
	t.State = TaskStateSuccess
	t.FinishedAt = &now
	t.Outputs = outputs
	t.Error = ""
}

// MarkFailed переводит task в FAILURE с причиной.
func (t *Task) MarkFailed(cause string) {
	now := time.Now()
	t.State = TaskStateFailure
	t.FinishedAt = &now
	t.Error = cause
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (t *Task) CanRetry(maxAttempts int) bool {
	return t.Attempt < maxAttempts
}

// Handle возвращает read-only представление task для клиентов.
// Result заполняется только для финальных состояний.
func (t *Task) Handle() Handle {
	h := Handle{
		ID:    t.ID,
		JobID: t.JobID,
		Kind:  t.Kind,
		State: t.State,
	}
	if t.State.IsTerminal() {
		h.Result = &Result{
			Value: t.Outputs,
			Error: t.Error,
		}
	}
	return h
}

// Handle — состояние dispatch'а, как его видит оркестратор и клиент.
type Handle struct {
	ID     uuid.UUID `json:"id"`
	JobID  uuid.UUID `json:"job_id"`
	Kind   TaskKind  `json:"kind"`
	State  TaskState `json:"state"`
	Result *Result   `json:"result,omitempty"`
}

// IsTerminal возвращает true, если handle в финальном состоянии.
func (h Handle) IsTerminal() bool {
	return h.State.IsTerminal()
}

// Result — результат финального task.
//
// Для SUCCESS заполнен Value, для FAILURE — Error.
type Result struct {
	Value map[string]any `json:"value,omitempty"`
	Error string         `json:"error,omitempty"`
}
