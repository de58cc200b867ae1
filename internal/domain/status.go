package domain

import "fmt"

// TaskState — состояние task (Job Handle) в backend.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILURE
//
// Переходы выполняет только worker. Оркестратор и клиенты состояние
// только читают.
type TaskState string

const (
	// TaskStatePending — task создан и ждёт worker'а.
	TaskStatePending TaskState = "PENDING"

	// TaskStateRunning — task взят worker'ом в работу.
	TaskStateRunning TaskState = "RUNNING"

	// TaskStateSuccess — task успешно завершён, результат доступен.
	TaskStateSuccess TaskState = "SUCCESS"

	// TaskStateFailure — task завершился с ошибкой, причина доступна.
	TaskStateFailure TaskState = "FAILURE"
)

// IsTerminal возвращает true, если состояние финальное.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailure:
		return true
	default:
		return false
	}
}

// Valid проверяет, что состояние входит в известный набор.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateRunning, TaskStateSuccess, TaskStateFailure:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskState.
func (s TaskState) String() string {
	return string(s)
}

// ParseTaskState парсит строку в TaskState.
func ParseTaskState(s string) (TaskState, error) {
	state := TaskState(s)
	if !state.Valid() {
		return "", fmt.Errorf("unknown task state %q", s)
	}
	return state, nil
}

// AggregateState сводит состояния нескольких tasks одного job в одно.
//
// Правила (по убыванию приоритета):
//   - хотя бы один FAILURE → FAILURE
//   - хотя бы один RUNNING → RUNNING
//   - хотя бы один PENDING → PENDING (но если часть уже SUCCESS — RUNNING)
//   - все SUCCESS → SUCCESS
//
// Пустой список — PENDING.
func AggregateState(states []TaskState) TaskState {
	if len(states) == 0 {
		return TaskStatePending
	}

	var pending, running, success int
	for _, s := range states {
		switch s {
		case TaskStateFailure:
			return TaskStateFailure
		case TaskStateRunning:
			running++
		case TaskStateSuccess:
			success++
		default:
			pending++
		}
	}

	switch {
	case running > 0:
		return TaskStateRunning
	case pending > 0 && success > 0:
		return TaskStateRunning
	case pending > 0:
		return TaskStatePending
	default:
		return TaskStateSuccess
	}
}
