package worker

import "errors"

// Ошибки воркера.
var (
	// ErrTaskNotFound — task не найден в БД.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotPending — task уже забран другим worker'ом или завершён.
	ErrTaskNotPending = errors.New("task is not in PENDING state")

	// ErrUnknownKind — нет executor'а для данного типа Unit'а.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrUnexpectedUnit — payload task'а декодирован не в тот Unit.
	ErrUnexpectedUnit = errors.New("unexpected task unit")
)

// isSkip — ожидаемые ситуации, когда task просто не наш.
func isSkip(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrTaskNotPending)
}
