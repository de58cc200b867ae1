package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrJobAlreadyActive — promote этого lake job уже выполняется в процессе.
	ErrJobAlreadyActive = errors.New("job already being promoted")

	// ErrTaskNotFound — task неизвестен backend'у.
	ErrTaskNotFound = errors.New("task not found")

	// ErrJobNotFound — у job нет ни одного task.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRequest — некорректные аргументы вызова.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBackendUnavailable — backend не принял dispatch или недоступен для чтения.
	ErrBackendUnavailable = errors.New("execution backend unavailable")

	// ErrBackendProtocol — backend вернул ответ неожиданной формы.
	ErrBackendProtocol = errors.New("execution backend protocol error")
)
