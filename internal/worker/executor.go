package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// Executor — интерфейс для выполнения конкретного типа Unit'а.
//
// Реализации: IngestExecutor, VerifySourceExecutor, VerifyTargetExecutor,
// UpdatePartitionExecutor, CopyToTargetExecutor.
//
// task.Payload содержит закодированный Unit (см. task.Decode).
type Executor interface {
	Execute(ctx context.Context, task *domain.Task) (*ExecutionResult, error)
}

// ExecutionResult — результат выполнения task.
type ExecutionResult struct {
	// Outputs — выходные данные выполнения.
	Outputs map[string]any

	// Error — сообщение об ошибке (логическая ошибка выполнения).
	// Инфраструктурные ошибки возвращаются через error в Execute().
	Error string
}

// failed возвращает логическую ошибку выполнения.
func failed(format string, args ...any) *ExecutionResult {
	return &ExecutionResult{Error: fmt.Sprintf(format, args...)}
}

// Registry — реестр executor'ов по типу Unit'а.
type Registry struct {
	executors map[domain.TaskKind]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.TaskKind]Executor)}
}

// Register добавляет executor для типа Unit'а.
func (r *Registry) Register(kind domain.TaskKind, executor Executor) {
	r.executors[kind] = executor
}

// Get возвращает executor для типа Unit'а.
func (r *Registry) Get(kind domain.TaskKind) (Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return executor, nil
}

// Kinds возвращает зарегистрированные типы.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, string(k))
	}
	slices.Sort(kinds)
	return kinds
}

// Run выполняет task одной попыткой. Логическая ошибка возвращается
// как error. Используется in-process backend'ом.
func (r *Registry) Run(ctx context.Context, t *domain.Task) (map[string]any, error) {
	executor, err := r.Get(t.Kind)
	if err != nil {
		return nil, err
	}

	result, err := executor.Execute(ctx, t)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	if result.Error != "" {
		return result.Outputs, errors.New(result.Error)
	}
	return result.Outputs, nil
}
