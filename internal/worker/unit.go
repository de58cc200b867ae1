package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/fence"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// decodeUnit восстанавливает Unit ожидаемого типа из payload task'а.
func decodeUnit[T task.Unit](t *domain.Task) (T, error) {
	var zero T

	u, err := task.DecodeTask(t)
	if err != nil {
		return zero, err
	}
	typed, ok := u.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s for %T", ErrUnexpectedUnit, t.Kind, zero)
	}
	if err := typed.Validate(); err != nil {
		return zero, err
	}
	return typed, nil
}

// checkFence проверяет token мутирующего Unit'а.
// Устаревший token — логическая ошибка, остальное — инфраструктурная.
func checkFence(ctx context.Context, f Fencer, u task.Fenced) (*ExecutionResult, error) {
	if f == nil {
		return nil, nil
	}
	err := f.Check(ctx, u.FenceKey(), u.FenceToken())
	if errors.Is(err, fence.ErrStaleToken) {
		return failed("%s rejected: %v", u.Kind(), err), nil
	}
	if err != nil {
		return nil, fmt.Errorf("check fence: %w", err)
	}
	return nil, nil
}
