package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// UpdatePartitionExecutor создаёт партицию в каталоге.
//
// Идемпотентен: существующая партиция даёт created=false.
// Token проверяется дважды: в fencer до записи и в каталоге при записи.
type UpdatePartitionExecutor struct {
	Catalog Catalog
	Fence   Fencer
}

// Execute выполняет создание партиции.
func (e *UpdatePartitionExecutor) Execute(ctx context.Context, t *domain.Task) (*ExecutionResult, error) {
	unit, err := decodeUnit[task.UpdatePartition](t)
	if err != nil {
		return failed("decode unit: %v", err), nil
	}

	if res, err := checkFence(ctx, e.Fence, unit); res != nil || err != nil {
		return res, err
	}

	p := &domain.Partition{
		Database: unit.Stack.Database,
		Table:    unit.Stack.Table,
		Value:    unit.Partition,
		Location: unit.Stack.PartitionLocation(unit.Partition),
		JobID:    unit.JobID,
		Fence:    unit.Fence,
	}
	created, err := e.Catalog.EnsurePartition(ctx, p)
	if errors.Is(err, repo.ErrStaleFence) {
		return failed("%s rejected: %v", unit.Kind(), err), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ensure partition: %w", err)
	}

	return &ExecutionResult{
		Outputs: map[string]any{
			"database":  p.Database,
			"table":     p.Table,
			"partition": p.Value,
			"location":  p.Location,
			"created":   created,
		},
	}, nil
}
