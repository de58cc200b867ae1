package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// VerifySourceExecutor проверяет, что файл ingest job'а есть в data lake.
type VerifySourceExecutor struct {
	Objects    ObjectStore
	LakeBucket string
}

// Execute выполняет проверку.
func (e *VerifySourceExecutor) Execute(ctx context.Context, t *domain.Task) (*ExecutionResult, error) {
	unit, err := decodeUnit[task.VerifySource](t)
	if err != nil {
		return failed("decode unit: %v", err), nil
	}

	key := domain.LakeKey(unit.JobID)
	info, err := e.Objects.Head(ctx, e.LakeBucket, key)
	if errors.Is(err, objects.ErrNotFound) {
		return failed("source %s not found", lakeURI(e.LakeBucket, key)), nil
	}
	if err != nil {
		return nil, err
	}

	return &ExecutionResult{
		Outputs: map[string]any{
			"bucket": info.Bucket,
			"key":    info.Key,
			"size":   info.Size,
			"etag":   info.ETag,
		},
	}, nil
}

// VerifyTargetExecutor проверяет, что stack зарегистрирован в каталоге
// и его bucket доступен. Возвращает описание stack.
type VerifyTargetExecutor struct {
	Catalog Catalog
	Objects ObjectStore
}

// Execute выполняет проверку.
func (e *VerifyTargetExecutor) Execute(ctx context.Context, t *domain.Task) (*ExecutionResult, error) {
	unit, err := decodeUnit[task.VerifyTarget](t)
	if err != nil {
		return failed("decode unit: %v", err), nil
	}

	stack, err := e.Catalog.GetStack(ctx, unit.Stack)
	if errors.Is(err, repo.ErrNotFound) {
		return failed("stack %q is not registered", unit.Stack), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stack: %w", err)
	}

	exists, err := e.Objects.BucketExists(ctx, stack.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return failed("stack %q: bucket %s does not exist", stack.Name, stack.Bucket), nil
	}

	return &ExecutionResult{
		Outputs: map[string]any{"stack": stack},
	}, nil
}
