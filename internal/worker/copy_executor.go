package worker

import (
	"context"
	"errors"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/task"
)

// CopyToTargetExecutor копирует файл job'а из data lake в партицию stack.
//
// Перед копированием сверяет объект назначения: тот же размер и ETag —
// копирование пропускается (copied=false). Иначе объект перезаписывается.
// Fencing token сверяется повторно непосредственно перед Copy.
type CopyToTargetExecutor struct {
	Objects    ObjectStore
	Fence      Fencer
	LakeBucket string
}

// Execute выполняет копирование.
func (e *CopyToTargetExecutor) Execute(ctx context.Context, t *domain.Task) (*ExecutionResult, error) {
	unit, err := decodeUnit[task.CopyToTarget](t)
	if err != nil {
		return failed("decode unit: %v", err), nil
	}

	if res, err := checkFence(ctx, e.Fence, unit); res != nil || err != nil {
		return res, err
	}

	srcKey := domain.LakeKey(unit.JobID)
	src, err := e.Objects.Head(ctx, e.LakeBucket, srcKey)
	if errors.Is(err, objects.ErrNotFound) {
		return failed("source %s not found", lakeURI(e.LakeBucket, srcKey)), nil
	}
	if err != nil {
		return nil, err
	}

	dstKey := unit.Stack.ObjectKey(unit.Partition, unit.JobID)
	outputs := map[string]any{
		"source": lakeURI(e.LakeBucket, srcKey),
		"target": lakeURI(unit.Stack.Bucket, dstKey),
		"size":   src.Size,
	}

	dst, err := e.Objects.Head(ctx, unit.Stack.Bucket, dstKey)
	switch {
	case err == nil && src.SameContent(dst):
		outputs["copied"] = false
		return &ExecutionResult{Outputs: outputs}, nil
	case err != nil && !errors.Is(err, objects.ErrNotFound):
		return nil, err
	}

	// Между первой проверкой и записью мог стартовать новый запуск
	if res, err := checkFence(ctx, e.Fence, unit); res != nil || err != nil {
		return res, err
	}
	if err := e.Objects.Copy(ctx, e.LakeBucket, srcKey, unit.Stack.Bucket, dstKey); err != nil {
		if errors.Is(err, objects.ErrNotFound) {
			return failed("copy %s: %v", outputs["source"], err), nil
		}
		return nil, err
	}

	outputs["copied"] = true
	return &ExecutionResult{Outputs: outputs}, nil
}
