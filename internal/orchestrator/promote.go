package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/pipeline"
	"github.com/olmax99/dockerflaskapi/internal/task"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

// Имена стадий promote.
const (
	PromotePipeline      = "promote"
	StageVerify          = "verify"
	StageUpdatePartition = "update-partition"
	StageCopyToTarget    = "copy-to-target"
)

// PromoteResult — нормализованный итог promote.
type PromoteResult struct {
	// JobID — идентификатор операции promote.
	JobID uuid.UUID `json:"job_id"`

	// SourceJobID — ingest job, файл которого продвигается.
	SourceJobID uuid.UUID `json:"source_job_id"`

	Stack     string `json:"stack"`
	Partition string `json:"partition"`

	// State: SUCCESS, FAILURE или RUNNING (таймаут стадии, работа
	// в backend может продолжаться).
	State domain.TaskState `json:"state"`

	// Stages — результаты стадий; при остановке последним идёт частичный.
	Stages []pipeline.StageResult `json:"stages"`

	// StoppedAt — индекс стадии остановки, -1 при успехе.
	StoppedAt int `json:"stopped_at"`

	// Error — классифицированная причина остановки.
	Error *pipeline.Error `json:"error,omitempty"`

	CalledAt time.Time     `json:"called_at"`
	Duration time.Duration `json:"duration"`
}

// Failed возвращает true, если promote не завершился успешно.
func (r *PromoteResult) Failed() bool {
	return r.Error != nil
}

// Promote продвигает файл ingest job'а из data lake в партицию stack.
//
// Стадии:
//  1. verify: {VerifySource, VerifyTarget} параллельно
//  2. update-partition: UpdatePartition по описанию stack из стадии 1
//  3. copy-to-target: CopyToTarget в ту же партицию
//
// Партиция — дата вызова в UTC. Повторный вызов безопасен: обе
// мутирующие стадии идемпотентны.
//
// error возвращается только для ошибок вызова (ErrInvalidRequest,
// ErrJobAlreadyActive). Всё, что произошло в backend'е, — в PromoteResult.
func (o *Orchestrator) Promote(ctx context.Context, sourceJobID uuid.UUID, stackName string) (*PromoteResult, error) {
	if sourceJobID == uuid.Nil || stackName == "" {
		return nil, fmt.Errorf("%w: job id and stack name are required", ErrInvalidRequest)
	}

	release, err := o.acquire(sourceJobID)
	if err != nil {
		return nil, err
	}
	defer release()

	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	calledAt := o.now().UTC()
	partition := task.PartitionFor(calledAt)

	logger := telemetry.FromContextOr(ctx, o.logger)
	logger = telemetry.WithStack(telemetry.WithJobID(logger, jobID.String()), stackName)
	logger = logger.With("source_job_id", sourceJobID, "partition", partition)
	logger.Info("promote started")

	result := &PromoteResult{
		JobID:       jobID,
		SourceJobID: sourceJobID,
		Stack:       stackName,
		Partition:   partition,
		StoppedAt:   -1,
		CalledAt:    calledAt,
	}

	token, err := o.fence.Acquire(ctx, sourceJobID.String())
	if err != nil {
		logger.Error("failed to acquire fencing token", "error", err)
		result.State = domain.TaskStateFailure
		result.StoppedAt = 0
		result.Error = &pipeline.Error{
			Kind:      pipeline.KindDispatchFailure,
			StageName: StageVerify,
			Members:   []pipeline.MemberError{{Index: -1, Cause: err.Error()}},
			Cause:     err,
		}
		return result, nil
	}

	chain := promoteChain(sourceJobID, stackName, partition, token)
	outcome := chain.Run(ctx, o.backend, pipeline.Options{
		JobID:        jobID,
		StageTimeout: o.stageTimeout,
		Logger:       logger,
	})

	result.State = outcome.State()
	result.Stages = outcome.Stages
	result.StoppedAt = outcome.StoppedAt
	result.Error = outcome.Err
	result.Duration = outcome.Duration

	if outcome.Err != nil {
		logger.Warn("promote stopped",
			"stage", outcome.StoppedAt,
			"kind", outcome.Err.Kind,
			"error", outcome.Err,
		)
	} else {
		logger.Info("promote finished", "duration", outcome.Duration)
	}

	return result, nil
}

// promoteChain строит цепочку promote для одного вызова.
func promoteChain(sourceJobID uuid.UUID, stackName, partition string, token int64) *pipeline.Chain {
	return pipeline.NewChain(PromotePipeline,
		pipeline.Group(StageVerify,
			task.VerifySource{JobID: sourceJobID},
			task.VerifyTarget{Stack: stackName},
		),
		pipeline.Deferred(StageUpdatePartition, func(prev []pipeline.StageResult) ([]task.Unit, error) {
			stack, err := targetStack(prev)
			if err != nil {
				return nil, err
			}
			return []task.Unit{task.UpdatePartition{
				JobID: sourceJobID, Stack: stack, Partition: partition, Fence: token,
			}}, nil
		}),
		pipeline.Deferred(StageCopyToTarget, func(prev []pipeline.StageResult) ([]task.Unit, error) {
			stack, err := targetStack(prev)
			if err != nil {
				return nil, err
			}
			return []task.Unit{task.CopyToTarget{
				JobID: sourceJobID, Stack: stack, Partition: partition, Fence: token,
			}}, nil
		}),
	)
}

// targetStack читает описание stack из результата VerifyTarget.
func targetStack(prev []pipeline.StageResult) (domain.Stack, error) {
	if len(prev) == 0 {
		return domain.Stack{}, errors.New("verify stage result is missing")
	}

	m, ok := prev[0].Member(domain.TaskKindVerifyTarget)
	if !ok {
		return domain.Stack{}, errors.New("verify stage has no target check")
	}

	var value struct {
		Stack *domain.Stack `json:"stack"`
	}
	if err := m.Decode(&value); err != nil {
		return domain.Stack{}, err
	}
	if value.Stack == nil {
		return domain.Stack{}, errors.New("target check returned no stack")
	}
	if err := value.Stack.Validate(); err != nil {
		return domain.Stack{}, fmt.Errorf("target check returned invalid stack: %w", err)
	}
	return *value.Stack, nil
}
