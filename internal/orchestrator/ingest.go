package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/task"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

const ingestDescription = "serverlessbaseapi Permits data"

// IngestAck — ответ на запрос выгрузки. Выгрузка идёт в фоне,
// состояние проверяется через CheckTask(TaskID).
type IngestAck struct {
	JobID           uuid.UUID `json:"job_id"`
	SyncRunnerJobID string    `json:"sync_runner_job_id"`
	TaskID          uuid.UUID `json:"task"`
	FilePath        string    `json:"file_path"`
	JobDescription  string    `json:"job_description"`
	CalledAt        time.Time `json:"called_at"`
}

// SubmitIngest отправляет выгрузку отчёта в backend и сразу возвращает ack.
func (o *Orchestrator) SubmitIngest(ctx context.Context) (*IngestAck, error) {
	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	calledAt := o.now().UTC()

	logger := telemetry.WithJobID(o.logger, jobID.String())
	logger.Info("submitting report ingest", "chunk_size", o.chunkSize)

	unit := task.IngestReport{JobID: jobID, CalledAt: calledAt, ChunkSize: o.chunkSize}
	h, err := o.backend.Dispatch(ctx, unit, backend.DispatchOptions{JobID: jobID, Label: "ingest"})
	if err != nil {
		logger.Error("ingest dispatch failed", "error", err)
		if errors.Is(err, backend.ErrInvalidTask) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	logger.Info("report ingest submitted", "task_id", h.ID)

	return &IngestAck{
		JobID:           jobID,
		SyncRunnerJobID: "permits_" + jobID.String(),
		TaskID:          h.ID,
		FilePath:        fmt.Sprintf("s3://%s/%s", o.lakeBucket, domain.LakeKey(jobID)),
		JobDescription:  ingestDescription,
		CalledAt:        calledAt,
	}, nil
}
