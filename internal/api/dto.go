package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/orchestrator"
	"github.com/olmax99/dockerflaskapi/internal/pipeline"
)

// Task DTOs

// TaskResponse — состояние task. Result только для SUCCESS и FAILURE.
type TaskResponse struct {
	ID     uuid.UUID      `json:"id"`
	JobID  uuid.UUID      `json:"job_id"`
	Kind   string         `json:"kind"`
	State  string         `json:"state"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// TaskFromHandle конвертирует domain.Handle в TaskResponse.
func TaskFromHandle(h domain.Handle) TaskResponse {
	resp := TaskResponse{
		ID:    h.ID,
		JobID: h.JobID,
		Kind:  h.Kind.String(),
		State: h.State.String(),
	}
	if h.Result != nil {
		resp.Result = h.Result.Value
		resp.Error = h.Result.Error
	}
	return resp
}

// JobResponse — сводное состояние job.
type JobResponse struct {
	JobID uuid.UUID      `json:"job_id"`
	State string         `json:"state"`
	Tasks []TaskResponse `json:"tasks"`
}

// JobFromStatus конвертирует orchestrator.JobStatus в JobResponse.
func JobFromStatus(s *orchestrator.JobStatus) JobResponse {
	tasks := make([]TaskResponse, len(s.Tasks))
	for i, h := range s.Tasks {
		tasks[i] = TaskFromHandle(h)
	}
	return JobResponse{JobID: s.JobID, State: s.State.String(), Tasks: tasks}
}

// Permits DTOs

// PromoteResponse — итог promote.
type PromoteResponse struct {
	JobID       uuid.UUID              `json:"job_id"`
	SourceJobID uuid.UUID              `json:"source_job_id"`
	Stack       string                 `json:"stack"`
	Partition   string                 `json:"partition"`
	State       string                 `json:"state"`
	Stages      []pipeline.StageResult `json:"stages"`
	Failure     *FailureResponse       `json:"failure,omitempty"`
	CalledAt    time.Time              `json:"called_at"`
	DurationMs  int64                  `json:"duration_ms"`
}

// FailureResponse — на какой стадии и почему остановился promote.
type FailureResponse struct {
	Kind      string                 `json:"kind"`
	Stage     int                    `json:"stage"`
	StageName string                 `json:"stage_name"`
	Message   string                 `json:"message"`
	Members   []pipeline.MemberError `json:"members,omitempty"`
}

// PromoteFromResult конвертирует orchestrator.PromoteResult в PromoteResponse.
func PromoteFromResult(r *orchestrator.PromoteResult) PromoteResponse {
	resp := PromoteResponse{
		JobID:       r.JobID,
		SourceJobID: r.SourceJobID,
		Stack:       r.Stack,
		Partition:   r.Partition,
		State:       r.State.String(),
		Stages:      r.Stages,
		CalledAt:    r.CalledAt,
		DurationMs:  r.Duration.Milliseconds(),
	}
	if r.Error != nil {
		resp.Failure = &FailureResponse{
			Kind:      string(r.Error.Kind),
			Stage:     r.Error.Stage,
			StageName: r.Error.StageName,
			Message:   r.Error.Error(),
			Members:   r.Error.Members,
		}
	}
	return resp
}

// Stack DTOs

// StackResponse — stack data store.
type StackResponse struct {
	Name      string    `json:"name"`
	Bucket    string    `json:"bucket"`
	Prefix    string    `json:"prefix"`
	Database  string    `json:"database"`
	Table     string    `json:"table"`
	CreatedAt time.Time `json:"created_at"`
}

// StackFromDomain конвертирует domain.Stack в StackResponse.
func StackFromDomain(s domain.Stack) StackResponse {
	return StackResponse{
		Name:      s.Name,
		Bucket:    s.Bucket,
		Prefix:    s.Prefix,
		Database:  s.Database,
		Table:     s.Table,
		CreatedAt: s.CreatedAt,
	}
}

// PartitionResponse — партиция таблицы stack.
type PartitionResponse struct {
	Value     string    `json:"value"`
	Location  string    `json:"location"`
	JobID     uuid.UUID `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PartitionFromDomain конвертирует domain.Partition в PartitionResponse.
func PartitionFromDomain(p domain.Partition) PartitionResponse {
	return PartitionResponse{
		Value:     p.Value,
		Location:  p.Location,
		JobID:     p.JobID,
		CreatedAt: p.CreatedAt,
	}
}
