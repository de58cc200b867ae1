package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// MemberResult — итог одного члена стадии.
type MemberResult struct {
	TaskID uuid.UUID        `json:"task_id"`
	Kind   domain.TaskKind  `json:"kind"`
	State  domain.TaskState `json:"state"`

	// Value — результат SUCCESS.
	Value map[string]any `json:"value,omitempty"`

	// Cause — причина FAILURE или причина, по которой член не разрешён.
	Cause string `json:"cause,omitempty"`

	// Resolved — член достиг финального состояния.
	Resolved bool `json:"resolved"`
}

// Succeeded возвращает true для разрешённого члена в состоянии SUCCESS.
func (m MemberResult) Succeeded() bool {
	return m.Resolved && m.State == domain.TaskStateSuccess
}

// Decode раскладывает Value в v через JSON.
//
// Форма Value зависит от backend'а (map из JSONB или map из памяти),
// поэтому значения читаются только через Decode.
func (m MemberResult) Decode(v any) error {
	if !m.Succeeded() {
		return fmt.Errorf("member %s (%s) has no value: state %s", m.TaskID, m.Kind, m.State)
	}
	raw, err := json.Marshal(m.Value)
	if err != nil {
		return fmt.Errorf("marshal %s value: %w", m.Kind, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s value: %w", m.Kind, err)
	}
	return nil
}

// StageResult — результат стадии: члены в порядке dispatch'а.
type StageResult struct {
	Index    int            `json:"index"`
	Name     string         `json:"name"`
	Members  []MemberResult `json:"members"`
	Duration time.Duration  `json:"duration"`
}

// Failed возвращает true, если хотя бы один член не SUCCESS.
func (r StageResult) Failed() bool {
	for _, m := range r.Members {
		if !m.Succeeded() {
			return true
		}
	}
	return false
}

// Failures возвращает члены в состоянии FAILURE.
func (r StageResult) Failures() []MemberResult {
	var out []MemberResult
	for _, m := range r.Members {
		if m.Resolved && m.State == domain.TaskStateFailure {
			out = append(out, m)
		}
	}
	return out
}

// Member возвращает первый член заданного типа.
func (r StageResult) Member(kind domain.TaskKind) (MemberResult, bool) {
	for _, m := range r.Members {
		if m.Kind == kind {
			return m, true
		}
	}
	return MemberResult{}, false
}

// Outcome — итог выполнения цепочки.
type Outcome struct {
	JobID uuid.UUID `json:"job_id"`

	// Stages — результаты разрешённых стадий; при остановке последним
	// идёт частичный результат стадии, на которой цепочка остановилась.
	Stages []StageResult `json:"stages"`

	// StoppedAt — индекс стадии остановки, -1 если выполнены все.
	StoppedAt int `json:"stopped_at"`

	// Err — причина остановки.
	Err *Error `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Completed возвращает true, если все стадии выполнены успешно.
func (o *Outcome) Completed() bool {
	return o.Err == nil
}

// State сводит итог к состоянию Job Handle.
func (o *Outcome) State() domain.TaskState {
	if o.Err == nil {
		return domain.TaskStateSuccess
	}
	if o.Err.Kind == KindStageTimeout {
		return domain.TaskStateRunning
	}
	return domain.TaskStateFailure
}
