package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// ErrorKind — класс ошибки pipeline.
type ErrorKind string

const (
	KindDispatchFailure      ErrorKind = "DispatchFailure"
	KindStageTimeout         ErrorKind = "StageTimeout"
	KindTaskFailure          ErrorKind = "TaskFailure"
	KindBackendProtocolError ErrorKind = "BackendProtocolError"
)

// Sentinel-ошибки для errors.Is.
var (
	ErrDispatchFailure = errors.New("dispatch failure")
	ErrStageTimeout    = errors.New("stage timeout")
	ErrTaskFailure     = errors.New("task failure")
	ErrBackendProtocol = errors.New("backend protocol error")
)

var sentinels = map[ErrorKind]error{
	KindDispatchFailure:      ErrDispatchFailure,
	KindStageTimeout:         ErrStageTimeout,
	KindTaskFailure:          ErrTaskFailure,
	KindBackendProtocolError: ErrBackendProtocol,
}

// MemberError — ошибка одного члена стадии.
type MemberError struct {
	// Index — позиция члена в порядке dispatch'а.
	Index  int             `json:"index"`
	TaskID uuid.UUID       `json:"task_id"`
	Kind   domain.TaskKind `json:"kind"`
	Cause  string          `json:"cause"`
}

// Error — ошибка остановки цепочки.
type Error struct {
	Kind      ErrorKind     `json:"kind"`
	Stage     int           `json:"stage"`
	StageName string        `json:"stage_name"`
	Members   []MemberError `json:"members,omitempty"`

	// Cause — исходная ошибка backend'а, если была.
	Cause error `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at stage %d (%s)", e.Kind, e.Stage, e.StageName)
	for _, m := range e.Members {
		fmt.Fprintf(&b, "; %s[%d]: %s", m.Kind, m.Index, m.Cause)
	}
	if e.Cause != nil && len(e.Members) == 0 {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Is сопоставляет Error с sentinel-ошибкой его класса.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func (e *Error) Unwrap() error {
	return e.Cause
}
