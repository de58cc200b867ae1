package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/task"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

const defaultStageTimeout = 30 * time.Second

// Chain — упорядоченная цепочка стадий.
//
// Chain не хранит состояния выполнения и может запускаться повторно.
type Chain struct {
	name   string
	stages []Stage
}

// NewChain создаёт цепочку.
func NewChain(name string, stages ...Stage) *Chain {
	return &Chain{name: name, stages: stages}
}

// Name возвращает имя цепочки.
func (c *Chain) Name() string {
	return c.name
}

// Len возвращает количество стадий.
func (c *Chain) Len() int {
	return len(c.stages)
}

// Options — параметры запуска цепочки.
type Options struct {
	// JobID — job, к которому относятся все tasks цепочки. Обязателен.
	JobID uuid.UUID

	// StageTimeout — ожидание одной стадии (default: 30s).
	StageTimeout time.Duration

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// Run выполняет стадии по порядку и возвращает итог.
//
// Run не возвращает error: все ошибки backend'а классифицированы в Outcome.Err.
func (c *Chain) Run(ctx context.Context, b backend.Backend, opts Options) *Outcome {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pipeline", c.name, "job_id", opts.JobID)

	start := time.Now()
	out := &Outcome{JobID: opts.JobID, StoppedAt: -1}
	defer func() {
		out.Duration = time.Since(start)
		result := "success"
		if out.Err != nil {
			result = string(out.Err.Kind)
		}
		telemetry.PipelineOutcomes.WithLabelValues(c.name, result).Inc()
	}()

	for i, stage := range c.stages {
		res, err := c.runStage(ctx, b, i, stage, out.Stages, opts, logger)
		out.Stages = append(out.Stages, res)

		if err != nil {
			out.StoppedAt = i
			out.Err = err
			logger.Warn("pipeline stopped",
				"stage", i,
				"stage_name", stage.Name,
				"kind", err.Kind,
				"error", err,
			)
			return out
		}

		logger.Info("stage resolved",
			"stage", i,
			"stage_name", stage.Name,
			"members", len(res.Members),
			"duration", res.Duration,
		)
	}

	return out
}

// runStage выполняет одну стадию: fan-out dispatch, затем ожидание
// членов в порядке dispatch'а под общим дедлайном.
func (c *Chain) runStage(
	ctx context.Context,
	b backend.Backend,
	index int,
	stage Stage,
	prev []StageResult,
	opts Options,
	logger *slog.Logger,
) (StageResult, *Error) {
	start := time.Now()
	res := StageResult{Index: index, Name: stage.Name}
	defer func() {
		res.Duration = time.Since(start)
		telemetry.StageDuration.WithLabelValues(stage.Name).Observe(res.Duration.Seconds())
	}()

	fail := func(kind ErrorKind, cause error, members ...MemberError) *Error {
		return &Error{Kind: kind, Stage: index, StageName: stage.Name, Members: members, Cause: cause}
	}

	units, err := stage.build(prev)
	if err != nil {
		// Builder читает значения прошлых стадий: ошибка здесь означает,
		// что backend вернул результат не той формы
		return res, fail(KindBackendProtocolError, err, MemberError{Index: -1, Cause: err.Error()})
	}

	timeout := stage.Timeout
	if timeout <= 0 {
		timeout = opts.StageTimeout
	}
	deadline := start.Add(timeout)

	// 1. Fan-out
	handles := make([]domain.Handle, 0, len(units))
	for i, unit := range units {
		h, err := b.Dispatch(ctx, unit, backend.DispatchOptions{JobID: opts.JobID, Label: stage.Name})
		if err != nil {
			res.Members = pendingMembers(handles)
			if len(handles) > 0 {
				logger.Warn("stage dispatch aborted, dispatched tasks keep running",
					"stage", index,
					"dispatched", len(handles),
				)
			}
			return res, fail(KindDispatchFailure, err, MemberError{Index: i, Kind: kindOf(unit), Cause: err.Error()})
		}
		handles = append(handles, h)
	}

	// 2. Ожидание в порядке dispatch'а
	res.Members = make([]MemberResult, len(handles))
	var protocolErr *Error
	for i, h := range handles {
		m, err := awaitMember(ctx, b, h, deadline)
		res.Members[i] = m
		if err != nil {
			protocolErr = fail(KindBackendProtocolError, err, MemberError{Index: i, TaskID: h.ID, Kind: h.Kind, Cause: err.Error()})
			// Оставшиеся члены не ждём
			for j := i + 1; j < len(handles); j++ {
				res.Members[j] = unresolved(handles[j], "not awaited")
			}
			break
		}
	}
	if protocolErr != nil {
		return res, protocolErr
	}

	// 3. Классификация
	var timedOut, failed []MemberError
	for i, m := range res.Members {
		switch {
		case !m.Resolved:
			timedOut = append(timedOut, MemberError{Index: i, TaskID: m.TaskID, Kind: m.Kind, Cause: m.Cause})
		case m.State == domain.TaskStateFailure:
			failed = append(failed, MemberError{Index: i, TaskID: m.TaskID, Kind: m.Kind, Cause: m.Cause})
		}
	}

	switch {
	case len(timedOut) > 0:
		return res, fail(KindStageTimeout, nil, append(timedOut, failed...)...)
	case len(failed) > 0:
		return res, fail(KindTaskFailure, nil, failed...)
	}
	return res, nil
}

// awaitMember ждёт один член до дедлайна стадии. Ошибка — только
// ошибка протокола; таймаут и отмена ctx дают неразрешённый член.
func awaitMember(ctx context.Context, b backend.Backend, h domain.Handle, deadline time.Time) (MemberResult, error) {
	if ctx.Err() != nil {
		return unresolved(h, ctx.Err().Error()), nil
	}

	// После дедлайна timeout = 0: неблокирующий poll
	got, err := b.Await(ctx, h.ID, max(time.Until(deadline), 0))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return unresolved(h, err.Error()), nil
		}
		return unresolved(h, err.Error()), err
	}

	if got.ID != h.ID {
		return unresolved(h, "handle mismatch"), fmt.Errorf("%w: await %s returned handle %s", backend.ErrProtocol, h.ID, got.ID)
	}
	if !got.IsTerminal() {
		return unresolved(got, fmt.Sprintf("still %s at stage deadline", got.State)), nil
	}
	if got.Result == nil {
		return unresolved(got, "terminal handle without result"), fmt.Errorf("%w: %s is %s without result", backend.ErrProtocol, h.ID, got.State)
	}

	m := MemberResult{TaskID: got.ID, Kind: got.Kind, State: got.State, Resolved: true}
	if got.State == domain.TaskStateSuccess {
		m.Value = got.Result.Value
	} else {
		m.Cause = got.Result.Error
	}
	return m, nil
}

func unresolved(h domain.Handle, cause string) MemberResult {
	return MemberResult{TaskID: h.ID, Kind: h.Kind, State: h.State, Cause: cause}
}

func pendingMembers(handles []domain.Handle) []MemberResult {
	members := make([]MemberResult, len(handles))
	for i, h := range handles {
		members[i] = unresolved(h, "not awaited")
	}
	return members
}

func kindOf(u task.Unit) domain.TaskKind {
	if u == nil {
		return ""
	}
	return u.Kind()
}
