package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/mq"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

// handleTaskReady обрабатывает событие о новой task из очереди tasks.ready.
func (w *Worker) handleTaskReady(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskReadyPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse task.ready payload", "error", err)
		return err
	}

	w.logger.Debug("received task.ready event",
		"task_id", payload.TaskID,
		"job_id", payload.JobID,
		"kind", payload.Kind,
	)

	if err := w.processTask(ctx, payload.TaskID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if isSkip(err) {
			w.logger.Debug("task not processed", "task_id", payload.TaskID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process task", "task_id", payload.TaskID, "error", err)
		return err
	}

	return nil
}

// processTask забирает task, выполняет и сохраняет результат.
func (w *Worker) processTask(ctx context.Context, taskID uuid.UUID) error {
	// 1. Атомарно PENDING → RUNNING
	task, err := w.tasks.ClaimPending(ctx, taskID)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		case errors.Is(err, repo.ErrInvalidState):
			return fmt.Errorf("%w: %s", ErrTaskNotPending, taskID)
		}
		return fmt.Errorf("claim task: %w", err)
	}

	logger := telemetry.WithTaskID(telemetry.WithJobID(w.logger, task.JobID.String()), task.ID.String())
	logger.Info("task started",
		"kind", task.Kind,
		"label", task.Label,
		"attempt", task.Attempt,
	)
	ctx = telemetry.WithLogger(ctx, logger)

	// 2. Выполняем с retry
	result, execErr := w.executeWithRetry(ctx, task)

	// 3. Сохраняем результат
	if execErr == nil && (result == nil || result.Error == "") {
		var outputs map[string]any
		if result != nil {
			outputs = result.Outputs
		}
		task.MarkSucceeded(outputs)
		if err := w.tasks.Update(ctx, task); err != nil {
			return fmt.Errorf("update task to succeeded: %w", err)
		}

		logger.Info("task succeeded",
			"kind", task.Kind,
			"attempt", task.Attempt,
			"duration", task.Duration(),
		)
		telemetry.TasksFinished.WithLabelValues(task.Kind.String(), task.State.String()).Inc()

		return w.publishCompletion(ctx, task)
	}

	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	} else {
		errMsg = result.Error
	}

	// Контекст worker'а отменён — task остаётся RUNNING, запись уже не обновить.
	// Scheduler вернёт его в PENDING после STALE_TASK_AFTER.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	task.MarkFailed(errMsg)
	if err := w.tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("update task to failed: %w", err)
	}

	logger.Warn("task failed",
		"kind", task.Kind,
		"attempt", task.Attempt,
		"error", errMsg,
	)
	telemetry.TasksFinished.WithLabelValues(task.Kind.String(), task.State.String()).Inc()

	return w.publishCompletion(ctx, task)
}

// publishCompletion публикует событие task.completed.
func (w *Worker) publishCompletion(ctx context.Context, task *domain.Task) error {
	if w.publisher == nil {
		w.logger.Debug("publisher not available, skipping task.completed publish",
			"task_id", task.ID,
		)
		return nil
	}

	payload := mq.TaskCompletedPayload{
		TaskID:  task.ID,
		JobID:   task.JobID,
		Kind:    task.Kind.String(),
		State:   task.State.String(),
		Error:   task.Error,
		Attempt: task.Attempt,
	}

	if err := w.publisher.PublishTaskCompleted(ctx, payload); err != nil {
		w.logger.Warn("failed to publish task.completed",
			"task_id", task.ID,
			"error", err,
		)
		// Не возвращаем ошибку — task обновлён в БД, ожидающие подхватят через polling
	}

	return nil
}

// executeWithRetry выполняет task, повторяя инфраструктурные ошибки.
//
// Логическая ошибка (ExecutionResult.Error) финальна: повтор не изменит
// ответ хранилища или каталога.
func (w *Worker) executeWithRetry(ctx context.Context, task *domain.Task) (*ExecutionResult, error) {
	executor, err := w.registry.Get(task.Kind)
	if err != nil {
		return nil, err
	}

	var lastResult *ExecutionResult
	var lastErr error

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
		lastResult, lastErr = executor.Execute(attemptCtx, task)
		cancel()

		if lastErr == nil {
			return lastResult, nil
		}

		if !task.CanRetry(w.retry.MaxAttempts) || ctx.Err() != nil {
			break
		}

		delay := calculateBackoff(task.Attempt, w.retry)

		telemetry.FromContext(ctx).Debug("retrying task",
			"attempt", task.Attempt,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		task.MarkRunning()
		if err := w.tasks.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("update task for retry: %w", err)
		}
	}

	return lastResult, lastErr
}
