package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olmax99/dockerflaskapi/internal/domain"
)

const taskColumns = `id, job_id, kind, label, state, attempt, payload, outputs,
		       error, started_at, finished_at, created_at`

// TaskRepo — репозиторий для работы с tasks.
//
// Таблица tasks — state store execution backend'а: запись создаётся
// при dispatch, состояние меняет только worker.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Create создаёт новый task.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	payloadJSON, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO tasks (id, job_id, kind, label, state, attempt, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.JobID,
		task.Kind,
		task.Label,
		task.State,
		task.Attempt,
		payloadJSON,
		task.CreatedAt,
	)
	return wrapPgError("insert task", err)
}

// GetByID возвращает task по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// ListByJobID возвращает все tasks job'а в порядке dispatch'а.
func (r *TaskRepo) ListByJobID(ctx context.Context, jobID uuid.UUID) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by job_id: %w", err)
	}
	return collectTasks(rows)
}

// ClaimPending атомарно переводит task из PENDING в RUNNING.
//
// Если несколько worker'ов получили одно сообщение, task достанется
// только одному. Остальные получат ErrInvalidState.
func (r *TaskRepo) ClaimPending(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET state = 'RUNNING', attempt = attempt + 1, started_at = now()
		WHERE id = $1 AND state = 'PENDING'
		RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, ErrNotFound) {
		// Строки нет или она уже не PENDING
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidState
	}
	return task, err
}

// Update обновляет task.
func (r *TaskRepo) Update(ctx context.Context, task *domain.Task) error {
	outputsJSON, err := json.Marshal(task.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		UPDATE tasks
		SET attempt = $2, state = $3, outputs = $4,
		    started_at = $5, finished_at = $6, error = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Attempt,
		task.State,
		outputsJSON,
		task.StartedAt,
		task.FinishedAt,
		nullString(task.Error),
	)
	if err != nil {
		return wrapPgError("update task", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending возвращает tasks в состоянии PENDING.
func (r *TaskRepo) ListPending(ctx context.Context, limit int) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE state = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	return collectTasks(rows)
}

// DeleteFinishedBefore удаляет финальные tasks, завершённые раньше before.
// Возвращает количество удалённых строк.
func (r *TaskRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE state IN ('SUCCESS', 'FAILURE') AND finished_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished tasks: %w", err)
	}
	return result.RowsAffected(), nil
}

// ReclaimStale возвращает в PENDING tasks, зависшие в RUNNING дольше,
// чем до before: worker, захвативший task, завершился, не записав результат.
// Attempt не сбрасывается, так что повторный claim увеличит его.
func (r *TaskRepo) ReclaimStale(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE tasks
		SET state = 'PENDING', started_at = NULL
		WHERE state = 'RUNNING' AND started_at < $1
		RETURNING id
	`, before)
	if err != nil {
		return nil, wrapPgError("reclaim stale tasks", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, wrapPgError("reclaim stale tasks", err)
	}
	return ids, nil
}

// --- Helpers ---

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// scanTask сканирует строку tasks. pgx.Rows тоже реализует pgx.Row.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var payloadJSON, outputsJSON []byte
	var label, taskError *string

	err := row.Scan(
		&task.ID,
		&task.JobID,
		&task.Kind,
		&label,
		&task.State,
		&task.Attempt,
		&payloadJSON,
		&outputsJSON,
		&taskError,
		&task.StartedAt,
		&task.FinishedAt,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, wrapPgError("scan task", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &task.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	if label != nil {
		task.Label = *label
	}
	if taskError != nil {
		task.Error = *taskError
	}

	return &task, nil
}
