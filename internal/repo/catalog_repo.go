package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// CatalogRepo — каталог схем: зарегистрированные stacks и партиции их таблиц.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

// NewCatalogRepo создаёт новый CatalogRepo.
func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// UpsertStack регистрирует stack или обновляет его описание.
func (r *CatalogRepo) UpsertStack(ctx context.Context, stack *domain.Stack) error {
	query := `
		INSERT INTO data_stores (name, bucket, prefix, database_name, table_name, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (name) DO UPDATE
		SET bucket = EXCLUDED.bucket,
		    prefix = EXCLUDED.prefix,
		    database_name = EXCLUDED.database_name,
		    table_name = EXCLUDED.table_name
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		stack.Name,
		stack.Bucket,
		stack.Prefix,
		stack.Database,
		stack.Table,
	).Scan(&stack.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert stack %s: %w", stack.Name, err)
	}
	return nil
}

// GetStack возвращает stack по имени.
func (r *CatalogRepo) GetStack(ctx context.Context, name string) (*domain.Stack, error) {
	query := `
		SELECT name, bucket, prefix, database_name, table_name, created_at
		FROM data_stores
		WHERE name = $1
	`
	var s domain.Stack
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&s.Name, &s.Bucket, &s.Prefix, &s.Database, &s.Table, &s.CreatedAt,
	)
	if err != nil {
		return nil, wrapPgError("get stack "+name, err)
	}
	return &s, nil
}

// ListStacks возвращает все зарегистрированные stacks.
func (r *CatalogRepo) ListStacks(ctx context.Context) ([]domain.Stack, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, bucket, prefix, database_name, table_name, created_at
		FROM data_stores
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list stacks: %w", err)
	}
	defer rows.Close()

	var stacks []domain.Stack
	for rows.Next() {
		var s domain.Stack
		if err := rows.Scan(&s.Name, &s.Bucket, &s.Prefix, &s.Database, &s.Table, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stack: %w", err)
		}
		stacks = append(stacks, s)
	}
	return stacks, rows.Err()
}

// EnsurePartition создаёт партицию, если её ещё нет.
//
// Возвращает created=false, если партиция уже была: повторный вызов
// для того же ключа (database, table, value) не меняет каталог.
// Вместе с партицией хранится fencing token записавшего её запуска.
// Если ту же партицию того же job'а уже записал запуск с более новым
// token'ом, возвращает ErrStaleFence. Token'ы разных job'ов не сравниваются.
func (r *CatalogRepo) EnsurePartition(ctx context.Context, p *domain.Partition) (bool, error) {
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO partitions (database_name, table_name, value, location, job_id, fence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (database_name, table_name, value) DO UPDATE
		SET fence = EXCLUDED.fence
		WHERE partitions.job_id = EXCLUDED.job_id AND partitions.fence < EXCLUDED.fence
		RETURNING (xmax = 0)
	`, p.Database, p.Table, p.Value, p.Location, p.JobID, p.Fence).Scan(&created)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("ensure partition %s.%s/%s: %w", p.Database, p.Table, p.Value, err)
	}

	// Конфликт без обновления: партиция другого job'а, тот же token или более новый
	var jobID uuid.UUID
	var current int64
	err = r.pool.QueryRow(ctx, `
		SELECT job_id, fence FROM partitions
		WHERE database_name = $1 AND table_name = $2 AND value = $3
	`, p.Database, p.Table, p.Value).Scan(&jobID, &current)
	if err != nil {
		return false, wrapPgError("ensure partition "+p.Value, err)
	}
	if jobID == p.JobID && current > p.Fence {
		return false, fmt.Errorf("%w: partition %s token %d, stored %d", ErrStaleFence, p.Value, p.Fence, current)
	}
	return false, nil
}

// ListPartitions возвращает партиции таблицы, новые первыми.
func (r *CatalogRepo) ListPartitions(ctx context.Context, database, table string) ([]domain.Partition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT database_name, table_name, value, location, job_id, fence, created_at
		FROM partitions
		WHERE database_name = $1 AND table_name = $2
		ORDER BY value DESC
	`, database, table)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var partitions []domain.Partition
	for rows.Next() {
		var p domain.Partition
		if err := rows.Scan(&p.Database, &p.Table, &p.Value, &p.Location, &p.JobID, &p.Fence, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		partitions = append(partitions, p)
	}
	return partitions, rows.Err()
}
