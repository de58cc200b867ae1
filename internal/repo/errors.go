package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки state store и каталога.
var (
	// ErrNotFound — task, stack или партиция не найдены.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — task с таким ID уже сохранён.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — task не в том состоянии (например, уже захвачен другим worker'ом).
	ErrInvalidState = errors.New("invalid state")

	// ErrStaleFence — партицию уже записал запуск с более новым fencing token.
	ErrStaleFence = errors.New("stale fencing token")
)

// SQLSTATE коды, которые различает репозиторий.
const (
	pgUniqueViolation = "23505"
)

// wrapPgError переводит ошибку pgx в ошибку репозитория.
// Нераспознанные ошибки оборачиваются с op и остаются доступны через errors.As.
func wrapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, ErrAlreadyExists, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
