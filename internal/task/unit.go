package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
)

// Ошибки Task Unit.
var (
	// ErrInvalidUnit — Unit не прошёл валидацию.
	ErrInvalidUnit = errors.New("invalid task unit")

	// ErrUnknownKind — тип операции не входит в закрытый набор.
	ErrUnknownKind = errors.New("unknown task kind")
)

// Unit — дескриптор удалённой операции.
//
// Реализации: IngestReport, VerifySource, VerifyTarget, UpdatePartition, CopyToTarget.
type Unit interface {
	// Kind возвращает тип операции.
	Kind() domain.TaskKind

	// Validate проверяет аргументы до dispatch'а.
	Validate() error

	// Mutating возвращает true, если операция меняет внешнее состояние.
	// Такие операции обязаны быть идемпотентными и проверять fencing token.
	Mutating() bool

	sealed()
}

// Fenced — мутирующий Unit, который предъявляет fencing token.
type Fenced interface {
	Unit
	FenceKey() string
	FenceToken() int64
}

// IngestReport — выгрузка отчёта из upstream API в data lake.
type IngestReport struct {
	JobID     uuid.UUID `json:"job_id"`
	CalledAt  time.Time `json:"called_at"`
	ChunkSize int       `json:"chunk_size,omitempty"`
}

func (IngestReport) Kind() domain.TaskKind { return domain.TaskKindIngestReport }
func (IngestReport) Mutating() bool        { return true }
func (IngestReport) sealed()               {}

func (u IngestReport) Validate() error {
	if u.JobID == uuid.Nil {
		return fmt.Errorf("%w: %s: job_id is required", ErrInvalidUnit, u.Kind())
	}
	if u.ChunkSize < 0 {
		return fmt.Errorf("%w: %s: chunk_size must be >= 0", ErrInvalidUnit, u.Kind())
	}
	return nil
}

// VerifySource — проверка, что файл ingest job'а существует в data lake.
type VerifySource struct {
	JobID uuid.UUID `json:"job_id"`
}

func (VerifySource) Kind() domain.TaskKind { return domain.TaskKindVerifySource }
func (VerifySource) Mutating() bool        { return false }
func (VerifySource) sealed()               {}

func (u VerifySource) Validate() error {
	if u.JobID == uuid.Nil {
		return fmt.Errorf("%w: %s: job_id is required", ErrInvalidUnit, u.Kind())
	}
	return nil
}

// VerifyTarget — проверка, что stack зарегистрирован и его bucket доступен.
// Результат содержит описание stack для следующих стадий.
type VerifyTarget struct {
	Stack string `json:"stack"`
}

func (VerifyTarget) Kind() domain.TaskKind { return domain.TaskKindVerifyTarget }
func (VerifyTarget) Mutating() bool        { return false }
func (VerifyTarget) sealed()               {}

func (u VerifyTarget) Validate() error {
	if u.Stack == "" {
		return fmt.Errorf("%w: %s: stack is required", ErrInvalidUnit, u.Kind())
	}
	return nil
}

// UpdatePartition — создание партиции в каталоге.
//
// Идемпотентность: повторный вызов для той же партиции — no-op (created=false),
// а не ошибка.
type UpdatePartition struct {
	JobID     uuid.UUID    `json:"job_id"`
	Stack     domain.Stack `json:"stack"`
	Partition string       `json:"partition"`
	Fence     int64        `json:"fence"`
}

func (UpdatePartition) Kind() domain.TaskKind { return domain.TaskKindUpdatePartition }
func (UpdatePartition) Mutating() bool        { return true }
func (UpdatePartition) sealed()               {}
func (u UpdatePartition) FenceKey() string    { return u.JobID.String() }
func (u UpdatePartition) FenceToken() int64   { return u.Fence }

func (u UpdatePartition) Validate() error {
	return validatePlacement(u.Kind(), u.JobID, &u.Stack, u.Partition, u.Fence)
}

// CopyToTarget — копирование файла из data lake в партицию data store.
//
// Идемпотентность: если объект уже лежит в партиции с тем же содержимым,
// копирование пропускается; иначе объект перезаписывается.
type CopyToTarget struct {
	JobID     uuid.UUID    `json:"job_id"`
	Stack     domain.Stack `json:"stack"`
	Partition string       `json:"partition"`
	Fence     int64        `json:"fence"`
}

func (CopyToTarget) Kind() domain.TaskKind { return domain.TaskKindCopyToTarget }
func (CopyToTarget) Mutating() bool        { return true }
func (CopyToTarget) sealed()               {}
func (u CopyToTarget) FenceKey() string    { return u.JobID.String() }
func (u CopyToTarget) FenceToken() int64   { return u.Fence }

func (u CopyToTarget) Validate() error {
	return validatePlacement(u.Kind(), u.JobID, &u.Stack, u.Partition, u.Fence)
}

func validatePlacement(kind domain.TaskKind, jobID uuid.UUID, stack *domain.Stack, partition string, fence int64) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("%w: %s: job_id is required", ErrInvalidUnit, kind)
	}
	if err := stack.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidUnit, kind, err)
	}
	if _, err := time.Parse(PartitionLayout, partition); err != nil {
		return fmt.Errorf("%w: %s: partition %q is not a date", ErrInvalidUnit, kind, partition)
	}
	if fence <= 0 {
		return fmt.Errorf("%w: %s: fencing token is required", ErrInvalidUnit, kind)
	}
	return nil
}

// PartitionLayout — формат значения партиции (дата вызова в UTC).
const PartitionLayout = "2006-01-02"

// PartitionFor возвращает значение партиции для момента времени.
func PartitionFor(t time.Time) string {
	return t.UTC().Format(PartitionLayout)
}

// compile-time checks
var (
	_ Unit   = IngestReport{}
	_ Unit   = VerifySource{}
	_ Unit   = VerifyTarget{}
	_ Fenced = UpdatePartition{}
	_ Fenced = CopyToTarget{}
)
