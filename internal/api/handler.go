package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/orchestrator"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

// Service — операции pipeline (реализация: orchestrator.Orchestrator).
type Service interface {
	SubmitIngest(ctx context.Context) (*orchestrator.IngestAck, error)
	Promote(ctx context.Context, sourceJobID uuid.UUID, stackName string) (*orchestrator.PromoteResult, error)
	CheckTask(ctx context.Context, id uuid.UUID, wait time.Duration) (domain.Handle, error)
	CheckJob(ctx context.Context, jobID uuid.UUID) (*orchestrator.JobStatus, error)
}

// Catalog — каталог stack'ов и партиций (реализация: repo.CatalogRepo).
type Catalog interface {
	ListStacks(ctx context.Context) ([]domain.Stack, error)
	GetStack(ctx context.Context, name string) (*domain.Stack, error)
	ListPartitions(ctx context.Context, database, table string) ([]domain.Partition, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	service Service
	catalog Catalog
	maxWait time.Duration
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service Service
	Catalog Catalog

	// MaxWait — верхняя граница ?wait= при проверке task (default: 30s).
	MaxWait time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		catalog: cfg.Catalog,
		maxWait: maxWait,
		logger:  logger,
	}
}

// log возвращает логгер запроса с request_id (см. RequestLogger).
func (h *Handler) log(r *http.Request) *slog.Logger {
	return telemetry.FromContextOr(r.Context(), h.logger)
}
