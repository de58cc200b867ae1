package worker

import (
	"context"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/permits"
)

// ObjectStore — объектное хранилище (реализация: objects.Store).
type ObjectStore interface {
	Head(ctx context.Context, bucket, key string) (*objects.ObjectInfo, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Catalog — каталог stack'ов и партиций (реализация: repo.CatalogRepo).
type Catalog interface {
	GetStack(ctx context.Context, name string) (*domain.Stack, error)
	EnsurePartition(ctx context.Context, p *domain.Partition) (bool, error)
}

// Fencer — проверка fencing token (реализация: fence.Fencer).
type Fencer interface {
	Check(ctx context.Context, key string, token int64) error
}

// ReportSource — upstream API отчёта (реализация: permits.Client).
type ReportSource interface {
	Fetch(ctx context.Context) ([]permits.Record, error)
}

// Deps — внешние зависимости executor'ов.
type Deps struct {
	Objects ObjectStore
	Catalog Catalog
	Fence   Fencer
	Source  ReportSource

	// LakeBucket — bucket data lake с файлами ingest job'ов.
	LakeBucket string
}

// DefaultRegistry создаёт реестр со всеми executor'ами.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(domain.TaskKindIngestReport, &IngestExecutor{
		Source: deps.Source, Objects: deps.Objects, LakeBucket: deps.LakeBucket,
	})
	r.Register(domain.TaskKindVerifySource, &VerifySourceExecutor{
		Objects: deps.Objects, LakeBucket: deps.LakeBucket,
	})
	r.Register(domain.TaskKindVerifyTarget, &VerifyTargetExecutor{
		Catalog: deps.Catalog, Objects: deps.Objects,
	})
	r.Register(domain.TaskKindUpdatePartition, &UpdatePartitionExecutor{
		Catalog: deps.Catalog, Fence: deps.Fence,
	})
	r.Register(domain.TaskKindCopyToTarget, &CopyToTargetExecutor{
		Objects: deps.Objects, Fence: deps.Fence, LakeBucket: deps.LakeBucket,
	})
	return r
}
