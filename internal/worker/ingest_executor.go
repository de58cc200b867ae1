package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"github.com/olmax99/dockerflaskapi/internal/permits"
	"github.com/olmax99/dockerflaskapi/internal/task"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

const parquetContentType = "application/vnd.apache.parquet"

// IngestExecutor выгружает отчёт из upstream API в data lake.
//
// Без ChunkSize пишется один файл data/{job}.parquet (его и продвигает
// promote). С ChunkSize — файлы data/{job}_NNN.parquet.
type IngestExecutor struct {
	Source     ReportSource
	Objects    ObjectStore
	LakeBucket string
}

// Execute выполняет выгрузку.
//
// Повтор безопасен: ключи детерминированы job id, Put перезаписывает.
func (e *IngestExecutor) Execute(ctx context.Context, t *domain.Task) (*ExecutionResult, error) {
	unit, err := decodeUnit[task.IngestReport](t)
	if err != nil {
		return failed("decode unit: %v", err), nil
	}

	records, err := e.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}
	rows := permits.Normalize(records)
	telemetry.FromContext(ctx).Debug("report fetched", "records", len(records), "rows", len(rows))

	var files []string
	if unit.ChunkSize > 0 {
		base := strings.TrimSuffix(domain.LakeKey(unit.JobID), ".parquet")
		chunks, err := permits.EncodeChunks(base, rows, unit.ChunkSize)
		if err != nil {
			return failed("encode parquet: %v", err), nil
		}
		for _, c := range chunks {
			if err := e.Objects.Put(ctx, e.LakeBucket, c.Name, c.Data, parquetContentType); err != nil {
				return nil, err
			}
			files = append(files, lakeURI(e.LakeBucket, c.Name))
		}
	} else {
		data, err := permits.EncodeParquet(rows)
		if err != nil {
			return failed("encode parquet: %v", err), nil
		}
		key := domain.LakeKey(unit.JobID)
		if err := e.Objects.Put(ctx, e.LakeBucket, key, data, parquetContentType); err != nil {
			return nil, err
		}
		files = append(files, lakeURI(e.LakeBucket, key))
	}

	return &ExecutionResult{
		Outputs: map[string]any{
			"job_id":    unit.JobID.String(),
			"file_path": files[0],
			"files":     files,
			"rows":      len(rows),
			"called_at": unit.CalledAt,
		},
	}, nil
}

func lakeURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
