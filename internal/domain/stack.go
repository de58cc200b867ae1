package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stack — целевой data store: bucket + база и таблица каталога.
//
// Партиции таблицы лежат в s3://{Bucket}/{Prefix}/dt={partition}/.
type Stack struct {
	// Name — уникальное имя stack (например, "permits-dev").
	Name string `json:"name" yaml:"name"`

	// Bucket — bucket data store.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Prefix — префикс таблицы внутри bucket (например, "permits/parquet").
	Prefix string `json:"prefix" yaml:"prefix"`

	// Database — база данных каталога.
	Database string `json:"database" yaml:"database"`

	// Table — таблица каталога.
	Table string `json:"table" yaml:"table"`

	// CreatedAt — время регистрации stack в каталоге.
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Validate проверяет обязательные поля.
func (s *Stack) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("stack name is required")
	case s.Bucket == "":
		return fmt.Errorf("stack %s: bucket is required", s.Name)
	case s.Database == "":
		return fmt.Errorf("stack %s: database is required", s.Name)
	case s.Table == "":
		return fmt.Errorf("stack %s: table is required", s.Name)
	}
	return nil
}

// PartitionPrefix возвращает ключ-префикс партиции внутри bucket.
func (s *Stack) PartitionPrefix(partition string) string {
	prefix := strings.Trim(s.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("dt=%s/", partition)
	}
	return fmt.Sprintf("%s/dt=%s/", prefix, partition)
}

// PartitionLocation возвращает s3 URI партиции.
func (s *Stack) PartitionLocation(partition string) string {
	return fmt.Sprintf("s3://%s/%s", s.Bucket, s.PartitionPrefix(partition))
}

// ObjectKey возвращает ключ файла job'а внутри партиции.
func (s *Stack) ObjectKey(partition string, jobID uuid.UUID) string {
	return s.PartitionPrefix(partition) + jobID.String() + ".parquet"
}

// Partition — партиция таблицы каталога.
type Partition struct {
	Database  string    `json:"database"`
	Table     string    `json:"table"`
	Value     string    `json:"value"`
	Location  string    `json:"location"`
	JobID     uuid.UUID `json:"job_id"`
	Fence     int64     `json:"fence"`
	CreatedAt time.Time `json:"created_at"`
}

// LakeKey возвращает ключ файла ingest job'а в data lake.
func LakeKey(jobID uuid.UUID) string {
	return "data/" + jobID.String() + ".parquet"
}
