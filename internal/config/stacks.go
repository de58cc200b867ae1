package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/olmax99/dockerflaskapi/internal/domain"
	"gopkg.in/yaml.v3"
)

// StacksFile — формат файла STACKS_FILE.
//
//	stacks:
//	  - name: permits-dev
//	    bucket: flaskapi-dev-datastore-eu-central-1
//	    prefix: permits/parquet
//	    database: dev_flaskapi_01
//	    table: dev_permits_01
type StacksFile struct {
	Stacks []domain.Stack `yaml:"stacks"`
}

// LoadStacks читает stack'и из YAML-файла.
func LoadStacks(path string) ([]domain.Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stacks file: %w", err)
	}
	return ParseStacks(data)
}

// ParseStacks разбирает и проверяет описание stack'ов.
func ParseStacks(data []byte) ([]domain.Stack, error) {
	var file StacksFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse stacks: %w", err)
	}

	seen := make(map[string]bool, len(file.Stacks))
	var errs []error
	for i := range file.Stacks {
		s := &file.Stacks[i]
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("stacks[%d]: %w", i, err))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("stacks[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return file.Stacks, nil
}

// Stacks возвращает stack'и из STACKS_FILE или stack окружения по умолчанию.
func (c *Config) Stacks() ([]domain.Stack, error) {
	if c.StacksFile != "" {
		return LoadStacks(c.StacksFile)
	}
	return []domain.Stack{DefaultStack(c.RunMode)}, nil
}

// DefaultStack — stack data store окружения.
func DefaultStack(mode string) domain.Stack {
	if mode == ModeStaging {
		return domain.Stack{
			Name:     "permits-staging",
			Bucket:   "flaskapi-staging-datastore-eu-central-1",
			Prefix:   "permits/parquet",
			Database: "staging_flaskapi_01",
			Table:    "staging_permits_01",
		}
	}
	return domain.Stack{
		Name:     "permits-dev",
		Bucket:   "flaskapi-dev-datastore-eu-central-1",
		Prefix:   "permits/parquet",
		Database: "dev_flaskapi_01",
		Table:    "dev_permits_01",
	}
}
