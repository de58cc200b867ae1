package pipeline

import (
	"time"

	"github.com/olmax99/dockerflaskapi/internal/task"
)

// Builder строит Unit'ы стадии по результатам уже разрешённых стадий.
// prev содержит результаты в порядке стадий, все успешные.
type Builder func(prev []StageResult) ([]task.Unit, error)

// Stage — стадия pipeline.
type Stage struct {
	// Name — имя стадии для логов, меток tasks и метрик.
	Name string

	// Timeout переопределяет Options.StageTimeout для этой стадии.
	Timeout time.Duration

	build Builder
}

// Single — стадия из одного Unit'а.
func Single(name string, unit task.Unit) Stage {
	return Group(name, unit)
}

// Group — стадия из независимых Unit'ов, которые выполняются параллельно.
func Group(name string, units ...task.Unit) Stage {
	fixed := append([]task.Unit(nil), units...)
	return Stage{
		Name: name,
		build: func([]StageResult) ([]task.Unit, error) {
			return fixed, nil
		},
	}
}

// Deferred — стадия, Unit'ы которой строятся после разрешения предыдущих.
func Deferred(name string, build Builder) Stage {
	return Stage{Name: name, build: build}
}

// WithTimeout возвращает копию стадии с собственным таймаутом.
func (s Stage) WithTimeout(d time.Duration) Stage {
	s.Timeout = d
	return s
}
