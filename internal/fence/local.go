package fence

import (
	"context"
	"fmt"
	"sync"
)

// Local — счётчики в памяти процесса. Для режима MemoryBackend,
// где orchestrator и executor'ы живут в одном процессе.
type Local struct {
	mu     sync.Mutex
	tokens map[string]int64
}

// NewLocal создаёт Local.
func NewLocal() *Local {
	return &Local{tokens: make(map[string]int64)}
}

// Acquire выдаёт следующий token для key.
func (l *Local) Acquire(_ context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[key]++
	return l.tokens[key], nil
}

// Current возвращает последний выданный token.
func (l *Local) Current(_ context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[key], nil
}

// Check проверяет, что token не устарел.
func (l *Local) Check(ctx context.Context, key string, token int64) error {
	current, _ := l.Current(ctx, key)
	if current > token {
		return fmt.Errorf("%w: job %s token %d, current %d", ErrStaleToken, key, token, current)
	}
	return nil
}
