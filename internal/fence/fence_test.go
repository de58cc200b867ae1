package fence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestFencer(t *testing.T, cfg Config) (*Fencer, *miniredis.Miniredis) {
	t.Helper()

	mini := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, cfg), mini
}

func TestFencer_AcquireIsMonotonic(t *testing.T) {
	f, _ := newTestFencer(t, Config{})
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		token, err := f.Acquire(ctx, "job-1")
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if token <= last {
			t.Errorf("token %d is not greater than %d", token, last)
		}
		last = token
	}

	// Счётчики разных job'ов независимы
	other, err := f.Acquire(ctx, "job-2")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if other != 1 {
		t.Errorf("expected first token 1 for new job, got %d", other)
	}
}

func TestFencer_CheckRejectsStale(t *testing.T) {
	f, _ := newTestFencer(t, Config{})
	ctx := context.Background()

	first, _ := f.Acquire(ctx, "job-1")
	if err := f.Check(ctx, "job-1", first); err != nil {
		t.Fatalf("current token rejected: %v", err)
	}

	// Повторный запуск pipeline получает новый token
	second, _ := f.Acquire(ctx, "job-1")

	if err := f.Check(ctx, "job-1", first); !errors.Is(err, ErrStaleToken) {
		t.Errorf("expected ErrStaleToken for old token, got %v", err)
	}
	if err := f.Check(ctx, "job-1", second); err != nil {
		t.Errorf("new token rejected: %v", err)
	}
}

func TestFencer_CheckUnknownKey(t *testing.T) {
	f, _ := newTestFencer(t, Config{})

	if err := f.Check(context.Background(), "never-acquired", 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFencer_TTL(t *testing.T) {
	f, mini := newTestFencer(t, Config{Prefix: "test:", TTL: time.Minute})
	ctx := context.Background()

	if _, err := f.Acquire(ctx, "job-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ttl := mini.TTL("test:job-1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mini.FastForward(2 * time.Minute)

	current, err := f.Current(ctx, "job-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current != 0 {
		t.Errorf("expected expired counter, got %d", current)
	}
}

func TestLocal_AcquireAndCheck(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	first, _ := l.Acquire(ctx, "job-1")
	second, _ := l.Acquire(ctx, "job-1")
	if second != first+1 {
		t.Fatalf("tokens %d, %d are not consecutive", first, second)
	}

	if err := l.Check(ctx, "job-1", second); err != nil {
		t.Errorf("current token rejected: %v", err)
	}
	if err := l.Check(ctx, "job-1", first); !errors.Is(err, ErrStaleToken) {
		t.Errorf("expected ErrStaleToken, got %v", err)
	}
}
