// Package fence выдаёт монотонные fencing token'ы на job.
//
// Каждый запуск promote pipeline получает новый token. Мутирующие
// Task Unit'ы предъявляют свой token перед записью; если для job'а уже
// выдан более новый token, запись отклоняется с ErrStaleToken. Так
// повторный запуск после таймаута не пересекается с «зависшим» первым.
package fence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrStaleToken — token устарел: для job'а выдан более новый.
var ErrStaleToken = errors.New("stale fencing token")

const (
	defaultPrefix = "permitflow:fence:"
	defaultTTL    = 7 * 24 * time.Hour
)

// Config — конфигурация Fencer.
type Config struct {
	// Prefix — префикс ключей (default: "permitflow:fence:").
	Prefix string

	// TTL — время жизни счётчика job'а (default: 7 суток).
	TTL time.Duration
}

// Fencer — счётчики fencing token'ов в Redis.
type Fencer struct {
	rdb    goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// New создаёт Fencer поверх клиента Redis.
func New(rdb goredis.Cmdable, cfg Config) *Fencer {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Fencer{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// NewClient создаёт клиента Redis по URL (redis://host:port/db) и проверяет ping.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Acquire выдаёт следующий token для key. Token'ы строго возрастают.
func (f *Fencer) Acquire(ctx context.Context, key string) (int64, error) {
	var incr *goredis.IntCmd
	_, err := f.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, f.prefix+key)
		pipe.Expire(ctx, f.prefix+key, f.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("acquire fence %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Current возвращает последний выданный token (0, если не выдавался).
func (f *Fencer) Current(ctx context.Context, key string) (int64, error) {
	raw, err := f.rdb.Get(ctx, f.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get fence %s: %w", key, err)
	}

	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fence %s: %w", key, err)
	}
	return current, nil
}

// Check проверяет, что token не устарел.
func (f *Fencer) Check(ctx context.Context, key string, token int64) error {
	current, err := f.Current(ctx, key)
	if err != nil {
		return err
	}
	if current > token {
		return fmt.Errorf("%w: job %s token %d, current %d", ErrStaleToken, key, token, current)
	}
	return nil
}
