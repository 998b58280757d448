package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
)

// Open returns the configured backend behind a Lazy wrapper. Nothing touches
// disk or network until the first operation.
func Open(cfg config.StorageConfig) (*Lazy, error) {
	var open func() (Store, error)
	switch cfg.Backend {
	case "memory":
		open = func() (Store, error) { return NewMemoryStore(), nil }
	case "pebble":
		path := cfg.Path
		open = func() (Store, error) { return NewPebbleStore(path) }
	case "redis":
		redisCfg := cfg.Redis
		open = func() (Store, error) {
			s := NewRedisStore(&redisCfg)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Ping(ctx); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("redis ping: %w", err)
			}
			return s, nil
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return NewLazy(open), nil
}
