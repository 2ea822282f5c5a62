// Package directory holds the two interchangeable participant directory backends.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	BackendAuto   = "auto"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Open picks the backend once. With "auto" an unreachable redis degrades to
// the in-process map for the lifetime of the process; "redis" makes it fatal.
func Open(ctx context.Context, cfg config.DirectoryConfig) (core.Directory, error) {
	switch cfg.Backend {
	case BackendMemory:
		log.Info().Str("module", "directory").Msg("using in-process directory")
		return NewMemory(), nil
	case BackendRedis, BackendAuto, "":
	default:
		return nil, fmt.Errorf("unknown directory backend %q", cfg.Backend)
	}

	timeout := cfg.Redis.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if cfg.Backend == BackendRedis {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Warn().Err(err).Str("module", "directory").Str("addr", cfg.Redis.Addr).Msg("redis not available, continuing with in-process directory (single-instance only)")
		return NewMemory(), nil
	}

	log.Info().Str("module", "directory").Str("addr", cfg.Redis.Addr).Msg("redis directory connected")
	return NewRedis(client, cfg.Redis.Prefix, cfg.SocketTTL), nil
}
