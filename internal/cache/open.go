package cache

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/database"
)

// Open builds the driver selected by cfg.CacheDriver. The redis driver reuses
// rdb; the sqlite driver opens its own database, returned as the closer.
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (Cache, io.Closer, error) {
	switch cfg.CacheDriver {
	case config.CacheDriverRedis:
		return NewRedis(rdb), io.NopCloser(nil), nil
	case config.CacheDriverSQLite:
		db, err := database.NewSQLite(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		c, err := NewSQLite(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return c, db, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.CacheDriver)
	}
}
