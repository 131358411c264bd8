package docstore

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"eldercare-platform/internal/config"
	"eldercare-platform/pkg/utils"
)

// Open builds the Store selected by cfg.Store.Driver. When Redis is
// configured, live queries fan out across processes through it. The returned
// close func releases every connection Open made.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (Store, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var notifier Notifier = NewLocalNotifier()
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: addr})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, rdb.Close)
		notifier = NewRedisNotifier(rdb, log)
	}

	switch cfg.Store.Driver {
	case "memory":
		return NewMemoryStore(log, WithMemoryNotifier(notifier)), closeAll, nil
	case "sqlite", "postgres":
	default:
		_ = closeAll()
		return nil, nil, fmt.Errorf("docstore: unknown driver %q", cfg.Store.Driver)
	}

	var (
		s   *SQLStore
		err error
	)
	if cfg.Store.Driver == "sqlite" {
		db, oerr := utils.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if oerr != nil {
			_ = closeAll()
			return nil, nil, oerr
		}
		closers = append(closers, db.Close)
		s, err = NewSQLStore(db, DialectSQLite, notifier, log)
	} else {
		db, oerr := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.SQLPool{})
		if oerr != nil {
			_ = closeAll()
			return nil, nil, oerr
		}
		closers = append(closers, db.Close)
		s, err = NewSQLStore(db, DialectPostgres, notifier, log)
	}
	if err == nil {
		err = s.EnsureSchema(ctx)
	}
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	return s, closeAll, nil
}
