package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/config"
)

// Open builds the Store selected by cfg.Database.Driver.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory ledger store; state is lost on exit")
		return NewMemoryStore(), nil
	case "postgres", "":
		db, err := InitDB(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		return NewPostgresStore(db, log, cfg.Ledger.MaxTxAttempts, cfg.Ledger.RetryBaseDelay), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
