// Package storage selects the run journal backing store from the configuration.
package storage

import (
	"context"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/run"
	"github.com/trezcool/mashovsend/storage/database"
	"github.com/trezcool/mashovsend/storage/inmem"
)

// NewStore opens the configured database journal, or an in-memory one when no engine is set.
// The returned close func is never nil.
func NewStore(ctx context.Context, conf core.DatabaseConfig, migrate bool) (run.Store, func() error, error) {
	if conf.Engine == "" {
		return inmem.NewRunStore(), func() error { return nil }, nil
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return database.NewRunRepository(db), db.Close, nil
}
