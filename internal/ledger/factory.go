package ledger

import (
	"context"

	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	"github.com/corvuslabs/credit-oracle-backend/pkg/db"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

// Open selects the ledger backend once at process start. The durable store
// is used when the database is configured and reachable; otherwise the
// in-memory fallback is returned with a loud warning so a misconfigured
// production deploy is visible. The returned client is nil for the
// in-memory case.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, *db.Client) {
	if !cfg.DB.Configured() {
		logg.Warn(ctx, "no database configured, using in-memory ledger (non-persistent)")
		return NewMemoryStore(), nil
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable, falling back to in-memory ledger (non-persistent)", err)
		return NewMemoryStore(), nil
	}

	return NewGormStore(client), client
}
