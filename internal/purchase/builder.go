package purchase

import (
	"context"
	"database/sql"
	"time"

	purchasedb "tradewind/internal/db/purchase"

	"go.uber.org/zap"
)

// BuildRecorder wires the Postgres audit recorder from a DSN. An empty DSN
// or an initialization failure falls back to a no-op recorder so the saga
// never depends on the audit store being reachable. The returned cleanup
// closes the connection pool.
func BuildRecorder(ctx context.Context, dsn string, log *zap.Logger) (Recorder, func()) {
	if log == nil {
		log = zap.NewNop()
	}

	cleanup := func() {}
	if dsn == "" {
		return nopRecorder{}, cleanup
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Warn("postgres open failed, saga audit disabled", zap.Error(err))
		return nopRecorder{}, cleanup
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := purchasedb.NewAuditStoreWithSchema(setupCtx, sqlDB)
	if err != nil {
		log.Warn("postgres init failed, saga audit disabled", zap.Error(err))
		_ = sqlDB.Close()
		return nopRecorder{}, cleanup
	}

	log.Info("postgres saga audit enabled")
	cleanup = func() {
		if err := sqlDB.Close(); err != nil {
			log.Warn("close postgres", zap.Error(err))
		}
	}
	return store, cleanup
}
