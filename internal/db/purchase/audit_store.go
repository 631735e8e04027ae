// Package purchasedb persists an append-only audit trail of saga runs in
// Postgres: one row per run, one row per step transition. The orchestrator
// never reads it back; the failed-compensation rows exist so operators can
// reconcile leftover external effects out-of-band.
package purchasedb

import (
	"context"
	"database/sql"
)

// AuditStore records saga runs and step transitions in Postgres.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore constructs an AuditStore.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// NewAuditStoreWithSchema initializes the schema then returns the store.
func NewAuditStoreWithSchema(ctx context.Context, db *sql.DB) (*AuditStore, error) {
	store := NewAuditStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the audit tables if they do not exist.
func (s *AuditStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS purchase_sagas (
			saga_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_saga_steps (
			id BIGSERIAL PRIMARY KEY,
			saga_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (saga_id) REFERENCES purchase_sagas(saga_id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// StartRun inserts the run row in its initial status.
func (s *AuditStore) StartRun(ctx context.Context, sagaID, user string, productID, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_sagas (saga_id, user_id, product_id, quantity, status)
		VALUES ($1, $2, $3, $4, 'started')`,
		sagaID, user, productID, quantity,
	)
	return err
}

// RecordStep appends one step transition row.
func (s *AuditStore) RecordStep(ctx context.Context, sagaID, step, status, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_saga_steps (saga_id, step, status, detail)
		VALUES ($1, $2, $3, $4)`,
		sagaID, step, status, detail,
	)
	return err
}

// FinishRun updates the run's terminal status.
func (s *AuditStore) FinishRun(ctx context.Context, sagaID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE purchase_sagas
		SET status = $2, updated_at = NOW()
		WHERE saga_id = $1`,
		sagaID, status,
	)
	return err
}
