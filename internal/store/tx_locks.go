package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	sweepLockKey  int64 = 0x70756c7361725f73 // "pulsar_s"
	schemaLockKey int64 = 0x70756c7361725f64 // "pulsar_d"
)

// acquireSweepLock serializes bulk expiry deletes across instances sharing
// the database. The lock is released when tx ends.
func acquireSweepLock(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, sweepLockKey); err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	return nil
}

func acquireSchemaLock(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	return nil
}
