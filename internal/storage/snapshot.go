package storage

import (
	"context"
	"database/sql"
	"errors"
)

// SaveSnapshot upserts the serialized index blob for an owner. Multiple
// debounced writes within one process overwrite each other, last state
// wins.
func (db *DB) SaveSnapshot(ctx context.Context, ownerID string, blob []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO index_snapshots (owner_id, blob, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (owner_id) DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP
	`, ownerID, blob)
	return err
}

// LoadSnapshot returns the persisted blob for an owner, or nil when no
// snapshot has been written yet.
func (db *DB) LoadSnapshot(ctx context.Context, ownerID string) ([]byte, error) {
	var blob []byte
	err := db.QueryRowContext(ctx,
		"SELECT blob FROM index_snapshots WHERE owner_id = ?", ownerID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// DeleteSnapshot removes an owner's snapshot. Absent rows are a no-op.
func (db *DB) DeleteSnapshot(ctx context.Context, ownerID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM index_snapshots WHERE owner_id = ?", ownerID)
	return err
}
