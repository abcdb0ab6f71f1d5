package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/engine"
)

// SnapshotManager handles creating and loading state snapshots for
// recovery. A snapshot holds the complete ledger state (lender and borrower
// records, pool totals, sequence counter), so restart is snapshot-only:
// audit events are never replayed, because replay would re-trigger the
// external asset transfers the operations already performed.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and on graceful shutdown.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap engine.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotState

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO ledger_log.snapshots
			(snapshot_id, sequence, data, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $5
	`, snapshotID, snap.Sequence, data, formatVersion, len(data), time.Now().UTC())

	return len(data), err
}

// LoadLatestSnapshot loads the most recent snapshot. Returns ok=false on a
// cold start with no snapshot.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (engine.SnapshotState, bool, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM ledger_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var snap engine.SnapshotState
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return snap, false, nil
		}
		return snap, false, fmt.Errorf("load snapshot: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// GetLatestSequence returns the highest sequence in the audit log. Used on
// startup to warn when the log runs ahead of the restored snapshot.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM ledger_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty audit log
	}
	return seq.Int64, nil
}
