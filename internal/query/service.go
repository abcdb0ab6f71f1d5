// Package query provides read-only access to the audit log in Postgres.
// Live ledger state is served by the engine; this package serves history.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service reads audit events written by the persistence worker.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// AuditEvent is one applied ledger operation as recorded in the audit log.
type AuditEvent struct {
	Sequence     int64           `json:"sequence"`
	Op           string          `json:"op"`
	Account      uuid.UUID       `json:"account"`
	Counterparty *uuid.UUID      `json:"counterparty,omitempty"`
	Amount       int64           `json:"amount"`
	Interest     int64           `json:"interest"`
	Fee          int64           `json:"fee"`
	Collateral   int64           `json:"collateral"`
	LoanClosed   bool            `json:"loan_closed"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// EventFilter narrows an audit history query. Zero values mean "no filter".
type EventFilter struct {
	Account       *uuid.UUID
	Op            string
	AfterSequence *int64 // cursor: return events with sequence < AfterSequence
	Limit         int
}

// Events returns audit history, newest first, with cursor-based pagination.
func (s *Service) Events(ctx context.Context, f EventFilter) ([]AuditEvent, error) {
	query := `
		SELECT sequence, op, account, counterparty, amount, interest, fee,
		       collateral, loan_closed, payload, timestamp
		FROM ledger_log.events
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if f.Account != nil {
		query += fmt.Sprintf(" AND account = $%d", argIdx)
		args = append(args, *f.Account)
		argIdx++
	}

	if f.Op != "" {
		query += fmt.Sprintf(" AND op = $%d", argIdx)
		args = append(args, f.Op)
		argIdx++
	}

	if f.AfterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *f.AfterSequence)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var cp uuid.NullUUID
		if err := rows.Scan(
			&e.Sequence, &e.Op, &e.Account, &cp, &e.Amount,
			&e.Interest, &e.Fee, &e.Collateral, &e.LoanClosed, &e.Payload,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		if cp.Valid {
			e.Counterparty = &cp.UUID
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// LatestSequence returns the highest persisted sequence, or zero for an
// empty log. Callers use it to gauge audit-log freshness against the
// engine's live sequence.
func (s *Service) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM ledger_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
