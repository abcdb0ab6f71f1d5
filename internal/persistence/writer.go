package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"LoanLedger/internal/event"
)

// AuditLogWriter writes ledger notifications to Postgres using batch
// inserts. Multi-row INSERT keeps the writer portable; switch to pgx
// CopyFrom if throughput ever demands it.
type AuditLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in ledger_log.events.
type EventRow struct {
	Sequence     int64
	Op           string
	Account      string
	Counterparty *string
	Amount       int64
	Interest     int64
	Fee          int64
	Collateral   int64
	LoanClosed   bool
	Payload      []byte // JSON-encoded notification
	Timestamp    time.Time
}

// RowFromNotification flattens a notification into its audit-log row.
func RowFromNotification(n *event.Notification) EventRow {
	row := EventRow{
		Sequence:   n.Sequence,
		Op:         n.Op.String(),
		Account:    n.Account.String(),
		Amount:     n.Amount,
		Interest:   n.Interest,
		Fee:        n.Fee,
		Collateral: n.Collateral,
		LoanClosed: n.LoanClosed,
		Payload:    MarshalPayload(n),
		Timestamp:  n.Timestamp,
	}
	if n.Counterparty != uuid.Nil {
		s := n.Counterparty.String()
		row.Counterparty = &s
	}
	return row
}

func NewAuditLogWriter(db *sql.DB) *AuditLogWriter {
	return &AuditLogWriter{db: db}
}

// WriteEventBatch writes a batch of rows to ledger_log.events using
// multi-row INSERT. Conflicting sequences are skipped, so re-flushing a
// partially written batch is safe.
func (w *AuditLogWriter) WriteEventBatch(ctx context.Context, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO ledger_log.events
		(sequence, op, account, counterparty, amount, interest, fee, collateral, loan_closed, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*11)

	for i, e := range events {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			e.Sequence, e.Op, e.Account, e.Counterparty, e.Amount, e.Interest,
			e.Fee, e.Collateral, e.LoanClosed, e.Payload, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload is a convenience wrapper for JSON-encoding notifications.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
