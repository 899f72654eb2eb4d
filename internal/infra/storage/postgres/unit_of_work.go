package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/indexing/metrics"
)

// UnitOfWork bundles persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

const insertAuditEventsQuery = `
	INSERT INTO audit_events (network, event_type, source, block_number, amount, payload, recorded_at)
	SELECT $1, t.event_type, NULLIF(t.source, ''), NULLIF(t.block_number, '')::numeric,
		NULLIF(t.amount, '')::numeric, t.payload::jsonb, t.recorded_at::timestamptz
	FROM unnest($2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[])
		AS t(event_type, source, block_number, amount, payload, recorded_at)
`

// auditColumns holds one slice per column for an unnest batch insert.
type auditColumns struct {
	types        []string
	sources      []string
	blockNumbers []string
	amounts      []string
	payloads     []string
	recordedAts  []string
}

func newAuditColumns(events []domain.AuditEvent) (auditColumns, error) {
	c := auditColumns{
		types:        make([]string, len(events)),
		sources:      make([]string, len(events)),
		blockNumbers: make([]string, len(events)),
		amounts:      make([]string, len(events)),
		payloads:     make([]string, len(events)),
		recordedAts:  make([]string, len(events)),
	}

	for i, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return auditColumns{}, fmt.Errorf("failed to encode audit event %d: %w", i, err)
		}
		c.types[i] = string(e.Type)
		if src, ok := e.SourceKey(); ok {
			c.sources[i] = src.String()
		}
		if e.Deposit != nil {
			c.blockNumbers[i] = e.Deposit.BlockNumber.CanonicalString()
			c.amounts[i] = e.Deposit.Value.CanonicalString()
		}
		if e.BlockNumber != nil {
			c.blockNumbers[i] = e.BlockNumber.CanonicalString()
		}
		if e.Amount != nil {
			c.amounts[i] = e.Amount.CanonicalString()
		}
		c.payloads[i] = string(payload)
		c.recordedAts[i] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return c, nil
}

// SaveAuditEvents inserts a batch of audit events with a single multi-row INSERT.
// Rows keep the order of events, so seq order is append order.
func (u *UnitOfWork) SaveAuditEvents(ctx context.Context, network string, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}

	c, err := newAuditColumns(events)
	if err != nil {
		return err
	}

	metrics.DBBatchSize.WithLabelValues("save_audit_events").Observe(float64(len(events)))

	_, err = u.tx.ExecContext(ctx, insertAuditEventsQuery,
		network,
		pq.Array(c.types),
		pq.Array(c.sources),
		pq.Array(c.blockNumbers),
		pq.Array(c.amounts),
		pq.Array(c.payloads),
		pq.Array(c.recordedAts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit events: %w", err)
	}
	return nil
}
