package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/infra/storage"
)

// AuditRepo implements storage.AuditLog using PostgreSQL. Rows are scoped by
// network so several minters can share one database.
type AuditRepo struct {
	db      *DB
	network string
}

// NewAuditRepo creates a new PostgreSQL audit log repository.
func NewAuditRepo(db *DB, network domain.Network) *AuditRepo {
	return &AuditRepo{db: db, network: string(network.Code())}
}

// Append writes the batch in one transaction.
func (r *AuditRepo) Append(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.SaveAuditEvents(ctx, r.network, events); err != nil {
		return err
	}
	return uow.Commit()
}

type auditRow struct {
	Seq     int64  `db:"seq"`
	Payload []byte `db:"payload"`
}

// Load returns the network's events in append order.
func (r *AuditRepo) Load(ctx context.Context) ([]domain.AuditEvent, error) {
	query := `SELECT seq, payload FROM audit_events WHERE network = $1 ORDER BY seq ASC`

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, r.network); err != nil {
		return nil, fmt.Errorf("failed to load audit events: %w", err)
	}

	events := make([]domain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		var e domain.AuditEvent
		if err := json.Unmarshal(row.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit event seq=%d: %w", row.Seq, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *AuditRepo) Count(ctx context.Context) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM audit_events WHERE network = $1`
	if err := r.db.GetContext(ctx, &n, query, r.network); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}

func (r *AuditRepo) Close() error {
	return r.db.Close()
}

var _ storage.AuditLog = (*AuditRepo)(nil)
