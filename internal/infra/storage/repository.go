package storage

import (
	"context"
	"errors"

	"github.com/vietddude/minter/internal/core/domain"
)

var (
	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("audit log is closed")
)

// AuditLog is the durable, append-only record of ledger state changes.
// Load must return events in the order they were appended.
type AuditLog interface {
	// Append persists a batch of events atomically
	Append(ctx context.Context, events []domain.AuditEvent) error

	// Load returns every persisted event
	Load(ctx context.Context) ([]domain.AuditEvent, error)

	// Count returns the number of persisted events
	Count(ctx context.Context) (int, error)

	Close() error
}

// Kind selects an AuditLog implementation.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindPostgres Kind = "postgres"
	KindBadger   Kind = "badger"
)
