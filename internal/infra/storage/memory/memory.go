package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/infra/storage"
)

// AuditLog keeps the audit log in process memory. It is lost on restart and is
// meant for development and tests.
type AuditLog struct {
	events []domain.AuditEvent
	closed bool
	mu     sync.RWMutex
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Append(ctx context.Context, events []domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return storage.ErrClosed
	}
	l.events = append(l.events, events...)
	return nil
}

func (l *AuditLog) Load(ctx context.Context) ([]domain.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, storage.ErrClosed
	}
	return slices.Clone(l.events), nil
}

func (l *AuditLog) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events), nil
}

func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

var _ storage.AuditLog = (*AuditLog)(nil)
