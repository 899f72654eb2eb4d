package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/vietddude/minter/internal/core/domain"
)

// AuditAppender persists audit events in order.
type AuditAppender interface {
	Append(ctx context.Context, events []domain.AuditEvent) error
}

func (s *State) appendLocked(e domain.AuditEvent) {
	e.Timestamp = s.now().UTC()
	s.journal = append(s.journal, e)
}

// Unflushed returns a copy of the audit events not yet persisted.
func (s *State) Unflushed() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.journal)
}

// Flush persists the journal and drops the persisted prefix. It returns the number
// of events persisted. On failure the journal is kept and the next Flush retries it.
func (s *State) Flush(ctx context.Context, log AuditAppender) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := slices.Clone(s.journal)
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := log.Append(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to append %d audit events: %w", len(batch), err)
	}

	s.mu.Lock()
	s.journal = s.journal[len(batch):]
	s.mu.Unlock()
	return len(batch), nil
}

// Replay rebuilds a State by applying a persisted audit log to a fresh state.
// Every event must apply cleanly; anything else means the log is corrupt.
func Replay(cfg Config, events []domain.AuditEvent) (*State, error) {
	s := New(cfg)
	for i, e := range events {
		if err := s.apply(e); err != nil {
			return nil, fmt.Errorf("%w: event %d (%s): %w", ErrCorruptAuditLog, i, e.Type, err)
		}
	}
	return s, nil
}

func (s *State) apply(e domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case domain.AuditAcceptedDeposit:
		if e.Deposit == nil {
			return fmt.Errorf("missing deposit")
		}
		inserted, err := s.recordPendingLocked(*e.Deposit)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("duplicate deposit %s", e.Deposit.Source)
		}
	case domain.AuditMintedDeposit:
		if e.Source == nil || e.MintIndex == nil {
			return fmt.Errorf("missing source or mint index")
		}
		if _, err := s.finalizeMintLocked(*e.Source, *e.MintIndex, e.TokenSymbol); err != nil {
			return err
		}
	case domain.AuditQuarantinedDeposit:
		if e.Source == nil {
			return fmt.Errorf("missing source")
		}
		return s.quarantineLocked(*e.Source)
	case domain.AuditInvalidDeposit:
		if e.Source == nil {
			return fmt.Errorf("missing source")
		}
		if _, err := s.markInvalidLocked(*e.Source, e.Reason); err != nil {
			return err
		}
	case domain.AuditSkippedBlock:
		if e.BlockNumber == nil {
			return fmt.Errorf("missing block number")
		}
		s.recordSkippedLocked(*e.BlockNumber)
	case domain.AuditSyncedToBlock:
		if e.BlockNumber == nil {
			return fmt.Errorf("missing block number")
		}
		if _, err := s.advanceLocked(*e.BlockNumber); err != nil {
			return err
		}
	case domain.AuditWithdrawal:
		if e.Amount == nil {
			return fmt.Errorf("missing amount")
		}
		return s.recordWithdrawalLocked(*e.Amount)
	default:
		return fmt.Errorf("unknown audit event type %q", e.Type)
	}
	return nil
}
