package ledger

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
)

// Status is the lifecycle position of an event source.
type Status string

const (
	StatusUnseen      Status = "unseen"
	StatusPending     Status = "pending"
	StatusMinted      Status = "minted"
	StatusInvalid     Status = "invalid"
	StatusQuarantined Status = "quarantined"
)

// ValidTransitions defines the allowed lifecycle moves.
// Minted, Invalid and Quarantined are terminal.
var ValidTransitions = map[Status][]Status{
	StatusUnseen:  {StatusPending, StatusInvalid},
	StatusPending: {StatusMinted, StatusInvalid, StatusQuarantined},
}

// CanTransition reports whether a source may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Status returns where a source currently is.
func (s *State) Status(source domain.EventSource) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(source)
}

// statusLocked also enforces that a source sits in at most one partition.
func (s *State) statusLocked(source domain.EventSource) (Status, error) {
	key := source.Key()
	_, inPending := s.pending.Get(key)
	_, inMinted := s.minted.Get(key)
	entry, inInvalid := s.invalid.Get(key)

	found := 0
	for _, in := range []bool{inPending, inMinted, inInvalid} {
		if in {
			found++
		}
	}
	if found > 1 {
		slog.Error("Event source found in several partitions",
			"source", source.String(),
			"pending", inPending,
			"minted", inMinted,
			"invalid", inInvalid,
		)
		return "", fmt.Errorf("%w: %s is in %d partitions", ErrInvariantViolated, source, found)
	}

	switch {
	case inPending:
		return StatusPending, nil
	case inMinted:
		return StatusMinted, nil
	case inInvalid && entry.Reason.IsQuarantined():
		return StatusQuarantined, nil
	case inInvalid:
		return StatusInvalid, nil
	default:
		return StatusUnseen, nil
	}
}

// RecordPending accepts a decoded deposit. It returns false without changing
// anything when the source was already seen in any partition.
func (s *State) RecordPending(ev domain.DepositEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, err := s.recordPendingLocked(ev)
	if err != nil || !inserted {
		return false, err
	}
	deposit := ev
	s.appendLocked(domain.AuditEvent{Type: domain.AuditAcceptedDeposit, Deposit: &deposit})
	return true, nil
}

func (s *State) recordPendingLocked(ev domain.DepositEvent) (bool, error) {
	status, err := s.statusLocked(ev.Source)
	if err != nil {
		return false, err
	}
	if status != StatusUnseen {
		return false, nil
	}
	s.pending.Set(ev.Source.Key(), ev)
	return true, nil
}

// FinalizeMint moves a pending deposit to minted and credits its value to the
// balance. It must only be called after the destination ledger confirmed the mint.
func (s *State) FinalizeMint(
	source domain.EventSource,
	mintIndex amount.MintIndex,
	tokenSymbol string,
) (domain.MintedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.finalizeMintLocked(source, mintIndex, tokenSymbol)
	if err != nil {
		return domain.MintedRecord{}, err
	}
	src, idx := source, mintIndex
	s.appendLocked(domain.AuditEvent{
		Type:        domain.AuditMintedDeposit,
		Source:      &src,
		MintIndex:   &idx,
		TokenSymbol: tokenSymbol,
	})
	return rec, nil
}

func (s *State) finalizeMintLocked(
	source domain.EventSource,
	mintIndex amount.MintIndex,
	tokenSymbol string,
) (domain.MintedRecord, error) {
	status, err := s.statusLocked(source)
	if err != nil {
		return domain.MintedRecord{}, err
	}
	if !CanTransition(status, StatusMinted) {
		return domain.MintedRecord{}, fmt.Errorf("%w: %s is %s", ErrNotPending, source, status)
	}

	key := source.Key()
	ev, _ := s.pending.Get(key)
	balance, ok := s.balance.CheckedAdd(ev.Value)
	if !ok {
		return domain.MintedRecord{}, fmt.Errorf("%w: crediting %s for %s", ErrBalanceOverflow, ev.Value, source)
	}

	rec := domain.MintedRecord{Deposit: ev, MintIndex: mintIndex, TokenSymbol: tokenSymbol}
	s.pending.Delete(key)
	s.minted.Set(key, rec)
	s.balance = balance
	return rec, nil
}

// Quarantine parks a pending deposit whose mint outcome is unknown. Quarantined
// sources are never minted automatically.
func (s *State) Quarantine(source domain.EventSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.quarantineLocked(source); err != nil {
		return err
	}
	src := source
	s.appendLocked(domain.AuditEvent{Type: domain.AuditQuarantinedDeposit, Source: &src})
	return nil
}

func (s *State) quarantineLocked(source domain.EventSource) error {
	status, err := s.statusLocked(source)
	if err != nil {
		return err
	}
	if !CanTransition(status, StatusQuarantined) {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, source, status)
	}
	key := source.Key()
	s.pending.Delete(key)
	s.invalid.Set(key, InvalidEntry{Source: source, Reason: domain.Quarantined()})
	return nil
}

// MarkInvalid records that a source will never be minted. It accepts both unseen
// sources (decode failures) and pending ones. It returns false when the source is
// already invalid or quarantined, and ErrAlreadyMinted for minted sources.
func (s *State) MarkInvalid(source domain.EventSource, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.markInvalidLocked(source, reason)
	if err != nil || !changed {
		return false, err
	}
	src := source
	s.appendLocked(domain.AuditEvent{Type: domain.AuditInvalidDeposit, Source: &src, Reason: reason})
	return true, nil
}

func (s *State) markInvalidLocked(source domain.EventSource, reason string) (bool, error) {
	status, err := s.statusLocked(source)
	if err != nil {
		return false, err
	}
	switch status {
	case StatusMinted:
		return false, fmt.Errorf("%w: %s", ErrAlreadyMinted, source)
	case StatusInvalid, StatusQuarantined:
		return false, nil
	}
	key := source.Key()
	s.pending.Delete(key)
	s.invalid.Set(key, InvalidEntry{Source: source, Reason: domain.InvalidDeposit(reason)})
	return true, nil
}

// Rejection is a source whose log failed validation.
type Rejection struct {
	Source domain.EventSource
	Reason string
}

// RangeCommit reports what CommitRange changed.
type RangeCommit struct {
	Accepted []domain.DepositEvent
	Rejected []Rejection
}

// CommitRange applies the decoded logs of a scraped block range and moves the
// cursor to to, all in one step. Deposits and rejections are applied in order with
// the same rules as RecordPending and MarkInvalid. Either everything is applied or,
// on error, nothing is.
func (s *State) CommitRange(to amount.BlockNumber, deposits []domain.DepositEvent, rejected []Rejection) (RangeCommit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if to.Lt(s.lastScraped) {
		return RangeCommit{}, fmt.Errorf("%w: %s < %s", ErrCursorRegression, to, s.lastScraped)
	}
	for _, ev := range deposits {
		if _, err := s.statusLocked(ev.Source); err != nil {
			return RangeCommit{}, err
		}
	}
	for _, r := range rejected {
		status, err := s.statusLocked(r.Source)
		if err != nil {
			return RangeCommit{}, err
		}
		if status == StatusMinted {
			return RangeCommit{}, fmt.Errorf("%w: %s", ErrAlreadyMinted, r.Source)
		}
	}

	var out RangeCommit
	for _, ev := range deposits {
		inserted, err := s.recordPendingLocked(ev)
		if err != nil {
			return RangeCommit{}, err
		}
		if inserted {
			deposit := ev
			s.appendLocked(domain.AuditEvent{Type: domain.AuditAcceptedDeposit, Deposit: &deposit})
			out.Accepted = append(out.Accepted, ev)
		}
	}
	for _, r := range rejected {
		changed, err := s.markInvalidLocked(r.Source, r.Reason)
		if err != nil {
			return RangeCommit{}, err
		}
		if changed {
			src := r.Source
			s.appendLocked(domain.AuditEvent{Type: domain.AuditInvalidDeposit, Source: &src, Reason: r.Reason})
			out.Rejected = append(out.Rejected, r)
		}
	}
	moved, err := s.advanceLocked(to)
	if err != nil {
		return RangeCommit{}, err
	}
	if moved {
		n := to
		s.appendLocked(domain.AuditEvent{Type: domain.AuditSyncedToBlock, BlockNumber: &n})
	}
	return out, nil
}

// NextSkippedBlock returns the lowest skipped block at or above from.
func (s *State) NextSkippedBlock(from amount.BlockNumber) (amount.BlockNumber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		next  amount.BlockNumber
		found bool
	)
	s.skipped.Ascend(blockKey(from), func(_ string, b amount.BlockNumber) bool {
		next, found = b, true
		return false
	})
	return next, found
}

// RecordWithdrawal debits an externally audited withdrawal from the balance.
func (s *State) RecordWithdrawal(value amount.Value) error {
	if value.Lt(s.cfg.MinimumWithdrawal) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, value, s.cfg.MinimumWithdrawal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recordWithdrawalLocked(value); err != nil {
		return err
	}
	v := value
	s.appendLocked(domain.AuditEvent{Type: domain.AuditWithdrawal, Amount: &v})
	return nil
}

func (s *State) recordWithdrawalLocked(value amount.Value) error {
	balance, ok := s.balance.CheckedSub(value)
	if !ok {
		return fmt.Errorf("%w: balance %s, withdrawal %s", ErrInsufficientBalance, s.balance, value)
	}
	s.balance = balance
	return nil
}

// RecordSkippedBlock remembers a block that cannot be scraped. It returns false if
// the block was already recorded.
func (s *State) RecordSkippedBlock(b amount.BlockNumber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recordSkippedLocked(b) {
		return false
	}
	n := b
	s.appendLocked(domain.AuditEvent{Type: domain.AuditSkippedBlock, BlockNumber: &n})
	return true
}

func (s *State) recordSkippedLocked(b amount.BlockNumber) bool {
	key := blockKey(b)
	if _, ok := s.skipped.Get(key); ok {
		return false
	}
	s.skipped.Set(key, b)
	return true
}

// AdvanceScrapedBlock moves the scrape cursor forward. Moving to the current
// position is a no-op; moving backwards fails with ErrCursorRegression.
func (s *State) AdvanceScrapedBlock(b amount.BlockNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved, err := s.advanceLocked(b)
	if err != nil || !moved {
		return err
	}
	n := b
	s.appendLocked(domain.AuditEvent{Type: domain.AuditSyncedToBlock, BlockNumber: &n})
	return nil
}

func (s *State) advanceLocked(b amount.BlockNumber) (bool, error) {
	switch b.Cmp(s.lastScraped) {
	case -1:
		return false, fmt.Errorf("%w: %s < %s", ErrCursorRegression, b, s.lastScraped)
	case 0:
		return false, nil
	}
	s.lastScraped = b
	return true, nil
}

// UpdateLastObservedBlock records the latest block seen at the configured tag.
// Older observations are ignored.
func (s *State) UpdateLastObservedBlock(b amount.BlockNumber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastObserved != nil && b.Lt(*s.lastObserved) {
		return
	}
	n := b
	s.lastObserved = &n
}

// UpdateBaseFee records the latest base fee estimate.
func (s *State) UpdateBaseFee(fee amount.WeiPerGas) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := fee
	s.baseFee = &f
}
