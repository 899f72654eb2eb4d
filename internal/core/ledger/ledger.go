// Package ledger holds the authoritative state of the minter.
//
// # Purpose
//
// Every deposit the scraper decodes ends up here, keyed by its EventSource, in
// exactly one of three partitions:
//   - pending: accepted, waiting to be minted
//   - minted: minted on the destination ledger, balance credited
//   - invalid: never to be minted (invalid deposit or quarantined)
//
// # Key Features
//
// Lifecycle - Each source moves Unseen → Pending → {Minted, Invalid} and never back:
//
//	RecordPending(ev)          Unseen → Pending (repeat observations are no-ops)
//	FinalizeMint(src, idx, s)  Pending → Minted, credits the balance
//	Quarantine(src)            Pending → Quarantined, terminal, never retried
//	MarkInvalid(src, reason)   Unseen|Pending → Invalid
//	CommitRange(to, evs, rej)  a scraped range's deposits, rejections and cursor in one step
//
// Scrape cursor - AdvanceScrapedBlock only moves forward; skipped blocks are
// remembered so a restarted scrape does not fetch them again.
//
// Task tokens - TryAcquireTask fails fast when a task of the same kind is in flight.
//
// Audit log - Every mutation appends an AuditEvent to a journal. Flush persists the
// journal; Replay rebuilds a State from the persisted log on startup.
//
// # Concurrency
//
// A State has a single owner. Each operation is one atomic commit step under the
// State's mutex. Callers must not hold results across collaborator calls and expect
// them to be current: another task kind may have committed in between.
//
// # Package Structure
//
//   - ledger.go    - State, configuration and read accessors
//   - lifecycle.go - Event lifecycle state machine and mutating operations
//   - tasks.go     - Task tokens
//   - journal.go   - Audit journal, Flush and Replay
package ledger

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/btree"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/principal"
)

var (
	// ErrInvariantViolated means a source was found in more than one partition.
	// The state can no longer be trusted and processing must stop.
	ErrInvariantViolated = errors.New("ledger invariant violated")

	ErrNotPending          = errors.New("event source is not pending")
	ErrAlreadyMinted       = errors.New("event source is already minted")
	ErrCursorRegression    = errors.New("scraped block number cannot decrease")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("amount is below the minimum withdrawal amount")
	ErrCorruptAuditLog     = errors.New("audit log cannot be replayed")
)

// Config holds the values a State is initialised with.
type Config struct {
	Network           domain.Network
	EcdsaKeyName      string
	LedgerID          principal.Principal
	HelperContract    *common.Address
	MinimumWithdrawal amount.Value
	BlockTag          domain.BlockTag
	FirstScrapedBlock amount.BlockNumber
}

// InvalidEntry is a source in the invalid partition together with its reason.
type InvalidEntry struct {
	Source domain.EventSource
	Reason domain.InvalidReason
}

// State is the minter's ledger. Create it with New or Replay.
type State struct {
	mu      sync.Mutex
	flushMu sync.Mutex

	cfg Config

	lastScraped  amount.BlockNumber
	lastObserved *amount.BlockNumber
	baseFee      *amount.WeiPerGas
	balance      amount.Value

	pending *btree.Map[string, domain.DepositEvent]
	minted  *btree.Map[string, domain.MintedRecord]
	invalid *btree.Map[string, InvalidEntry]
	skipped *btree.Map[string, amount.BlockNumber]

	tasks        map[domain.TaskKind]bool
	httpRequests uint64

	journal []domain.AuditEvent
	now     func() time.Time
}

// New creates an empty state. The scrape cursor starts just before cfg.FirstScrapedBlock.
func New(cfg Config) *State {
	last, ok := cfg.FirstScrapedBlock.CheckedDecrement()
	if !ok {
		last = amount.Zero[amount.BlockNumberTag]()
	}
	return &State{
		cfg:         cfg,
		lastScraped: last,
		pending:     btree.NewMap[string, domain.DepositEvent](32),
		minted:      btree.NewMap[string, domain.MintedRecord](32),
		invalid:     btree.NewMap[string, InvalidEntry](32),
		skipped:     btree.NewMap[string, amount.BlockNumber](32),
		tasks:       make(map[domain.TaskKind]bool),
		now:         time.Now,
	}
}

func (s *State) Config() Config {
	return s.cfg
}

func (s *State) LastScrapedBlock() amount.BlockNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScraped
}

// LastObservedBlock returns the latest block seen at the configured tag, if any.
func (s *State) LastObservedBlock() (amount.BlockNumber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastObserved == nil {
		return amount.BlockNumber{}, false
	}
	return *s.lastObserved, true
}

func (s *State) BaseFee() (amount.WeiPerGas, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseFee == nil {
		return amount.WeiPerGas{}, false
	}
	return *s.baseFee, true
}

func (s *State) Balance() amount.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Pending returns the pending deposits ordered by source.
func (s *State) Pending() []domain.DepositEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DepositEvent, 0, s.pending.Len())
	s.pending.Scan(func(_ string, ev domain.DepositEvent) bool {
		out = append(out, ev)
		return true
	})
	return out
}

// Minted returns the minted records ordered by source.
func (s *State) Minted() []domain.MintedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MintedRecord, 0, s.minted.Len())
	s.minted.Scan(func(_ string, rec domain.MintedRecord) bool {
		out = append(out, rec)
		return true
	})
	return out
}

// Invalid returns the invalid and quarantined sources ordered by source.
func (s *State) Invalid() []InvalidEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InvalidEntry, 0, s.invalid.Len())
	s.invalid.Scan(func(_ string, e InvalidEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// SkippedBlocks returns the skipped block numbers in ascending order.
func (s *State) SkippedBlocks() []amount.BlockNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]amount.BlockNumber, 0, s.skipped.Len())
	s.skipped.Scan(func(_ string, b amount.BlockNumber) bool {
		out = append(out, b)
		return true
	})
	return out
}

func (s *State) IsSkippedBlock(b amount.BlockNumber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.skipped.Get(blockKey(b))
	return ok
}

// NextRequestID increments and returns the HTTP request counter used to correlate
// provider requests and responses in logs.
func (s *State) NextRequestID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpRequests++
	return s.httpRequests
}

// Summary is a point-in-time view of the state for health reporting.
type Summary struct {
	Network           string   `json:"network"`
	LastScrapedBlock  string   `json:"last_scraped_block"`
	LastObservedBlock string   `json:"last_observed_block,omitempty"`
	Balance           string   `json:"balance"`
	Pending           int      `json:"pending"`
	Minted            int      `json:"minted"`
	Invalid           int      `json:"invalid"`
	Quarantined       int      `json:"quarantined"`
	SkippedBlocks     int      `json:"skipped_blocks"`
	ActiveTasks       []string `json:"active_tasks"`
	UnflushedEvents   int      `json:"unflushed_events"`
}

func (s *State) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Network:          s.cfg.Network.String(),
		LastScrapedBlock: s.lastScraped.CanonicalString(),
		Balance:          s.balance.CanonicalString(),
		Pending:          s.pending.Len(),
		Minted:           s.minted.Len(),
		SkippedBlocks:    s.skipped.Len(),
		ActiveTasks:      []string{},
		UnflushedEvents:  len(s.journal),
	}
	if s.lastObserved != nil {
		sum.LastObservedBlock = s.lastObserved.CanonicalString()
	}
	s.invalid.Scan(func(_ string, e InvalidEntry) bool {
		if e.Reason.IsQuarantined() {
			sum.Quarantined++
		} else {
			sum.Invalid++
		}
		return true
	})
	for _, kind := range domain.TaskKinds {
		if s.tasks[kind] {
			sum.ActiveTasks = append(sum.ActiveTasks, string(kind))
		}
	}
	return sum
}

// blockKey is fixed-width so that key order is numeric order.
func blockKey(b amount.BlockNumber) string {
	raw := b.Bytes32()
	return hex.EncodeToString(raw[:])
}
