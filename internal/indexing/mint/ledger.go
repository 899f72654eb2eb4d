package mint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/principal"
)

// Request asks the destination ledger to mint Amount to To. Memo identifies the
// deposit and lets the ledger deduplicate retries.
type Request struct {
	To     principal.Principal
	Amount amount.Value
	Memo   domain.EventSource
}

// Ledger is the destination token ledger.
type Ledger interface {
	// Mint submits a mint and returns its index on the ledger. Failures should be
	// reported as *Error so that the caller knows whether the mint may have happened.
	Mint(ctx context.Context, req Request) (amount.MintIndex, error)

	// TokenSymbol returns the symbol of the minted token
	TokenSymbol() string
}

// Outcome tells what is known about a failed mint.
type Outcome int

const (
	// OutcomeUnknown means the mint may or may not have been applied.
	OutcomeUnknown Outcome = iota
	// OutcomeTemporary means the mint was definitely not applied and can be retried.
	OutcomeTemporary
)

func (o Outcome) String() string {
	if o == OutcomeTemporary {
		return "temporary"
	}
	return "unknown"
}

// Error is a failed mint.
type Error struct {
	Outcome Outcome
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mint failed (%s): %v", e.Outcome, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary wraps err as a failure that left the ledger untouched.
func Temporary(err error) *Error {
	return &Error{Outcome: OutcomeTemporary, Err: err}
}

// Unknown wraps err as a failure with an unknown effect.
func Unknown(err error) *Error {
	return &Error{Outcome: OutcomeUnknown, Err: err}
}

// OutcomeOf classifies an error returned by Ledger.Mint. Errors that are not an
// *Error have an unknown outcome.
func OutcomeOf(err error) Outcome {
	var e *Error
	if errors.As(err, &e) {
		return e.Outcome
	}
	return OutcomeUnknown
}

// MemoryLedger is an in-process Ledger for development and tests. Repeated
// requests with the same memo return the first index without minting again.
type MemoryLedger struct {
	symbol string

	mu       sync.Mutex
	next     amount.MintIndex
	balances map[principal.Principal]amount.Value
	byMemo   map[domain.EventSource]amount.MintIndex
	failures []error
}

func NewMemoryLedger(symbol string) *MemoryLedger {
	return &MemoryLedger{
		symbol:   symbol,
		balances: make(map[principal.Principal]amount.Value),
		byMemo:   make(map[domain.EventSource]amount.MintIndex),
	}
}

func (l *MemoryLedger) TokenSymbol() string {
	return l.symbol
}

// FailNext makes the next Mint calls return errs, in order.
func (l *MemoryLedger) FailNext(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, errs...)
}

func (l *MemoryLedger) Mint(ctx context.Context, req Request) (amount.MintIndex, error) {
	if err := ctx.Err(); err != nil {
		return amount.MintIndex{}, Temporary(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.failures) > 0 {
		err := l.failures[0]
		l.failures = l.failures[1:]
		return amount.MintIndex{}, err
	}
	if idx, ok := l.byMemo[req.Memo]; ok {
		return idx, nil
	}

	balance, ok := l.balances[req.To].CheckedAdd(req.Amount)
	if !ok {
		return amount.MintIndex{}, Temporary(fmt.Errorf("balance of %s overflows", req.To))
	}
	next, ok := l.next.CheckedIncrement()
	if !ok {
		return amount.MintIndex{}, Temporary(fmt.Errorf("mint index space exhausted"))
	}

	idx := l.next
	l.next = next
	l.balances[req.To] = balance
	l.byMemo[req.Memo] = idx
	return idx, nil
}

// BalanceOf returns the minted balance of an account.
func (l *MemoryLedger) BalanceOf(p principal.Principal) amount.Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[p]
}
