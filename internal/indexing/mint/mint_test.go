package mint

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/core/principal"
	"github.com/vietddude/minter/internal/infra/storage/memory"
)

var alice = mustPrincipal([]byte{0x1d, 0x9f, 0xac, 0xb1, 0x84, 0xcb, 0xe4, 0x53, 0x02})

func mustPrincipal(raw []byte) principal.Principal {
	p, err := principal.FromSlice(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func deposit(txByte byte, value uint64) domain.DepositEvent {
	return domain.DepositEvent{
		Source: domain.EventSource{
			TxHash:   common.BytesToHash([]byte{txByte}),
			LogIndex: amount.NewLogIndex(0),
		},
		BlockNumber: amount.NewBlockNumber(100 + uint64(txByte)),
		Value:       amount.NewValue(value),
		Principal:   alice,
	}
}

func stateWith(t *testing.T, events ...domain.DepositEvent) *ledger.State {
	t.Helper()
	state := ledger.New(ledger.Config{
		Network:           domain.NetworkPolygonAmoy,
		BlockTag:          domain.NamedTag(domain.BlockTagFinalized),
		FirstScrapedBlock: amount.NewBlockNumber(100),
	})
	for _, ev := range events {
		_, err := state.RecordPending(ev)
		require.NoError(t, err)
	}
	return state
}

func TestMintFinalizesPendingDeposits(t *testing.T) {
	state := stateWith(t, deposit(1, 10), deposit(2, 20))
	dest := NewMemoryLedger("ckPOL")
	audit := memory.NewAuditLog()

	require.NoError(t, New(state, dest, audit).Run(context.Background()))

	assert.Empty(t, state.Pending())
	minted := state.Minted()
	require.Len(t, minted, 2)
	assert.Equal(t, amount.NewMintIndex(0), minted[0].MintIndex)
	assert.Equal(t, amount.NewMintIndex(1), minted[1].MintIndex)
	assert.Equal(t, "ckPOL", minted[0].TokenSymbol)
	assert.Equal(t, amount.NewValue(30), state.Balance())
	assert.Equal(t, amount.NewValue(30), dest.BalanceOf(alice))

	n, err := audit.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Empty(t, state.Unflushed())
}

func TestMintTemporaryFailureLeavesPending(t *testing.T) {
	state := stateWith(t, deposit(1, 10), deposit(2, 20))
	dest := NewMemoryLedger("ckPOL")
	dest.FailNext(Temporary(errors.New("ledger is busy")))

	require.NoError(t, New(state, dest, memory.NewAuditLog()).Run(context.Background()))

	pending := state.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, deposit(1, 10).Source, pending[0].Source)
	assert.Len(t, state.Minted(), 1)
	assert.Empty(t, state.Invalid())

	// The next run retries it.
	require.NoError(t, New(state, dest, memory.NewAuditLog()).Run(context.Background()))
	assert.Empty(t, state.Pending())
	assert.Len(t, state.Minted(), 2)
}

func TestMintUnknownOutcomeQuarantines(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed", Unknown(errors.New("reply lost"))},
		{"untyped", errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := stateWith(t, deposit(1, 10))
			dest := NewMemoryLedger("ckPOL")
			dest.FailNext(tt.err)

			require.NoError(t, New(state, dest, memory.NewAuditLog()).Run(context.Background()))

			assert.Empty(t, state.Pending())
			assert.Empty(t, state.Minted())
			invalid := state.Invalid()
			require.Len(t, invalid, 1)
			assert.True(t, invalid[0].Reason.IsQuarantined())
			assert.True(t, state.Balance().IsZero())
		})
	}
}

func TestMintRespectsTaskToken(t *testing.T) {
	state := stateWith(t, deposit(1, 10))
	release, ok := state.AcquireTask(domain.TaskMint)
	require.True(t, ok)
	defer release()

	err := New(state, NewMemoryLedger("ckPOL"), memory.NewAuditLog()).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrTaskInProgress)
	assert.Len(t, state.Pending(), 1)
}

func TestMintStopsOnCancelledContext(t *testing.T) {
	state := stateWith(t, deposit(1, 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(state, NewMemoryLedger("ckPOL"), memory.NewAuditLog()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, state.Pending(), 1)
}

func TestMemoryLedgerDeduplicatesMemo(t *testing.T) {
	dest := NewMemoryLedger("ckPOL")
	req := Request{To: alice, Amount: amount.NewValue(5), Memo: deposit(1, 5).Source}

	first, err := dest.Mint(context.Background(), req)
	require.NoError(t, err)
	second, err := dest.Mint(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, amount.NewValue(5), dest.BalanceOf(alice))
}

func TestMemoryLedgerOverflowIsTemporary(t *testing.T) {
	dest := NewMemoryLedger("ckPOL")
	_, err := dest.Mint(context.Background(), Request{To: alice, Amount: amount.Max[amount.ValueTag](), Memo: deposit(1, 0).Source})
	require.NoError(t, err)

	_, err = dest.Mint(context.Background(), Request{To: alice, Amount: amount.NewValue(1), Memo: deposit(2, 0).Source})
	require.Error(t, err)
	assert.Equal(t, OutcomeTemporary, OutcomeOf(err))
}

// countingLedger mints every request and records how many audit events were
// persisted before each call.
type countingLedger struct {
	audit     *memory.AuditLog
	next      uint64
	persisted []int
}

func (l *countingLedger) Mint(ctx context.Context, req Request) (amount.MintIndex, error) {
	n, err := l.audit.Count(ctx)
	if err != nil {
		return amount.MintIndex{}, Temporary(err)
	}
	l.persisted = append(l.persisted, n)
	idx := amount.NewMintIndex(l.next)
	l.next++
	return idx, nil
}

func (l *countingLedger) TokenSymbol() string { return "ckPOL" }

type failingAudit struct{}

func (failingAudit) Append(ctx context.Context, events []domain.AuditEvent) error {
	return errors.New("disk full")
}

func TestMintPersistsEachMintBeforeTheNext(t *testing.T) {
	state := stateWith(t, deposit(1, 10), deposit(2, 20), deposit(3, 30))
	audit := memory.NewAuditLog()
	dest := &countingLedger{audit: audit}

	require.NoError(t, New(state, dest, audit).Run(context.Background()))

	// Three accepted deposits, then one more event per completed mint.
	assert.Equal(t, []int{3, 4, 5}, dest.persisted)

	// A restart just before the third mint replays the first two as minted.
	events, err := audit.Load(context.Background())
	require.NoError(t, err)
	replayed, err := ledger.Replay(state.Config(), events[:5])
	require.NoError(t, err)
	assert.Len(t, replayed.Minted(), 2)
	assert.Len(t, replayed.Pending(), 1)
}

func TestMintStopsWhenJournalCannotBePersisted(t *testing.T) {
	state := stateWith(t, deposit(1, 10), deposit(2, 20))
	dest := &countingLedger{audit: memory.NewAuditLog()}

	err := New(state, dest, failingAudit{}).Run(context.Background())
	require.Error(t, err)

	assert.Empty(t, dest.persisted, "no mint may be submitted while the journal is not durable")
	assert.Len(t, state.Pending(), 2)
}

func TestMintQuarantinesUnrecordableMint(t *testing.T) {
	whale := deposit(3, 0)
	whale.Value = amount.Max[amount.ValueTag]()
	// Minting 2 first leaves no room in the balance to credit 3.
	state := stateWith(t, deposit(2, 1), whale)

	audit := memory.NewAuditLog()
	dest := &countingLedger{audit: audit}
	require.NoError(t, New(state, dest, audit).Run(context.Background()))

	assert.Equal(t, []int{2, 3}, dest.persisted)
	assert.Empty(t, state.Pending())
	require.Len(t, state.Minted(), 1)
	invalid := state.Invalid()
	require.Len(t, invalid, 1)
	assert.Equal(t, whale.Source, invalid[0].Source)
	assert.True(t, invalid[0].Reason.IsQuarantined())
	assert.Equal(t, amount.NewValue(1), state.Balance())
	assert.Empty(t, state.Unflushed())

	// A later run never resubmits it.
	require.NoError(t, New(state, dest, audit).Run(context.Background()))
	assert.Len(t, dest.persisted, 2)
}
