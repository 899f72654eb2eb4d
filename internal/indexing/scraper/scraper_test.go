package scraper

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/indexing/consensus"
	"github.com/vietddude/minter/internal/indexing/decoder"
	"github.com/vietddude/minter/internal/infra/chain"
	"github.com/vietddude/minter/internal/infra/rpc/provider"
	"github.com/vietddude/minter/internal/infra/storage/memory"
)

var contract = common.HexToAddress("0x907b6efc1a398fd88a8161b3ca02eec8eaf72ca1")

type blockRange struct{ from, to uint64 }

// fakeFetcher serves a fixed block and answers eth_getLogs through logsFn.
type fakeFetcher struct {
	block  consensus.Outcome[domain.Block]
	logsFn func(from, to uint64) consensus.Outcome[[]decoder.LogEntry]

	mu    sync.Mutex
	calls []blockRange
}

func (f *fakeFetcher) GetBlockByNumber(ctx context.Context, tag domain.BlockTag) consensus.Outcome[domain.Block] {
	return f.block
}

func (f *fakeFetcher) GetLogs(ctx context.Context, args chain.GetLogsArgs) consensus.Outcome[[]decoder.LogEntry] {
	from, _ := args.FromBlock.Number.Uint64()
	to, _ := args.ToBlock.Number.Uint64()
	f.mu.Lock()
	f.calls = append(f.calls, blockRange{from, to})
	f.mu.Unlock()
	return f.logsFn(from, to)
}

func (f *fakeFetcher) Network() domain.Network { return domain.NetworkPolygonAmoy }

type fakeRecorder struct {
	recorded []blockRange
	resolved []uint64
}

func (r *fakeRecorder) RecordInconsistent(ctx context.Context, start, end uint64, answers map[string]string) error {
	r.recorded = append(r.recorded, blockRange{start, end})
	return nil
}

func (r *fakeRecorder) ResolveThrough(ctx context.Context, block uint64) error {
	r.resolved = append(r.resolved, block)
	return nil
}

func consistent[T any](v T) consensus.Outcome[T] {
	return consensus.Reconcile(
		[]consensus.Result[T]{{Provider: "a", Value: v}, {Provider: "b", Value: v}},
		func(T) (string, error) { return "", nil },
	)
}

func failed[T any](err error) consensus.Outcome[T] {
	return consensus.Reconcile(
		[]consensus.Result[T]{{Provider: "a", Err: err}, {Provider: "b", Err: err}},
		func(T) (string, error) { return "", nil },
	)
}

func blockAt(n uint64) consensus.Outcome[domain.Block] {
	return consistent(domain.Block{Number: amount.NewBlockNumber(n)})
}

func newState() *ledger.State {
	return ledger.New(ledger.Config{
		Network:           domain.NetworkPolygonAmoy,
		HelperContract:    &contract,
		BlockTag:          domain.NamedTag(domain.BlockTagFinalized),
		FirstScrapedBlock: amount.NewBlockNumber(100),
	})
}

func depositEntry(block, logIndex int64, txByte byte) decoder.LogEntry {
	txHash := common.BytesToHash([]byte{txByte})
	return decoder.LogEntry{
		Address: contract,
		Topics: []string{
			decoder.DepositTopic.Hex(),
			"0x000000000000000000000000dd2851cdd40ae6536831558dd46db62fac7a844d",
			"0x1d9facb184cbe453de4841b6b9d9cc95bfc065344e485789b550544529020000",
		},
		Data:             "0x0000000000000000000000000000000000000000000000000de0b6b3a7640000",
		BlockNumber:      (*hexutil.Big)(big.NewInt(block)),
		TransactionHash:  &txHash,
		TransactionIndex: (*hexutil.Big)(big.NewInt(0)),
		LogIndex:         (*hexutil.Big)(big.NewInt(logIndex)),
	}
}

func TestScrapeWalksRangesToObservedBlock(t *testing.T) {
	state := newState()
	audit := memory.NewAuditLog()
	recorder := &fakeRecorder{}

	removed := depositEntry(150, 2, 0xbb)
	removed.Removed = true

	fetcher := &fakeFetcher{
		block: blockAt(1200),
		logsFn: func(from, to uint64) consensus.Outcome[[]decoder.LogEntry] {
			if from == 100 {
				return consistent([]decoder.LogEntry{depositEntry(120, 1, 0xaa), removed})
			}
			return consistent([]decoder.LogEntry{})
		},
	}

	s := New(Config{MaxBlockSpread: 500}, state, fetcher, audit, recorder)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []blockRange{{100, 599}, {600, 1099}, {1100, 1200}}, fetcher.calls)
	assert.Equal(t, amount.NewBlockNumber(1200), state.LastScrapedBlock())
	observed, ok := state.LastObservedBlock()
	require.True(t, ok)
	assert.Equal(t, amount.NewBlockNumber(1200), observed)

	require.Len(t, state.Pending(), 1)
	assert.Equal(t, amount.NewValue(1_000_000_000_000_000_000), state.Pending()[0].Value)
	require.Len(t, state.Invalid(), 1)
	assert.Contains(t, state.Invalid()[0].Reason.Explanation, "removed from the chain")

	assert.Equal(t, []uint64{599, 1099, 1200}, recorder.resolved)
	assert.Empty(t, state.Unflushed())
	n, err := audit.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n) // accepted, invalid, three cursor moves

	// A second run with nothing new is a no-op.
	fetcher.calls = nil
	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, fetcher.calls)
	assert.Len(t, state.Pending(), 1)
}

func TestScrapeStopsOnPendingLogEntry(t *testing.T) {
	state := newState()
	audit := memory.NewAuditLog()
	pending := depositEntry(150, 3, 0xcc)
	pending.BlockNumber = nil

	fetcher := &fakeFetcher{
		block: blockAt(300),
		logsFn: func(from, to uint64) consensus.Outcome[[]decoder.LogEntry] {
			return consistent([]decoder.LogEntry{depositEntry(120, 1, 0xaa), depositEntry(130, 2, 0xbb), pending})
		},
	}

	s := New(Config{}, state, fetcher, audit, nil)
	err := s.Run(context.Background())
	require.ErrorIs(t, err, decoder.ErrPendingLogEntry)

	// Nothing from the range is committed until every entry is final.
	assert.Equal(t, amount.NewBlockNumber(99), state.LastScrapedBlock())
	assert.Empty(t, state.Pending())
	assert.Empty(t, state.Invalid())
	n, err := audit.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	// Once the entry is final the whole range commits.
	final := depositEntry(150, 3, 0xcc)
	fetcher.logsFn = func(from, to uint64) consensus.Outcome[[]decoder.LogEntry] {
		return consistent([]decoder.LogEntry{depositEntry(120, 1, 0xaa), depositEntry(130, 2, 0xbb), final})
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, amount.NewBlockNumber(300), state.LastScrapedBlock())
	assert.Len(t, state.Pending(), 3)
}

func TestScrapeInconsistentLogsKeepCursor(t *testing.T) {
	state := newState()
	recorder := &fakeRecorder{}
	fetcher := &fakeFetcher{
		block: blockAt(300),
		logsFn: func(from, to uint64) consensus.Outcome[[]decoder.LogEntry] {
			return consensus.Reconcile([]consensus.Result[[]decoder.LogEntry]{
				{Provider: "a", Value: []decoder.LogEntry{depositEntry(120, 1, 0xaa)}},
				{Provider: "b", Value: []decoder.LogEntry{}},
			}, decoder.Fingerprint)
		},
	}

	s := New(Config{}, state, fetcher, memory.NewAuditLog(), recorder)
	err := s.Run(context.Background())

	var inconsistent *consensus.InconsistentError
	require.ErrorAs(t, err, &inconsistent)
	assert.Equal(t, amount.NewBlockNumber(99), state.LastScrapedBlock())
	assert.Empty(t, state.Pending())
	assert.Equal(t, []blockRange{{100, 300}}, recorder.recorded)
}

func TestScrapeHalvesRangeAndSkipsOversizedBlock(t *testing.T) {
	state := newState()
	fetcher := &fakeFetcher{
		block: blockAt(200),
		logsFn: func(from, to uint64) consensus.Outcome[[]decoder.LogEntry] {
			if from <= 150 && 150 <= to {
				return failed[[]decoder.LogEntry](provider.ErrResponseTooLarge)
			}
			return consistent([]decoder.LogEntry{})
		},
	}

	s := New(Config{}, state, fetcher, memory.NewAuditLog(), nil)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, amount.NewBlockNumber(200), state.LastScrapedBlock())
	assert.Equal(t, []amount.BlockNumber{amount.NewBlockNumber(150)}, state.SkippedBlocks())
	assert.Equal(t, blockRange{100, 200}, fetcher.calls[0])
	assert.Equal(t, blockRange{100, 150}, fetcher.calls[1])
	assert.Equal(t, blockRange{100, 125}, fetcher.calls[2])
	assert.Contains(t, fetcher.calls, blockRange{150, 150})
	assert.Equal(t, blockRange{151, 200}, fetcher.calls[len(fetcher.calls)-1])
}

func TestScrapeBlockFetchFailure(t *testing.T) {
	state := newState()
	fetcher := &fakeFetcher{
		block: consensus.Reconcile([]consensus.Result[domain.Block]{
			{Provider: "a", Value: domain.Block{Number: amount.NewBlockNumber(10)}},
			{Provider: "b", Value: domain.Block{Number: amount.NewBlockNumber(11)}},
		}, func(b domain.Block) (string, error) { return b.Number.Hex(), nil }),
	}

	s := New(Config{}, state, fetcher, memory.NewAuditLog(), nil)
	err := s.Run(context.Background())

	var inconsistent *consensus.InconsistentError
	require.True(t, errors.As(err, &inconsistent))
	assert.Empty(t, fetcher.calls)
	_, ok := state.LastObservedBlock()
	assert.False(t, ok)
}

func TestScrapeRespectsTaskToken(t *testing.T) {
	state := newState()
	require.True(t, state.TryAcquireTask(domain.TaskScrape))

	s := New(Config{}, state, &fakeFetcher{block: blockAt(200)}, memory.NewAuditLog(), nil)
	require.ErrorIs(t, s.Run(context.Background()), domain.ErrTaskInProgress)

	state.ReleaseTask(domain.TaskScrape)
	fetcher := &fakeFetcher{
		block: blockAt(99),
	}
	s = New(Config{}, state, fetcher, memory.NewAuditLog(), nil)
	require.NoError(t, s.Run(context.Background()))
	assert.True(t, state.TryAcquireTask(domain.TaskScrape), "token must be released after a run")
}

func TestScrapeSkipsRecordedSkippedBlocks(t *testing.T) {
	state := newState()
	require.True(t, state.RecordSkippedBlock(amount.NewBlockNumber(150)))

	fetcher := &fakeFetcher{
		block: blockAt(200),
		logsFn: func(from, to uint64) consensus.Outcome[[]decoder.LogEntry] {
			return consistent([]decoder.LogEntry{})
		},
	}

	s := New(Config{}, state, fetcher, memory.NewAuditLog(), nil)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []blockRange{{100, 149}, {151, 200}}, fetcher.calls)
	assert.Equal(t, amount.NewBlockNumber(200), state.LastScrapedBlock())
}
