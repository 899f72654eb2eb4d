package fee

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/indexing/consensus"
	"github.com/vietddude/minter/internal/indexing/decoder"
	"github.com/vietddude/minter/internal/indexing/metrics"
	"github.com/vietddude/minter/internal/infra/chain"
)

type fakeFetcher struct {
	block consensus.Outcome[domain.Block]
	tags  []domain.BlockTag
}

func (f *fakeFetcher) GetBlockByNumber(ctx context.Context, tag domain.BlockTag) consensus.Outcome[domain.Block] {
	f.tags = append(f.tags, tag)
	return f.block
}

func (f *fakeFetcher) GetLogs(ctx context.Context, args chain.GetLogsArgs) consensus.Outcome[[]decoder.LogEntry] {
	return consensus.Outcome[[]decoder.LogEntry]{}
}

func (f *fakeFetcher) Network() domain.Network { return domain.NetworkPolygonAmoy }

func blockKey(b domain.Block) (string, error) {
	return b.Number.Hex() + "/" + b.BaseFeePerGas.Hex(), nil
}

func newState() *ledger.State {
	return ledger.New(ledger.Config{
		Network:  domain.NetworkPolygonAmoy,
		BlockTag: domain.NamedTag(domain.BlockTagFinalized),
	})
}

func TestRefreshStoresBaseFee(t *testing.T) {
	block := domain.Block{Number: amount.NewBlockNumber(42), BaseFeePerGas: amount.NewWeiPerGas(30_000_000_000)}
	fetcher := &fakeFetcher{block: consensus.Reconcile([]consensus.Result[domain.Block]{
		{Provider: "a", Value: block},
		{Provider: "b", Value: block},
	}, blockKey)}
	state := newState()

	require.NoError(t, NewRefresher(state, fetcher).Run(context.Background()))

	fee, ok := state.BaseFee()
	require.True(t, ok)
	assert.Equal(t, amount.NewWeiPerGas(30_000_000_000), fee)
	assert.Equal(t, []domain.BlockTag{domain.NamedTag(domain.BlockTagLatest)}, fetcher.tags)
	assert.Equal(t, 3e10, testutil.ToFloat64(metrics.BaseFeePerGas.WithLabelValues("POLYGON_AMOY")))
}

func TestRefreshInconsistentKeepsPreviousFee(t *testing.T) {
	state := newState()
	state.UpdateBaseFee(amount.NewWeiPerGas(7))
	fetcher := &fakeFetcher{block: consensus.Reconcile([]consensus.Result[domain.Block]{
		{Provider: "a", Value: domain.Block{Number: amount.NewBlockNumber(42), BaseFeePerGas: amount.NewWeiPerGas(1)}},
		{Provider: "b", Value: domain.Block{Number: amount.NewBlockNumber(42), BaseFeePerGas: amount.NewWeiPerGas(2)}},
	}, blockKey)}

	err := NewRefresher(state, fetcher).Run(context.Background())
	var inconsistent *consensus.InconsistentError
	require.True(t, errors.As(err, &inconsistent))

	fee, ok := state.BaseFee()
	require.True(t, ok)
	assert.Equal(t, amount.NewWeiPerGas(7), fee)
}

func TestRefreshRespectsTaskToken(t *testing.T) {
	state := newState()
	release, ok := state.AcquireTask(domain.TaskRefreshFeeEstimate)
	require.True(t, ok)
	defer release()

	err := NewRefresher(state, &fakeFetcher{}).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrTaskInProgress)
}
