// Package fee keeps the base fee estimate of the source chain fresh.
package fee

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/ledger"
	"github.com/vietddude/minter/internal/indexing/metrics"
	"github.com/vietddude/minter/internal/infra/chain"
)

// Refresher implements the RefreshFeeEstimate task.
type Refresher struct {
	state   *ledger.State
	fetcher chain.Fetcher
	network string
	log     *slog.Logger
}

func NewRefresher(state *ledger.State, fetcher chain.Fetcher) *Refresher {
	network := state.Config().Network
	return &Refresher{
		state:   state,
		fetcher: fetcher,
		network: string(network.Code()),
		log:     slog.Default().With("task", domain.TaskRefreshFeeEstimate, "network", network.String()),
	}
}

// Run stores the base fee of the latest block.
func (r *Refresher) Run(ctx context.Context) error {
	release, ok := r.state.AcquireTask(domain.TaskRefreshFeeEstimate)
	if !ok {
		return domain.ErrTaskInProgress
	}
	defer release()

	block, err := r.fetcher.GetBlockByNumber(ctx, domain.NamedTag(domain.BlockTagLatest)).Unwrap()
	if err != nil {
		return fmt.Errorf("failed to fetch latest block: %w", err)
	}

	r.state.UpdateBaseFee(block.BaseFeePerGas)
	wei, _ := new(big.Float).SetInt(block.BaseFeePerGas.Big()).Float64()
	metrics.BaseFeePerGas.WithLabelValues(r.network).Set(wei)
	r.log.Debug("Refreshed base fee", "block", block.Number, "base_fee_per_gas", block.BaseFeePerGas)
	return nil
}
