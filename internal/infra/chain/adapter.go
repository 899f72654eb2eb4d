package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/indexing/consensus"
	"github.com/vietddude/minter/internal/indexing/decoder"
)

// Fetcher is the read interface to the source chain. Every call is sent to all
// configured providers and the answers are reconciled; callers decide what to do
// with an inconsistent outcome.
type Fetcher interface {
	// GetBlockByNumber fetches the header of the block selected by tag
	GetBlockByNumber(ctx context.Context, tag domain.BlockTag) consensus.Outcome[domain.Block]

	// GetLogs fetches the logs matching args
	GetLogs(ctx context.Context, args GetLogsArgs) consensus.Outcome[[]decoder.LogEntry]

	// Network returns the network the fetcher reads from
	Network() domain.Network
}

// GetLogsArgs is the filter of an eth_getLogs call over an inclusive block range.
type GetLogsArgs struct {
	FromBlock domain.BlockTag
	ToBlock   domain.BlockTag
	Addresses []common.Address
	// Topics[i] lists the accepted values of topic i; an empty list matches anything.
	Topics [][]common.Hash
}

// RPCParam renders the filter object of eth_getLogs.
func (a GetLogsArgs) RPCParam() map[string]any {
	topics := make([]any, len(a.Topics))
	for i, alternatives := range a.Topics {
		if len(alternatives) == 0 {
			topics[i] = nil
			continue
		}
		hexes := make([]string, len(alternatives))
		for j, h := range alternatives {
			hexes[j] = h.Hex()
		}
		topics[i] = hexes
	}
	addresses := make([]string, len(a.Addresses))
	for i, addr := range a.Addresses {
		addresses[i] = addr.Hex()
	}
	return map[string]any{
		"fromBlock": a.FromBlock.RPCParam(),
		"toBlock":   a.ToBlock.RPCParam(),
		"address":   addresses,
		"topics":    topics,
	}
}
