package evm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/indexing/consensus"
	"github.com/vietddude/minter/internal/indexing/decoder"
	"github.com/vietddude/minter/internal/indexing/metrics"
	"github.com/vietddude/minter/internal/infra/chain"
	"github.com/vietddude/minter/internal/infra/rpc/provider"
)

const (
	// DefaultBlockResponseSize bounds an eth_getBlockByNumber body without transactions.
	DefaultBlockResponseSize = 24 * 1024
	// DefaultLogsResponseSize bounds an eth_getLogs body.
	DefaultLogsResponseSize = 100 * 1024
)

// Options tunes response size estimates.
type Options struct {
	BlockResponseSize int64
	LogsResponseSize  int64
}

// Client queries every provider of an EVM network and reconciles the answers.
type Client struct {
	network   domain.Network
	providers map[string]provider.Provider
	names     []string
	opts      Options
	log       *slog.Logger
}

// NewClient creates a client over providers, which must have unique names.
func NewClient(network domain.Network, providers []provider.Provider, opts Options) (*Client, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured for %s", network)
	}
	if opts.BlockResponseSize <= 0 {
		opts.BlockResponseSize = DefaultBlockResponseSize
	}
	if opts.LogsResponseSize <= 0 {
		opts.LogsResponseSize = DefaultLogsResponseSize
	}

	c := &Client{
		network:   network,
		providers: make(map[string]provider.Provider, len(providers)),
		opts:      opts,
		log:       slog.Default().With("network", network.String()),
	}
	for _, p := range providers {
		name := p.GetName()
		if _, dup := c.providers[name]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", name)
		}
		c.providers[name] = p
		c.names = append(c.names, name)
	}
	return c, nil
}

func (c *Client) Network() domain.Network {
	return c.network
}

// Providers returns the provider names in configuration order.
func (c *Client) Providers() []string {
	return c.names
}

// Health returns the health of every provider.
func (c *Client) Health() map[string]provider.HealthStatus {
	out := make(map[string]provider.HealthStatus, len(c.providers))
	for name, p := range c.providers {
		out[name] = p.GetHealth()
	}
	return out
}

type rpcBlock struct {
	Number        *hexutil.Big `json:"number"`
	BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
}

// GetBlockByNumber fetches a block header (without transactions) from every provider.
func (c *Client) GetBlockByNumber(ctx context.Context, tag domain.BlockTag) consensus.Outcome[domain.Block] {
	req := provider.Request{
		Method:               "eth_getBlockByNumber",
		Params:               []any{tag.RPCParam(), false},
		ResponseSizeEstimate: c.opts.BlockResponseSize,
	}
	results := consensus.Gather(ctx, c.names, func(ctx context.Context, name string) (domain.Block, error) {
		var raw *rpcBlock
		if err := c.providers[name].Call(ctx, req, &raw); err != nil {
			return domain.Block{}, err
		}
		return parseBlock(raw)
	})
	return reconcile(c, req.Method, results, blockKey)
}

func parseBlock(raw *rpcBlock) (domain.Block, error) {
	if raw == nil {
		return domain.Block{}, fmt.Errorf("block not found")
	}
	if raw.Number == nil {
		return domain.Block{}, fmt.Errorf("block without number")
	}
	number, err := amount.FromBig[amount.BlockNumberTag](raw.Number.ToInt())
	if err != nil {
		return domain.Block{}, fmt.Errorf("invalid block number: %w", err)
	}
	block := domain.Block{Number: number}
	// Pre-London blocks have no base fee; it stays zero.
	if raw.BaseFeePerGas != nil {
		fee, err := amount.FromBig[amount.WeiPerGasTag](raw.BaseFeePerGas.ToInt())
		if err != nil {
			return domain.Block{}, fmt.Errorf("invalid base fee: %w", err)
		}
		block.BaseFeePerGas = fee
	}
	return block, nil
}

func blockKey(b domain.Block) (string, error) {
	return b.Number.Hex() + "/" + b.BaseFeePerGas.Hex(), nil
}

// GetLogs fetches logs from every provider.
func (c *Client) GetLogs(ctx context.Context, args chain.GetLogsArgs) consensus.Outcome[[]decoder.LogEntry] {
	req := provider.Request{
		Method:               "eth_getLogs",
		Params:               []any{args.RPCParam()},
		ResponseSizeEstimate: c.opts.LogsResponseSize,
	}
	results := consensus.Gather(ctx, c.names, func(ctx context.Context, name string) ([]decoder.LogEntry, error) {
		var entries []decoder.LogEntry
		if err := c.providers[name].Call(ctx, req, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	})
	return reconcile(c, req.Method, results, decoder.Fingerprint)
}

// reconcile compares the answers and logs the ones that disagree.
func reconcile[T any](
	c *Client,
	method string,
	results []consensus.Result[T],
	key consensus.KeyFunc[T],
) consensus.Outcome[T] {
	outcome := consensus.Reconcile(results, key)
	if !outcome.Consistent {
		metrics.InconsistentResults.WithLabelValues(string(c.network.Code()), method).Inc()
		_, err := outcome.Unwrap()
		c.log.Warn("Providers returned inconsistent results", "method", method, "error", err)
	}
	return outcome
}

// ResponseTooLarge reports whether any provider rejected the call for returning
// too much data, in which case the query should be retried on a smaller range.
func ResponseTooLarge[T any](outcome consensus.Outcome[T]) bool {
	for _, r := range outcome.Results {
		if provider.IsResponseTooLarge(r.Err) {
			return true
		}
	}
	return false
}

var _ chain.Fetcher = (*Client)(nil)
