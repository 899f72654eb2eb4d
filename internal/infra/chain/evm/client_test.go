package evm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/indexing/consensus"
	"github.com/vietddude/minter/internal/infra/chain"
	"github.com/vietddude/minter/internal/infra/rpc/provider"
)

// fakeProvider answers every call with a canned JSON result or error.
type fakeProvider struct {
	name   string
	result string
	err    error
	calls  []provider.Request
}

func (f *fakeProvider) GetName() string { return f.name }
func (f *fakeProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{Available: true} }
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) Close() error { return nil }
func (f *fakeProvider) Call(ctx context.Context, req provider.Request, result any) error {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.result), result)
}

func newTestClient(t *testing.T, providers ...*fakeProvider) *Client {
	t.Helper()
	ps := make([]provider.Provider, len(providers))
	for i, p := range providers {
		ps[i] = p
	}
	c, err := NewClient(domain.NetworkPolygonAmoy, ps, Options{})
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsBadProviderSets(t *testing.T) {
	_, err := NewClient(domain.NetworkPolygonAmoy, nil, Options{})
	assert.Error(t, err)

	_, err = NewClient(domain.NetworkPolygonAmoy, []provider.Provider{
		&fakeProvider{name: "a"}, &fakeProvider{name: "a"},
	}, Options{})
	assert.Error(t, err)
}

func TestGetBlockByNumber(t *testing.T) {
	a := &fakeProvider{name: "alchemy", result: `{"number":"0x3c6f2f","baseFeePerGas":"0x1E"}`}
	b := &fakeProvider{name: "ankr", result: `{"number":"0x3C6F2F","baseFeePerGas":"0x1e","hash":"0xabc"}`}
	c := newTestClient(t, a, b)

	outcome := c.GetBlockByNumber(context.Background(), domain.NamedTag(domain.BlockTagFinalized))
	require.True(t, outcome.Consistent)
	block, err := outcome.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, amount.NewBlockNumber(0x3c6f2f), block.Number)
	assert.Equal(t, amount.NewWeiPerGas(30), block.BaseFeePerGas)

	require.Len(t, a.calls, 1)
	assert.Equal(t, "eth_getBlockByNumber", a.calls[0].Method)
	assert.Equal(t, []any{"finalized", false}, a.calls[0].Params)
	assert.Equal(t, int64(DefaultBlockResponseSize), a.calls[0].ResponseSizeEstimate)
}

func TestGetBlockByNumberInconsistent(t *testing.T) {
	a := &fakeProvider{name: "alchemy", result: `{"number":"0x10","baseFeePerGas":"0x1"}`}
	b := &fakeProvider{name: "ankr", result: `{"number":"0x11","baseFeePerGas":"0x1"}`}
	c := newTestClient(t, a, b)

	outcome := c.GetBlockByNumber(context.Background(), domain.NamedTag(domain.BlockTagLatest))
	assert.False(t, outcome.Consistent)
	_, err := outcome.Unwrap()
	var inconsistent *consensus.InconsistentError
	require.True(t, errors.As(err, &inconsistent))
	assert.Equal(t, []string{"alchemy", "ankr"}, inconsistent.Providers)
}

func TestGetBlockByNumberNotFound(t *testing.T) {
	c := newTestClient(t, &fakeProvider{name: "a", result: `null`})
	_, err := c.GetBlockByNumber(context.Background(), domain.NumberTag(amount.NewBlockNumber(1))).Unwrap()
	assert.ErrorContains(t, err, "block not found")
}

const logsResponse = `[{
	"address": "0x0b3da5e6f5c9a0e8e2f5f1a7e2c9d0d0b0e0f0a1",
	"topics": [
		"0x4d84986c5b4ce0fc5c2de84b5b1ff43e4b0a9e0ab6c4d4b59ba5e1e1f7a349ee",
		"0x000000000000000000000000dd2851cdd40ae6536831558dd46db62fac7a844d",
		"0x1d9facb184cbe453de4841b6b9d9cc95bfc065344e485789b550544529020000"
	],
	"data": "0x000000000000000000000000000000000000000000000000002386f26fc10000",
	"blockNumber": "0x3c6f2f",
	"blockHash": "0x6544a5fbfd4c4fa6d6b36cd1e3ae9a1ed1d6cd0a4adf9a2d4f32d4d6d6d5f9b7",
	"transactionHash": "0x705f826861c802b407843e99af986cfde8749b669e5e0a5a150f4350bcaa9bc3",
	"transactionIndex": "0x22",
	"logIndex": "0x27",
	"removed": false
}]`

func TestGetLogs(t *testing.T) {
	a := &fakeProvider{name: "alchemy", result: logsResponse}
	b := &fakeProvider{name: "ankr", result: logsResponse}
	c := newTestClient(t, a, b)

	contract := common.HexToAddress("0x0b3da5e6f5c9a0e8e2f5f1a7e2c9d0d0b0e0f0a1")
	topic := common.HexToHash("0x4d84986c5b4ce0fc5c2de84b5b1ff43e4b0a9e0ab6c4d4b59ba5e1e1f7a349ee")
	outcome := c.GetLogs(context.Background(), chain.GetLogsArgs{
		FromBlock: domain.NumberTag(amount.NewBlockNumber(100)),
		ToBlock:   domain.NumberTag(amount.NewBlockNumber(200)),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{topic}},
	})
	entries, err := outcome.Unwrap()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0x27", entries[0].LogIndex.String())

	params := a.calls[0].Params[0].(map[string]any)
	assert.Equal(t, "0x64", params["fromBlock"])
	assert.Equal(t, "0xc8", params["toBlock"])
	assert.Equal(t, []string{contract.Hex()}, params["address"])
}

func TestResponseTooLarge(t *testing.T) {
	tooLarge := &fakeProvider{name: "a", err: provider.ErrResponseTooLarge}
	ok := &fakeProvider{name: "b", result: `[]`}
	c := newTestClient(t, tooLarge, ok)

	outcome := c.GetLogs(context.Background(), chain.GetLogsArgs{
		FromBlock: domain.NumberTag(amount.NewBlockNumber(1)),
		ToBlock:   domain.NumberTag(amount.NewBlockNumber(2)),
	})
	assert.False(t, outcome.Consistent)
	assert.True(t, ResponseTooLarge(outcome))

	all := newTestClient(t, &fakeProvider{name: "a", result: `[]`}, &fakeProvider{name: "b", result: `[]`})
	assert.False(t, ResponseTooLarge(all.GetLogs(context.Background(), chain.GetLogsArgs{})))
}
