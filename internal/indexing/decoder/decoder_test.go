package decoder

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/domain"
	"github.com/vietddude/minter/internal/core/principal"
)

const (
	txHashHex = "0x705f826861c802b407843e99af986cfde8749b669e5e0a5a150f4350bcaa9bc3"
	// Sender and principal topics are deliberately unrelated so that reading one in
	// place of the other fails the test.
	fromTopicHex      = "0x000000000000000000000000dd2851cdd40ae6536831558dd46db62fac7a844d"
	principalTopicHex = "0x1d9facb184cbe453de4841b6b9d9cc95bfc065344e485789b550544529020000"
	oneEtherDataHex   = "0x0000000000000000000000000000000000000000000000000de0b6b3a7640000"
)

func hexBig(x int64) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(x))
}

func validEntry() LogEntry {
	txHash := common.HexToHash(txHashHex)
	return LogEntry{
		Address:          common.HexToAddress("0x907b6efc1a398fd88a8161b3ca02eec8eaf72ca1"),
		Topics:           []string{DepositTopic.Hex(), fromTopicHex, principalTopicHex},
		Data:             oneEtherDataHex,
		BlockNumber:      hexBig(3_974_280),
		TransactionHash:  &txHash,
		TransactionIndex: hexBig(0x33),
		LogIndex:         hexBig(0x27),
		Removed:          false,
	}
}

func wantSource() domain.EventSource {
	return domain.EventSource{TxHash: common.HexToHash(txHashHex), LogIndex: amount.NewLogIndex(0x27)}
}

func requireInvalidEvent(t *testing.T, err error, contains string) {
	t.Helper()
	var sourceErr *InvalidEventSourceError
	require.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, wantSource(), sourceErr.Source)
	var eventErr *InvalidEventError
	require.ErrorAs(t, err, &eventErr)
	assert.Contains(t, eventErr.Reason, contains)
}

func TestDecodeValidDeposit(t *testing.T) {
	ev, err := Decode(validEntry())
	require.NoError(t, err)

	wantPrincipal, err := principal.FromText("hkroy-sm7vs-yyjs7-ekppe-qqnwx-hm4zf-n7ybs-titsi-k6e3k-ucuiu-uqe")
	require.NoError(t, err)

	assert.Equal(t, wantSource(), ev.Source)
	assert.Equal(t, amount.NewBlockNumber(3_974_280), ev.BlockNumber)
	assert.Equal(t, common.HexToAddress("0xdd2851cdd40ae6536831558dd46db62fac7a844d"), ev.From)
	assert.Equal(t, amount.NewValue(1_000_000_000_000_000_000), ev.Value)
	assert.Equal(t, wantPrincipal, ev.Principal)
}

func TestDecodePending(t *testing.T) {
	mutations := map[string]func(*LogEntry){
		"block number":      func(e *LogEntry) { e.BlockNumber = nil },
		"transaction hash":  func(e *LogEntry) { e.TransactionHash = nil },
		"transaction index": func(e *LogEntry) { e.TransactionIndex = nil },
		"log index":         func(e *LogEntry) { e.LogIndex = nil },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			entry := validEntry()
			mutate(&entry)
			_, err := Decode(entry)
			assert.ErrorIs(t, err, ErrPendingLogEntry)
			var sourceErr *InvalidEventSourceError
			assert.False(t, errors.As(err, &sourceErr))
		})
	}
}

func TestDecodeRemoved(t *testing.T) {
	entry := validEntry()
	entry.Removed = true
	_, err := Decode(entry)
	requireInvalidEvent(t, err, "removed from the chain")
}

func TestDecodeSignature(t *testing.T) {
	t.Run("other event", func(t *testing.T) {
		entry := validEntry()
		entry.Topics[0] = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
		_, err := Decode(entry)
		requireInvalidEvent(t, err, "unexpected event signature")
	})

	t.Run("no topics", func(t *testing.T) {
		entry := validEntry()
		entry.Topics = nil
		_, err := Decode(entry)
		requireInvalidEvent(t, err, "unexpected event signature")
	})

	t.Run("upper case signature", func(t *testing.T) {
		entry := validEntry()
		entry.Topics[0] = "0x" + strings.ToUpper(DepositTopic.Hex()[2:])
		_, err := Decode(entry)
		assert.NoError(t, err)
	})
}

func TestDecodeTopicCount(t *testing.T) {
	entry := validEntry()
	entry.Topics = append(entry.Topics, fromTopicHex)
	_, err := Decode(entry)
	requireInvalidEvent(t, err, "got 4")

	entry = validEntry()
	entry.Topics = entry.Topics[:2]
	_, err = Decode(entry)
	requireInvalidEvent(t, err, "got 2")
}

func TestDecodeData(t *testing.T) {
	for _, data := range []string{"0x", "0x00", oneEtherDataHex + "00", "not hex"} {
		entry := validEntry()
		entry.Data = data
		_, err := Decode(entry)
		requireInvalidEvent(t, err, "data")
	}
}

func TestDecodeAddressWithDirtyPadding(t *testing.T) {
	entry := validEntry()
	entry.Topics[1] = "0x010000000000000000000000dd2851cdd40ae6536831558dd46db62fac7a844d"
	_, err := Decode(entry)
	requireInvalidEvent(t, err, "leading non-zero bytes")
}

func TestDecodeInvalidPrincipal(t *testing.T) {
	entry := validEntry()
	entry.Topics[2] = "0x0000000000000000000000000000000000000000000000000000000000000000"
	_, err := Decode(entry)

	var sourceErr *InvalidEventSourceError
	require.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, wantSource(), sourceErr.Source)

	var principalErr *InvalidPrincipalError
	require.ErrorAs(t, err, &principalErr)
	assert.Equal(t, common.Hash{}, principalErr.Data)
	assert.ErrorIs(t, err, principal.ErrManagementPrincipal)
}

func TestDecodeFromProviderJSON(t *testing.T) {
	raw := `{
		"address": "0x907b6efc1a398fd88a8161b3ca02eec8eaf72ca1",
		"topics": [
			"0x4d84986cd718ed41155c024ee6c78a9396f89afed335ee4cb0713996744b49ee",
			"` + fromTopicHex + `",
			"` + principalTopicHex + `"
		],
		"data": "` + oneEtherDataHex + `",
		"blockNumber": "0x3ca488",
		"blockHash": null,
		"transactionHash": "` + txHashHex + `",
		"transactionIndex": "0x33",
		"logIndex": "0x27",
		"removed": false
	}`
	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))

	ev, err := Decode(entry)
	require.NoError(t, err)
	assert.Equal(t, wantSource(), ev.Source)

	pendingRaw := strings.Replace(raw, `"blockNumber": "0x3ca488"`, `"blockNumber": null`, 1)
	var pending LogEntry
	require.NoError(t, json.Unmarshal([]byte(pendingRaw), &pending))
	_, err = Decode(pending)
	assert.ErrorIs(t, err, ErrPendingLogEntry)
}

func TestFingerprintIgnoresHexCase(t *testing.T) {
	a := validEntry()
	b := validEntry()
	b.Data = strings.ToUpper(b.Data[:2]) + strings.ToUpper(b.Data[2:])
	b.Topics[1] = "0x" + strings.ToUpper(b.Topics[1][2:])

	fa, err := Fingerprint([]LogEntry{a})
	require.NoError(t, err)
	fb, err := Fingerprint([]LogEntry{b})
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	c := validEntry()
	c.LogIndex = hexBig(0x28)
	fc, err := Fingerprint([]LogEntry{c})
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
