package domain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/minter/internal/core/amount"
)

// ErrInvalidEventSource is returned when parsing a malformed event source string.
var ErrInvalidEventSource = errors.New("invalid event source")

// EventSource uniquely identifies a deposit occurrence on chain: the transaction
// that emitted it and the position of the log entry. The same on-chain log always
// yields the same EventSource regardless of which provider reported it.
type EventSource struct {
	TxHash   common.Hash     `json:"transaction_hash"`
	LogIndex amount.LogIndex `json:"log_index"`
}

// String returns 0x<64 hex>:<decimal log index>.
func (s EventSource) String() string {
	return fmt.Sprintf("%s:%d", s.TxHash.Hex(), s.LogIndex)
}

// Compare orders sources by transaction hash bytes, then by log index.
func (s EventSource) Compare(o EventSource) int {
	if c := bytes.Compare(s.TxHash[:], o.TxHash[:]); c != 0 {
		return c
	}
	return s.LogIndex.Cmp(o.LogIndex)
}

func (s EventSource) Less(o EventSource) bool {
	return s.Compare(o) < 0
}

// Key returns a fixed-width string whose lexicographic order matches Compare.
func (s EventSource) Key() string {
	idx := s.LogIndex.Bytes32()
	return hex.EncodeToString(s.TxHash[:]) + hex.EncodeToString(idx[:])
}

// ParseEventSource parses the output of String.
func ParseEventSource(s string) (EventSource, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return EventSource{}, fmt.Errorf("%w: missing log index in %q", ErrInvalidEventSource, s)
	}
	raw, err := hexutil.Decode(s[:i])
	if err != nil {
		return EventSource{}, fmt.Errorf("%w: %v", ErrInvalidEventSource, err)
	}
	if len(raw) != common.HashLength {
		return EventSource{}, fmt.Errorf("%w: hash has %d bytes", ErrInvalidEventSource, len(raw))
	}
	idx, err := amount.FromDecimal[amount.LogIndexTag](s[i+1:])
	if err != nil {
		return EventSource{}, fmt.Errorf("%w: %v", ErrInvalidEventSource, err)
	}
	return EventSource{TxHash: common.BytesToHash(raw), LogIndex: idx}, nil
}
