package domain

import (
	"fmt"
	"strings"

	"github.com/vietddude/minter/internal/core/amount"
)

// Block is the subset of a block header the minter needs.
type Block struct {
	Number        amount.BlockNumber
	BaseFeePerGas amount.WeiPerGas
}

type BlockTagKind string

const (
	BlockTagEarliest  BlockTagKind = "earliest"
	BlockTagSafe      BlockTagKind = "safe"
	BlockTagFinalized BlockTagKind = "finalized"
	BlockTagLatest    BlockTagKind = "latest"
	BlockTagPending   BlockTagKind = "pending"
	BlockTagNumber    BlockTagKind = "number"
)

// BlockTag selects a block in JSON-RPC calls: a named tag or an explicit number.
type BlockTag struct {
	Kind   BlockTagKind
	Number amount.BlockNumber
}

func NamedTag(kind BlockTagKind) BlockTag {
	return BlockTag{Kind: kind}
}

func NumberTag(n amount.BlockNumber) BlockTag {
	return BlockTag{Kind: BlockTagNumber, Number: n}
}

// RPCParam renders the tag the way eth_getBlockByNumber and eth_getLogs expect it.
func (t BlockTag) RPCParam() string {
	if t.Kind == BlockTagNumber {
		return t.Number.Hex()
	}
	return string(t.Kind)
}

func (t BlockTag) String() string {
	if t.Kind == BlockTagNumber {
		return t.Number.CanonicalString()
	}
	return string(t.Kind)
}

// ParseBlockTag accepts a tag name, a decimal number or a 0x-prefixed number.
func ParseBlockTag(s string) (BlockTag, error) {
	switch kind := BlockTagKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case BlockTagEarliest, BlockTagSafe, BlockTagFinalized, BlockTagLatest, BlockTagPending:
		return NamedTag(kind), nil
	}
	var v amount.BlockNumber
	if err := v.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return BlockTag{}, fmt.Errorf("invalid block tag %q: %w", s, err)
	}
	return NumberTag(v), nil
}
