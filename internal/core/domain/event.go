package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/minter/internal/core/amount"
	"github.com/vietddude/minter/internal/core/principal"
)

// DepositEvent is a validated deposit log. It is only produced by the decoder.
type DepositEvent struct {
	Source      EventSource         `json:"source"`
	BlockNumber amount.BlockNumber  `json:"block_number"`
	From        common.Address      `json:"from_address"`
	Value       amount.Value        `json:"value"`
	Principal   principal.Principal `json:"principal"`
}

// MintedRecord is a deposit whose mint was confirmed by the destination ledger.
type MintedRecord struct {
	Deposit     DepositEvent     `json:"deposit"`
	MintIndex   amount.MintIndex `json:"mint_index"`
	TokenSymbol string           `json:"token_symbol"`
}

type InvalidReasonKind string

const (
	InvalidReasonDeposit     InvalidReasonKind = "invalid_deposit"
	InvalidReasonQuarantined InvalidReasonKind = "quarantined_deposit"
)

// InvalidReason explains why a source will never be minted.
type InvalidReason struct {
	Kind        InvalidReasonKind `json:"kind"`
	Explanation string            `json:"explanation,omitempty"`
}

func InvalidDeposit(explanation string) InvalidReason {
	return InvalidReason{Kind: InvalidReasonDeposit, Explanation: explanation}
}

func Quarantined() InvalidReason {
	return InvalidReason{Kind: InvalidReasonQuarantined}
}

func (r InvalidReason) IsQuarantined() bool {
	return r.Kind == InvalidReasonQuarantined
}

func (r InvalidReason) String() string {
	if r.Explanation == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ": " + r.Explanation
}
