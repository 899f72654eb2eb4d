// Package amount provides unit-tagged, overflow-checked 256-bit unsigned integers.
//
// Every monetary value, block number, log index and mint index handled by the minter
// is an Amount tagged with a unit. Amounts of different units are distinct Go types,
// so mixing a block number with a value does not compile. The tag carries no runtime
// data: an Amount is exactly a 256-bit magnitude.
//
// Arithmetic never wraps. Operations that can leave the range [0, 2^256-1] return an
// ok flag that is false when no result exists:
//
//	total, ok := balance.CheckedAdd(deposit)
//	if !ok {
//	    return ErrBalanceOverflow
//	}
package amount

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrDoesNotFit is returned when a magnitude needs more than 256 bits.
	ErrDoesNotFit = errors.New("value does not fit into 256 bits")

	// ErrNegative is returned when constructing an amount from a negative number.
	ErrNegative = errors.New("negative value")

	// ErrSyntax is returned when a textual amount cannot be parsed.
	ErrSyntax = errors.New("invalid amount syntax")
)

// Unit is the sealed set of unit tags an Amount can carry.
type Unit interface {
	ValueTag | WeiPerGasTag | BlockNumberTag | LogIndexTag | MintIndexTag
}

// ValueTag marks amounts of the native token, in its smallest denomination.
type ValueTag struct{}

// WeiPerGasTag marks gas prices.
type WeiPerGasTag struct{}

// BlockNumberTag marks block heights.
type BlockNumberTag struct{}

// LogIndexTag marks the position of a log entry within its block.
type LogIndexTag struct{}

// MintIndexTag marks transaction indices on the destination ledger.
type MintIndexTag struct{}

type (
	Value       = Amount[ValueTag]
	WeiPerGas   = Amount[WeiPerGasTag]
	BlockNumber = Amount[BlockNumberTag]
	LogIndex    = Amount[LogIndexTag]
	MintIndex   = Amount[MintIndexTag]
)

// Amount is a 256-bit unsigned integer tagged with unit U.
// The zero value is 0. Amount is comparable with ==.
type Amount[U Unit] struct {
	v uint256.Int
}

// Zero returns 0 in unit U.
func Zero[U Unit]() Amount[U] {
	return Amount[U]{}
}

// Max returns 2^256-1 in unit U.
func Max[U Unit]() Amount[U] {
	var a Amount[U]
	a.v.Not(&a.v)
	return a
}

// FromUint64 converts a native integer.
func FromUint64[U Unit](x uint64) Amount[U] {
	var a Amount[U]
	a.v.SetUint64(x)
	return a
}

// FromUint128 builds an amount from the high and low halves of a 128-bit integer.
func FromUint128[U Unit](hi, lo uint64) Amount[U] {
	return Amount[U]{v: uint256.Int{lo, hi, 0, 0}}
}

// FromBytes32 decodes a 32-byte big-endian buffer. Every buffer is a valid amount.
func FromBytes32[U Unit](b [32]byte) Amount[U] {
	var a Amount[U]
	a.v.SetBytes32(b[:])
	return a
}

// FromBigEndian decodes a big-endian buffer of any length.
// Leading zero bytes are ignored; a magnitude wider than 32 bytes fails with ErrDoesNotFit.
func FromBigEndian[U Unit](b []byte) (Amount[U], error) {
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > 32 {
		return Amount[U]{}, ErrDoesNotFit
	}
	var a Amount[U]
	a.v.SetBytes(b)
	return a, nil
}

// FromBig converts an arbitrary-precision natural number.
func FromBig[U Unit](x *big.Int) (Amount[U], error) {
	if x == nil {
		return Amount[U]{}, ErrSyntax
	}
	if x.Sign() < 0 {
		return Amount[U]{}, ErrNegative
	}
	if x.BitLen() > 256 {
		return Amount[U]{}, ErrDoesNotFit
	}
	v, _ := uint256.FromBig(x)
	return Amount[U]{v: *v}, nil
}

// Per-unit constructors for native integers.

func NewValue(x uint64) Value             { return FromUint64[ValueTag](x) }
func NewWeiPerGas(x uint64) WeiPerGas     { return FromUint64[WeiPerGasTag](x) }
func NewBlockNumber(x uint64) BlockNumber { return FromUint64[BlockNumberTag](x) }
func NewLogIndex(x uint64) LogIndex       { return FromUint64[LogIndexTag](x) }
func NewMintIndex(x uint64) MintIndex     { return FromUint64[MintIndexTag](x) }

// ChangeUnits relabels an amount with another unit without touching its magnitude.
// The caller is responsible for the relabeling being meaningful.
func ChangeUnits[To, From Unit](a Amount[From]) Amount[To] {
	return Amount[To]{v: a.v}
}
