package amount

import (
	"math/big"

	"github.com/holiman/uint256"
)

var one = uint256.NewInt(1)

// CheckedAdd returns a+b, or false on overflow.
func (a Amount[U]) CheckedAdd(b Amount[U]) (Amount[U], bool) {
	var r Amount[U]
	if _, overflow := r.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount[U]{}, false
	}
	return r, true
}

// CheckedSub returns a-b, or false on underflow.
func (a Amount[U]) CheckedSub(b Amount[U]) (Amount[U], bool) {
	var r Amount[U]
	if _, underflow := r.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount[U]{}, false
	}
	return r, true
}

// CheckedMul returns a*b, or false on overflow.
func (a Amount[U]) CheckedMul(b Amount[U]) (Amount[U], bool) {
	var r Amount[U]
	if _, overflow := r.v.MulOverflow(&a.v, &b.v); overflow {
		return Amount[U]{}, false
	}
	return r, true
}

// CheckedDivCeil returns ceil(a/d), or false when d is zero.
func (a Amount[U]) CheckedDivCeil(d Amount[U]) (Amount[U], bool) {
	if d.v.IsZero() {
		return Amount[U]{}, false
	}
	var q, m uint256.Int
	q.Div(&a.v, &d.v)
	m.Mod(&a.v, &d.v)
	if !m.IsZero() {
		// q < MAX here since d >= 2 whenever the remainder is non-zero.
		q.Add(&q, one)
	}
	return Amount[U]{v: q}, true
}

// CheckedIncrement returns a+1, or false when a is the maximum.
func (a Amount[U]) CheckedIncrement() (Amount[U], bool) {
	return a.CheckedAdd(Amount[U]{v: *one})
}

// CheckedDecrement returns a-1, or false when a is zero.
func (a Amount[U]) CheckedDecrement() (Amount[U], bool) {
	return a.CheckedSub(Amount[U]{v: *one})
}

// Halve returns floor(a/2).
func (a Amount[U]) Halve() Amount[U] {
	var r Amount[U]
	r.v.Rsh(&a.v, 1)
	return r
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or greater than b.
func (a Amount[U]) Cmp(b Amount[U]) int {
	return a.v.Cmp(&b.v)
}

func (a Amount[U]) Lt(b Amount[U]) bool { return a.v.Lt(&b.v) }
func (a Amount[U]) Gt(b Amount[U]) bool { return a.v.Gt(&b.v) }
func (a Amount[U]) Eq(b Amount[U]) bool { return a.v.Eq(&b.v) }
func (a Amount[U]) IsZero() bool        { return a.v.IsZero() }

// Bytes32 returns the 32-byte big-endian encoding.
func (a Amount[U]) Bytes32() [32]byte {
	return a.v.Bytes32()
}

// Big returns a copy of the magnitude as a big.Int.
func (a Amount[U]) Big() *big.Int {
	return a.v.ToBig()
}

// Uint64 returns the magnitude as a native integer, or false if it does not fit.
func (a Amount[U]) Uint64() (uint64, bool) {
	if !a.v.IsUint64() {
		return 0, false
	}
	return a.v.Uint64(), true
}
