package principal

import (
	"errors"
	"fmt"
)

// MaxEncodedLength is the size of the slot a principal is encoded into.
const MaxEncodedLength = 32

var (
	ErrSliceTooShort       = errors.New("slice too short")
	ErrSliceTooLong        = errors.New("expected at most 32 bytes")
	ErrManagementPrincipal = errors.New("management canister principal is not allowed")
	ErrInvalidLength       = errors.New("invalid number of bytes: expected a number in the range [1,29]")
	ErrTrailingBytes       = errors.New("trailing non-zero bytes")
	ErrAnonymousPrincipal  = errors.New("anonymous principal is not allowed")
)

// DecodeFromSlice decodes a principal from at most 32 bytes laid out as
//
//	[L][L bytes of principal][zero padding]
//
// The management canister and anonymous principals decode structurally but are
// rejected because neither can own minted tokens. The input comes from chain data
// relayed by untrusted providers, so every input yields either a principal or an error.
func DecodeFromSlice(b []byte) (Principal, error) {
	if len(b) == 0 {
		return Principal{}, ErrSliceTooShort
	}
	if len(b) > MaxEncodedLength {
		return Principal{}, fmt.Errorf("%w, got %d", ErrSliceTooLong, len(b))
	}
	n := int(b[0])
	if n == 0 {
		return Principal{}, ErrManagementPrincipal
	}
	if n > MaxLength {
		return Principal{}, fmt.Errorf("%w, got %d", ErrInvalidLength, n)
	}
	if len(b) < 1+n {
		return Principal{}, ErrSliceTooShort
	}
	body, padding := b[1:1+n], b[1+n:]
	for _, x := range padding {
		if x != 0 {
			return Principal{}, ErrTrailingBytes
		}
	}
	p, err := FromSlice(body)
	if err != nil {
		return Principal{}, err
	}
	if p.IsAnonymous() {
		return Principal{}, ErrAnonymousPrincipal
	}
	return p, nil
}

// EncodeToSlot is the inverse of DecodeFromSlice: a 32-byte slot holding the length
// prefix, the principal and zero padding.
func EncodeToSlot(p Principal) [MaxEncodedLength]byte {
	var slot [MaxEncodedLength]byte
	slot[0] = byte(len(p.raw))
	copy(slot[1:], p.raw)
	return slot
}
