// Package principal implements the destination identity that receives minted tokens
// and the fixed-width encoding in which deposits carry it on chain.
package principal

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxLength is the maximum number of bytes in a principal.
const MaxLength = 29

var (
	ErrPrincipalTooLong = errors.New("principal is longer than 29 bytes")
	ErrInvalidText      = errors.New("invalid principal text")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is an opaque identity of at most MaxLength bytes. The zero value is the
// management canister principal (no bytes). Principal is immutable and comparable.
type Principal struct {
	raw string
}

var (
	// ManagementCanister is the empty principal reserved for the host.
	ManagementCanister = Principal{}

	// Anonymous is the principal of unauthenticated callers.
	Anonymous = Principal{raw: "\x04"}
)

// FromSlice wraps raw principal bytes.
func FromSlice(b []byte) (Principal, error) {
	if len(b) > MaxLength {
		return Principal{}, fmt.Errorf("%w: got %d bytes", ErrPrincipalTooLong, len(b))
	}
	return Principal{raw: string(b)}, nil
}

// Bytes returns a copy of the raw bytes.
func (p Principal) Bytes() []byte {
	return []byte(p.raw)
}

// Len returns the number of raw bytes.
func (p Principal) Len() int {
	return len(p.raw)
}

func (p Principal) IsAnonymous() bool {
	return p == Anonymous
}

// String returns the textual form: CRC-32 checksum followed by the bytes, base32
// encoded in lower case and grouped by five characters, e.g. "rrkah-fqaaa-aaaaa-aaaaq-cai".
func (p Principal) String() string {
	buf := make([]byte, 4, 4+len(p.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(p.raw)))
	buf = append(buf, p.raw...)

	s := strings.ToLower(encoding.EncodeToString(buf))
	var b strings.Builder
	for i := 0; i < len(s); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := min(i+5, len(s))
		b.WriteString(s[i:end])
	}
	return b.String()
}

// FromText parses the textual form produced by String.
func FromText(s string) (Principal, error) {
	compact := strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	decoded, err := encoding.DecodeString(compact)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidText, err)
	}
	if len(decoded) < 4 {
		return Principal{}, fmt.Errorf("%w: too short", ErrInvalidText)
	}
	p, err := FromSlice(decoded[4:])
	if err != nil {
		return Principal{}, err
	}
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(decoded[4:]) {
		return Principal{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidText)
	}
	if p.String() != strings.ToLower(s) {
		return Principal{}, fmt.Errorf("%w: not in canonical form", ErrInvalidText)
	}
	return p, nil
}

// MarshalText encodes the principal in its textual form.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the textual form.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
