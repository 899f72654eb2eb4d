package amount

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
)

// String renders the decimal value with digits grouped by underscores, e.g. 1_000_000.
func (a Amount[U]) String() string {
	return a.v.PrettyDec('_')
}

// CanonicalString renders the plain decimal value. Use it wherever the exact digit
// sequence matters, such as URLs, database columns and log correlation.
func (a Amount[U]) CanonicalString() string {
	return a.v.Dec()
}

// Hex renders the value as a 0x-prefixed quantity without leading zeros, the form
// JSON-RPC expects for block numbers.
func (a Amount[U]) Hex() string {
	return a.v.Hex()
}

// Format implements fmt.Formatter. %x and %X print lower and upper case hex (with
// 0x when the # flag is set), %d prints the canonical decimal, %s and %v the grouped one.
// Width and the - flag pad as for strings.
func (a Amount[U]) Format(s fmt.State, verb rune) {
	switch verb {
	case 'x', 'X':
		a.v.ToBig().Format(s, verb)
	case 'd':
		fmt.Fprintf(s, fmt.FormatString(s, 's'), a.CanonicalString())
	case 's', 'v':
		fmt.Fprintf(s, fmt.FormatString(s, 's'), a.String())
	default:
		fmt.Fprintf(s, "%%!%c(amount=%s)", verb, a.CanonicalString())
	}
}

// FromDecimal parses a decimal string. Underscore digit separators are accepted.
func FromDecimal[U Unit](s string) (Amount[U], error) {
	s = strings.ReplaceAll(s, "_", "")
	if s == "" || s[0] == '+' || s[0] == '-' {
		return Amount[U]{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount[U]{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return FromBig[U](x)
}

// FromHex parses a hex string with or without the 0x prefix.
func FromHex[U Unit](s string) (Amount[U], error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" || digits[0] == '+' || digits[0] == '-' {
		return Amount[U]{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	x, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return Amount[U]{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return FromBig[U](x)
}

// MarshalText encodes the full 256-bit value as canonical decimal.
func (a Amount[U]) MarshalText() ([]byte, error) {
	return []byte(a.CanonicalString()), nil
}

// UnmarshalText accepts canonical decimal or 0x-prefixed hex.
func (a *Amount[U]) UnmarshalText(text []byte) error {
	s := string(text)
	var (
		parsed Amount[U]
		err    error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		parsed, err = FromHex[U](s)
	} else {
		parsed, err = FromDecimal[U](s)
	}
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored in NUMERIC(78,0) columns.
func (a Amount[U]) Value() (driver.Value, error) {
	return a.CanonicalString(), nil
}

// Scan implements sql.Scanner.
func (a *Amount[U]) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return ErrNegative
		}
		*a = FromUint64[U](uint64(v))
		return nil
	case nil:
		return fmt.Errorf("%w: NULL", ErrSyntax)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrSyntax, src)
	}
}
