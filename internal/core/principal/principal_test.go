package principal

import (
	"bytes"
	"errors"
	"testing"
)

func slot(prefix ...byte) []byte {
	b := make([]byte, MaxEncodedLength)
	copy(b, prefix)
	return b
}

func TestDecodeFromSlice(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantErr error
	}{
		{name: "empty", input: nil, wantErr: ErrSliceTooShort},
		{name: "length zero", input: slot(0), wantErr: ErrManagementPrincipal},
		{name: "length 30", input: slot(30), wantErr: ErrInvalidLength},
		{name: "length 255", input: slot(255), wantErr: ErrInvalidLength},
		{name: "declared length exceeds slice", input: []byte{4, 1, 2}, wantErr: ErrSliceTooShort},
		{name: "too long", input: make([]byte, 33), wantErr: ErrSliceTooLong},
		{name: "non-zero padding", input: func() []byte { b := slot(4, 1, 2, 3, 4); b[31] = 1; return b }(), wantErr: ErrTrailingBytes},
		{name: "anonymous", input: slot(1, 4), wantErr: ErrAnonymousPrincipal},
		{name: "four bytes", input: slot(4, 0xde, 0xad, 0xbe, 0xef), want: []byte{0xde, 0xad, 0xbe, 0xef}},
		{name: "single non-anonymous byte", input: slot(1, 5), want: []byte{5}},
		{name: "no padding", input: []byte{2, 9, 9}, want: []byte{9, 9}},
		{
			name:  "max length",
			input: append([]byte{29}, bytes.Repeat([]byte{0xab}, 29)...),
			want:  bytes.Repeat([]byte{0xab}, 29),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFromSlice(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got.Bytes(), tt.want) {
				t.Errorf("expected %x, got %x", tt.want, got.Bytes())
			}
		})
	}
}

func TestDecodeFromSliceIsTotal(t *testing.T) {
	// Every length byte with every padding pattern must return, never panic.
	for n := 0; n < 256; n++ {
		for size := 0; size <= 33; size++ {
			b := make([]byte, size)
			if size > 0 {
				b[0] = byte(n)
			}
			for i := 1; i < size; i++ {
				b[i] = byte(i * n)
			}
			_, _ = DecodeFromSlice(b)
		}
	}
}

func TestEncodeToSlotRoundTrip(t *testing.T) {
	p, err := FromSlice([]byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := EncodeToSlot(p)
	got, err := DecodeFromSlice(s[:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != p {
		t.Errorf("expected %s, got %s", p, got)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		raw  []byte
		text string
	}{
		{raw: nil, text: "aaaaa-aa"},
		{raw: []byte{4}, text: "2vxsx-fae"},
		{raw: []byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}, text: "rrkah-fqaaa-aaaaa-aaaaq-cai"},
	}
	for _, tt := range tests {
		p, err := FromSlice(tt.raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := p.String(); got != tt.text {
			t.Errorf("expected %s, got %s", tt.text, got)
		}
		parsed, err := FromText(tt.text)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", tt.text, err)
		}
		if parsed != p {
			t.Errorf("round trip mismatch for %s", tt.text)
		}
	}

	if Anonymous.String() != "2vxsx-fae" {
		t.Errorf("unexpected anonymous text %s", Anonymous)
	}
	if _, err := FromText("rrkah-fqaaa-aaaaa-aaaaq-caa"); !errors.Is(err, ErrInvalidText) {
		t.Errorf("expected checksum failure, got %v", err)
	}
	if _, err := FromText("not a principal!"); !errors.Is(err, ErrInvalidText) {
		t.Errorf("expected syntax failure, got %v", err)
	}
}

func TestFromSliceTooLong(t *testing.T) {
	if _, err := FromSlice(make([]byte, 30)); !errors.Is(err, ErrPrincipalTooLong) {
		t.Errorf("expected ErrPrincipalTooLong, got %v", err)
	}
}
