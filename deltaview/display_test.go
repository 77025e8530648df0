package deltaview

import (
	"math"
	"math/big"
	"testing"
	"time"
)

func TestDisplayValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("X", 3600))
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"int", 7, int64(7)},
		{"int32", int32(-3), int64(-3)},
		{"uint16", uint16(9), uint64(9)},
		{"float32", float32(1.5), 1.5},
		{"nan", math.NaN(), "NaN"},
		{"inf", math.Inf(-1), "-Infinity"},
		{"time", ts, "2024-03-01T11:30:00.0000005Z"},
		{"bytes", []byte{0xde, 0xad}, "0xdead (2 bytes)"},
		{"rat", big.NewRat(5, 4), "1.25"},
		{"map", map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{"slice", []any{1, "two"}, `[1,"two"]`},
	}
	for _, tt := range tests {
		if got := displayValue(tt.in); got != tt.want {
			t.Errorf("displayValue(%s) = %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestBinarySnippet_Long(t *testing.T) {
	b := make([]byte, 20)
	want := "0x00000000000000000000000000000000… (20 bytes)"
	if got := binarySnippet(b); got != want {
		t.Errorf("binarySnippet() = %q, want %q", got, want)
	}
}

func TestDecimalString(t *testing.T) {
	tests := []struct {
		unscaled int64
		scale    int32
		want     string
	}{
		{12345, 2, "123.45"},
		{-5, 3, "-0.005"},
		{0, 2, "0.00"},
		{42, 0, "42"},
		{7, -2, "700"},
	}
	for _, tt := range tests {
		if got := decimalString(big.NewInt(tt.unscaled), tt.scale); got != tt.want {
			t.Errorf("decimalString(%d, %d) = %q, want %q", tt.unscaled, tt.scale, got, tt.want)
		}
	}
}

func TestSignedBigInt(t *testing.T) {
	tests := []struct {
		in   []byte
		want int64
	}{
		{[]byte{0x01, 0x00}, 256},
		{[]byte{0xff}, -1},
		{[]byte{0xff, 0x38}, -200},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := signedBigInt(tt.in).Int64(); got != tt.want {
			t.Errorf("signedBigInt(%x) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := formatDate(19782); got != "2024-02-29" {
		t.Errorf("formatDate(19782) = %q", got)
	}
	if got := formatDate(-1); got != "1969-12-31" {
		t.Errorf("formatDate(-1) = %q", got)
	}
}
