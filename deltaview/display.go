package deltaview

import (
	"encoding/hex"
	stdjson "encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// binarySnippetLen is the number of leading bytes shown for opaque binary cells.
const binarySnippetLen = 16

// displayValue coerces a decoded value into a display-safe scalar:
// nil, string, bool, int64, uint64, float64 or json.Number.
// Composite values become compact JSON strings.
func displayValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int64, uint64, stdjson.Number:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return uint64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case float32:
		return displayFloat(float64(x))
	case float64:
		return displayFloat(x)
	case time.Time:
		return formatTime(x)
	case time.Duration:
		return x.String()
	case []byte:
		return binarySnippet(x)
	case *big.Rat:
		return ratString(x)
	case *big.Int:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return compactJSON(v)
}

// displayString renders v as a plain string: strings verbatim, everything
// else as compact JSON.
func displayString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case stdjson.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return compactJSON(v)
}

// displayFloat keeps finite floats numeric; NaN and infinities become strings.
func displayFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDate(daysSinceEpoch int32) string {
	return time.Unix(int64(daysSinceEpoch)*86400, 0).UTC().Format(time.DateOnly)
}

// binarySnippet renders the first bytes of b in hex with the total length.
func binarySnippet(b []byte) string {
	if len(b) <= binarySnippetLen {
		return fmt.Sprintf("0x%s (%d bytes)", hex.EncodeToString(b), len(b))
	}
	return fmt.Sprintf("0x%s… (%d bytes)", hex.EncodeToString(b[:binarySnippetLen]), len(b))
}

// decimalString formats unscaled * 10^-scale without loss.
func decimalString(unscaled *big.Int, scale int32) string {
	if scale <= 0 {
		n := new(big.Int).Set(unscaled)
		if scale < 0 {
			n.Mul(n, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-scale)), nil))
		}
		return n.String()
	}
	digits := new(big.Int).Abs(unscaled).String()
	if pad := int(scale) + 1 - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	point := len(digits) - int(scale)
	s := digits[:point] + "." + digits[point:]
	if unscaled.Sign() < 0 {
		s = "-" + s
	}
	return s
}

// signedBigInt decodes a big-endian two's complement integer.
func signedBigInt(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}

// ratString renders an exact rational, using the shortest terminating
// decimal expansion up to 38 places.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(38)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
