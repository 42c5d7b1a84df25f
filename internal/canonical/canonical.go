// Package canonical produces a byte-stable serialisation of arbitrary
// value trees: mapping keys are recursively sorted, array order is
// preserved, and numbers are rendered as decimal strings rather than
// binary floats. Its output is the only input ever fed to a fingerprint.
package canonical

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number wraps a decimal.Decimal so the encoder renders it as a decimal
// string instead of attempting float coercion.
type Number struct {
	D decimal.Decimal
}

// Int wraps an integer value for canonical encoding.
type Int int64

// Encode renders v as its canonical byte-stable form.
//
// Accepted v: nil, bool, string, Number, decimal.Decimal, Int, int, int64,
// map[string]interface{}, []interface{}, or any value implementing
// Canonicalizable.
func Encode(v interface{}) []byte {
	var b strings.Builder
	encode(&b, v)
	return []byte(b.String())
}

// Canonicalizable lets domain types control their own canonical shape
// instead of relying on reflection over raw maps.
type Canonicalizable interface {
	CanonicalValue() interface{}
}

func encode(b *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		encodeString(b, t)
	case Number:
		encodeString(b, decimalString(t.D))
	case decimal.Decimal:
		encodeString(b, decimalString(t))
	case Int:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case []interface{}:
		encodeArray(b, t)
	case map[string]interface{}:
		encodeMap(b, t)
	case Canonicalizable:
		encode(b, t.CanonicalValue())
	default:
		panic(fmt.Sprintf("canonical: unsupported type %T", v))
	}
}

func decimalString(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	return d.String()
}

func encodeArray(b *strings.Builder, arr []interface{}) {
	b.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		encode(b, item)
	}
	b.WriteByte(']')
}

func encodeMap(b *strings.Builder, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		encodeString(b, k)
		b.WriteByte(':')
		encode(b, m[k])
	}
	b.WriteByte('}')
}

// encodeString writes a minimally-escaped JSON string: control characters,
// quotes, and backslashes are escaped; everything else is passed through
// verbatim so the encoding stays stable across platforms and locales.
func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
