// Package utf8 validates byte sequences against the Unicode 6.0
// well-formed UTF-8 byte-sequence table (Table 3-7), which the WebAssembly
// binary format requires for name strings. This is a from-scratch
// validator rather than a call into the standard library's unicode/utf8,
// since the engine needs exact control over the per-lead-byte
// continuation-range table spelled out below.
package utf8

// secondByteRange identifies the valid range for a multi-byte sequence's
// second byte, which varies for a handful of lead bytes to exclude
// overlong encodings and surrogates.
type secondByteRange struct {
	lo, hi byte
}

var (
	range80BF = secondByteRange{0x80, 0xBF}
	rangeA0BF = secondByteRange{0xA0, 0xBF}
	range809F = secondByteRange{0x80, 0x9F}
	range90BF = secondByteRange{0x90, 0xBF}
	range808F = secondByteRange{0x80, 0x8F}
)

// Valid reports whether b is a well-formed UTF-8 byte sequence per the
// Unicode 6.0 Table 3-7, rejecting overlong forms, surrogates
// (U+D800..U+DFFF), and code points above U+10FFFF.
func Valid(b []byte) bool {
	pos := 0
	n := len(b)
	for pos < n {
		lead := b[pos]
		pos++

		var need int
		var rule secondByteRange
		switch {
		case lead <= 0x7F:
			// Plain ASCII: valid on its own, but do not stop scanning the
			// rest of the string on this byte alone.
			continue
		case lead < 0xC2:
			return false
		case lead <= 0xDF:
			need, rule = 2, range80BF
		case lead == 0xE0:
			need, rule = 3, rangeA0BF
		case lead <= 0xEC:
			need, rule = 3, range80BF
		case lead == 0xED:
			need, rule = 3, range809F
		case lead <= 0xEF:
			need, rule = 3, range80BF
		case lead == 0xF0:
			need, rule = 4, range90BF
		case lead <= 0xF3:
			need, rule = 4, range80BF
		case lead == 0xF4:
			need, rule = 4, range808F
		default:
			return false
		}

		if pos+need-1 > n {
			return false
		}

		second := b[pos]
		pos++
		if second < rule.lo || second > rule.hi {
			return false
		}

		if need > 2 {
			third := b[pos]
			pos++
			if third < 0x80 || third > 0xBF {
				return false
			}
		}

		if need > 3 {
			fourth := b[pos]
			pos++
			if fourth < 0x80 || fourth > 0xBF {
				return false
			}
		}
	}
	return true
}
