// Package lex scans decimal numbers out of point-cloud text lines.
//
// The scanner is deliberately minimal: it accumulates digits into an integer,
// tracks a sign and a fractional divisor, and emits a value whenever a
// delimiter follows a digit. It does not handle exponents, locales, NaN or
// infinities, and performs no overflow checking.
package lex

// MaxValues is the number of value slots ParseFloats fills per line.
const MaxValues = 8

// LineTerminator ends a record.
const LineTerminator = '\n'

// Values holds the numbers extracted from one line.
type Values [MaxValues]float32

// ParseFloats scans data[start:end] up to and including the next line
// terminator and returns the number of values emitted, the values, and the
// position where the next scan should begin.
//
// A value is emitted when a delimiter (any byte other than a digit, '-' or
// '.') follows at least one digit, when the line terminator is reached, or
// when the range ends. A '-' or '.' without any following digit emits
// nothing. At most MaxValues values are stored; further numbers on the same
// line are consumed but neither stored nor counted.
//
// ParseFloats never reads data[end] or beyond. If start >= end it returns
// (0, Values{}, start).
func ParseFloats(data []byte, start, end int) (int, Values, int) {
	var out Values
	if end > len(data) {
		end = len(data)
	}
	if start >= end {
		return 0, out, start
	}

	var (
		count    int
		acc      int64
		divisor  int64 = 1
		negative bool
		digits   bool
		frac     bool
	)

	emit := func() {
		if digits && count < MaxValues {
			v := float64(acc) / float64(divisor)
			if negative {
				v = -v
			}
			out[count] = float32(v)
			count++
		}
		acc, divisor, negative, digits, frac = 0, 1, false, false, false
	}

	pos := start
	for pos < end {
		c := data[pos]
		pos++

		switch {
		case c >= '0' && c <= '9':
			acc = acc*10 + int64(c-'0')
			if frac {
				divisor *= 10
			}
			digits = true
		case c == '-':
			negative = true
		case c == '.':
			frac = true
		case c == LineTerminator:
			emit()
			return count, out, pos
		default:
			emit()
		}
	}

	emit()
	return count, out, pos
}
