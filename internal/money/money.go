package money

import (
	"fmt"
	"strconv"
	"strings"
)

// pow10 returns 10^n for the small exponents used as currency
// precision. Precision never exceeds 4 in practice.
func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// ToMinorUnits parses a formatted amount such as "1,234.56" or
// "1.234,56" into its integer minor-unit value using the currency's
// separators. The currency symbol and surrounding whitespace are
// tolerated. Fractional digits beyond the currency's precision are
// rounded half-up, not truncated; a value ending in the decimal
// separator is treated as having zero fractional digits and padded.
//
// Two representations of the same magnitude that differ only in
// separators always parse to the same minor-unit value.
func ToMinorUnits(display string, cur Currency) (int64, error) {
	s := strings.TrimSpace(display)
	s = strings.ReplaceAll(s, cur.Symbol, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	if cur.ThousandsSep != "" {
		s = strings.ReplaceAll(s, cur.ThousandsSep, "")
	}
	if cur.DecimalSep != "" && cur.DecimalSep != "." {
		s = strings.ReplaceAll(s, cur.DecimalSep, ".")
	}

	intPart := s
	fracPart := ""
	if i := strings.Index(s, "."); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
		if strings.Contains(fracPart, ".") {
			return 0, fmt.Errorf("money: malformed amount %q", display)
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	if !digitsOnly(intPart) || !digitsOnly(fracPart) {
		return 0, fmt.Errorf("money: malformed amount %q", display)
	}

	// Round the fractional digits to the configured precision using
	// integer digit arithmetic. carry propagates into the int part
	// when e.g. "0.999" rounds to "1.00" at precision 2.
	carry := int64(0)
	if len(fracPart) > cur.Precision {
		if fracPart[cur.Precision] >= '5' {
			carry = 1
		}
		fracPart = fracPart[:cur.Precision]
	}
	for len(fracPart) < cur.Precision {
		fracPart += "0"
	}

	intVal, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: malformed amount %q: %w", display, err)
	}
	fracVal := int64(0)
	if cur.Precision > 0 {
		fracVal, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("money: malformed amount %q: %w", display, err)
		}
	}

	minor := intVal*pow10(cur.Precision) + fracVal + carry
	if negative {
		minor = -minor
	}
	return minor, nil
}

// DecimalString renders minor units as a plain decimal string with
// exactly the currency's precision, e.g. 5060 -> "50.60" for USD.
// Together with ToMinorUnits it satisfies the round-trip law: any
// value already at the configured precision survives a parse/format
// cycle unchanged.
func DecimalString(minor int64, cur Currency) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	p := pow10(cur.Precision)
	intPart := strconv.FormatInt(minor/p, 10)
	out := intPart
	if cur.Precision > 0 {
		frac := strconv.FormatInt(minor%p, 10)
		for len(frac) < cur.Precision {
			frac = "0" + frac
		}
		out = intPart + cur.DecimalSep + frac
	}
	if negative {
		out = "-" + out
	}
	return out
}

// Format renders minor units as a user-facing string with thousands
// separators and the currency symbol at its configured position.
func Format(minor int64, cur Currency) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	p := pow10(cur.Precision)
	intPart := groupThousands(strconv.FormatInt(minor/p, 10), cur.ThousandsSep)
	amount := intPart
	if cur.Precision > 0 {
		frac := strconv.FormatInt(minor%p, 10)
		for len(frac) < cur.Precision {
			frac = "0" + frac
		}
		amount = intPart + cur.DecimalSep + frac
	}
	if negative {
		amount = "-" + amount
	}
	if cur.SymbolAfter {
		return amount + cur.Symbol
	}
	return cur.Symbol + amount
}

// SubTotal multiplies a formatted unit value by an integer quantity
// and returns the formatted line total. The multiplication happens
// on minor units; the unit value is parsed exactly once.
func SubTotal(unit string, quantity int, cur Currency) (string, error) {
	m, err := ToMinorUnits(unit, cur)
	if err != nil {
		return "", err
	}
	return Format(m*int64(quantity), cur), nil
}

// Total sums a list of formatted values and returns the formatted
// grand total. Each value is converted to minor units first and the
// summation is pure integer arithmetic; the inputs are never summed
// through a floating-point representation.
func Total(values []string, cur Currency) (string, error) {
	var sum int64
	for _, v := range values {
		m, err := ToMinorUnits(v, cur)
		if err != nil {
			return "", err
		}
		sum += m
	}
	return Format(sum, cur), nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// groupThousands inserts sep every three digits from the right.
func groupThousands(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
