package textnorm

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotAmount is returned when a token holds no parseable amount.
var ErrNotAmount = errors.New("not an amount")

// ParseAmount turns a raw OCR token ("1 234,56", "26.80 €", "7,500.00") into
// a decimal. The rightmost separator wins as the decimal mark when both occur;
// a single separator followed by exactly three digits is read as a thousands
// separator.
func ParseAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, ch := range raw {
		switch {
		case ch >= '0' && ch <= '9', ch == '-', ch == '.', ch == ',':
			b.WriteRune(ch)
		}
	}
	s := b.String()
	if s == "" || s == "-" || strings.Trim(s, "-.,") == "" {
		return decimal.Decimal{}, ErrNotAmount
	}

	s = normalizeSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrNotAmount
	}
	return d, nil
}

func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := byte('.')
		if lastComma > lastDot {
			dec = ','
		}
		s = stripAllExceptLast(s, dec)
	case lastComma >= 0:
		s = resolveSingleSeparator(s, ',')
	case lastDot >= 0:
		s = resolveSingleSeparator(s, '.')
	}
	return strings.ReplaceAll(s, ",", ".")
}

// stripAllExceptLast removes every separator except the final occurrence of
// the decimal mark.
func stripAllExceptLast(s string, dec byte) string {
	last := strings.LastIndexByte(s, dec)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == ',' {
			if i != last {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// resolveSingleSeparator decides whether a lone separator kind is decimal or
// thousands. Multiple occurrences, or exactly three trailing digits, mean
// thousands grouping.
func resolveSingleSeparator(s string, sep byte) string {
	if strings.Count(s, string(sep)) > 1 {
		return strings.ReplaceAll(s, string(sep), "")
	}
	idx := strings.IndexByte(s, sep)
	head := strings.TrimPrefix(s[:idx], "-")
	if len(s)-idx-1 == 3 && len(head) > 0 && !strings.HasPrefix(head, "0") {
		return strings.ReplaceAll(s, string(sep), "")
	}
	return s
}
