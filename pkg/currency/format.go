package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatOption adjusts how Format renders an amount
type FormatOption func(*formatOptions)

type formatOptions struct {
	symbol        bool
	grouping      bool
	international bool
}

// WithoutSymbol omits the currency symbol
func WithoutSymbol() FormatOption {
	return func(o *formatOptions) { o.symbol = false }
}

// WithGrouping separates thousands using MonThousandsSep
func WithGrouping() FormatOption {
	return func(o *formatOptions) { o.grouping = true }
}

// International uses IntCurrSymbol and IntFracDigits
func International() FormatOption {
	return func(o *formatOptions) { o.international = true }
}

// Markers wrap the number so sign positions 3 and 4 can target the value itself.
const (
	valueStart = "<"
	valueEnd   = ">"
)

// Format renders v using the currency's monetary conventions.
// Rounding to the fraction digits is half away from zero.
func Format(c PaymentCurrency, v decimal.Decimal, opts ...FormatOption) string {
	o := formatOptions{symbol: true}
	for _, opt := range opts {
		opt(&o)
	}

	digits := c.FracDigits
	if o.international {
		digits = c.IntFracDigits
	}
	negative := v.IsNegative()

	s := valueStart + formatNumber(c, v.Abs(), int32(digits), o.grouping) + valueEnd

	if o.symbol {
		symbol := c.CurrencySymbol
		if o.international {
			symbol = c.IntCurrSymbol
		}
		precedes, separated := c.PCsPrecedes, c.PSepBySpace
		if negative {
			precedes, separated = c.NCsPrecedes, c.NSepBySpace
		}
		space := ""
		if separated {
			space = " "
		}
		if precedes {
			s = symbol + space + s
		} else {
			if o.international {
				symbol = strings.TrimSuffix(symbol, " ")
			}
			s = s + space + symbol
		}
	}

	position, sign := c.PSignPosn, c.PositiveSign
	if negative {
		position, sign = c.NSignPosn, c.NegativeSign
	}
	switch position {
	case SignParentheses:
		s = "(" + s + ")"
	case SignFollowsAll:
		s = s + sign
	case SignPrecedesValue:
		s = strings.Replace(s, valueStart, sign, 1)
	case SignFollowsValue:
		s = strings.Replace(s, valueEnd, sign, 1)
	default:
		s = sign + s
	}

	s = strings.Replace(s, valueStart, "", 1)
	return strings.Replace(s, valueEnd, "", 1)
}

// formatNumber renders a non-negative amount with the monetary separators
func formatNumber(c PaymentCurrency, v decimal.Decimal, digits int32, grouping bool) string {
	fixed := v.StringFixed(digits)
	intPart, fracPart, hasFrac := strings.Cut(fixed, ".")

	if grouping {
		intPart = group(intPart, int(c.MonGrouping), c.MonThousandsSep)
	}
	if !hasFrac {
		return intPart
	}
	point := c.MonDecimalPoint
	if point == "" {
		point = "."
	}
	return intPart + point + fracPart
}

// group inserts sep every size digits counting from the right
func group(digits string, size int, sep string) string {
	if size <= 0 || sep == "" || len(digits) <= size {
		return digits
	}

	var b strings.Builder
	lead := len(digits) % size
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += size {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+size])
	}
	return b.String()
}
