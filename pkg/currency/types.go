package currency

import "fmt"

// SignPosition controls where the sign is placed relative to the value and symbol
type SignPosition string

const (
	// SignParentheses surrounds currency and value with parentheses
	SignParentheses SignPosition = "0"
	// SignPrecedesAll puts the sign before the value and currency symbol
	SignPrecedesAll SignPosition = "1"
	// SignFollowsAll puts the sign after the value and currency symbol
	SignFollowsAll SignPosition = "2"
	// SignPrecedesValue puts the sign immediately before the value
	SignPrecedesValue SignPosition = "3"
	// SignFollowsValue puts the sign immediately after the value
	SignFollowsValue SignPosition = "4"
)

// Valid reports whether p is one of the known sign positions
func (p SignPosition) Valid() bool {
	switch p {
	case SignParentheses, SignPrecedesAll, SignFollowsAll, SignPrecedesValue, SignFollowsValue:
		return true
	}
	return false
}

// Description returns the human readable meaning of the position
func (p SignPosition) Description() string {
	switch p {
	case SignParentheses:
		return "Currency and value are surrounded by parentheses."
	case SignPrecedesAll:
		return "The sign should precede the value and currency symbol."
	case SignFollowsAll:
		return "The sign should follow the value and currency symbol."
	case SignPrecedesValue:
		return "The sign should immediately precede the value."
	case SignFollowsValue:
		return "The sign should immediately follow the value."
	}
	return ""
}

// PaymentCurrency stores the formatting rules for one currency/locale pair
type PaymentCurrency struct {
	ID              int64        `json:"id" yaml:"-"`
	Locale          string       `json:"locale" yaml:"locale"`
	CurrencySymbol  string       `json:"currency_symbol" yaml:"currency_symbol"`
	IntCurrSymbol   string       `json:"int_curr_symbol" yaml:"int_curr_symbol"`
	PCsPrecedes     bool         `json:"p_cs_precedes" yaml:"p_cs_precedes"`
	NCsPrecedes     bool         `json:"n_cs_precedes" yaml:"n_cs_precedes"`
	PSepBySpace     bool         `json:"p_sep_by_space" yaml:"p_sep_by_space"`
	NSepBySpace     bool         `json:"n_sep_by_space" yaml:"n_sep_by_space"`
	MonDecimalPoint string       `json:"mon_decimal_point" yaml:"mon_decimal_point"`
	MonThousandsSep string       `json:"mon_thousands_sep" yaml:"mon_thousands_sep"`
	MonGrouping     uint16       `json:"mon_grouping" yaml:"mon_grouping"`
	FracDigits      uint16       `json:"frac_digits" yaml:"frac_digits"`
	IntFracDigits   uint16       `json:"int_frac_digits" yaml:"int_frac_digits"`
	PositiveSign    string       `json:"positive_sign" yaml:"positive_sign"`
	NegativeSign    string       `json:"negative_sign" yaml:"negative_sign"`
	PSignPosn       SignPosition `json:"p_sign_posn" yaml:"p_sign_posn"`
	NSignPosn       SignPosition `json:"n_sign_posn" yaml:"n_sign_posn"`
}

// New returns a currency populated with the column defaults
func New(locale, symbol, intSymbol string) PaymentCurrency {
	return PaymentCurrency{
		Locale:          locale,
		CurrencySymbol:  symbol,
		IntCurrSymbol:   intSymbol,
		PCsPrecedes:     true,
		NCsPrecedes:     true,
		PSepBySpace:     true,
		NSepBySpace:     true,
		MonDecimalPoint: ".",
		MonThousandsSep: ",",
		MonGrouping:     3,
		FracDigits:      2,
		IntFracDigits:   2,
		PositiveSign:    "",
		NegativeSign:    "-",
		PSignPosn:       SignParentheses,
		NSignPosn:       SignParentheses,
	}
}

// String returns the international currency symbol
func (c PaymentCurrency) String() string {
	return c.IntCurrSymbol
}

// Validate checks field lengths and sign positions
func (c PaymentCurrency) Validate() error {
	if c.Locale == "" || len(c.Locale) > 5 {
		return fmt.Errorf("locale must be 1-5 characters")
	}
	if c.CurrencySymbol == "" || len([]rune(c.CurrencySymbol)) > 8 {
		return fmt.Errorf("currency_symbol must be 1-8 characters")
	}
	if c.IntCurrSymbol == "" || len([]rune(c.IntCurrSymbol)) > 8 {
		return fmt.Errorf("int_curr_symbol must be 1-8 characters")
	}
	if len([]rune(c.MonDecimalPoint)) > 1 || len([]rune(c.MonThousandsSep)) > 1 {
		return fmt.Errorf("monetary separators must be a single character")
	}
	if len([]rune(c.PositiveSign)) > 1 || len([]rune(c.NegativeSign)) > 1 {
		return fmt.Errorf("signs must be a single character")
	}
	if !c.PSignPosn.Valid() {
		return fmt.Errorf("invalid p_sign_posn: %q", c.PSignPosn)
	}
	if !c.NSignPosn.Valid() {
		return fmt.Errorf("invalid n_sign_posn: %q", c.NSignPosn)
	}
	return nil
}
