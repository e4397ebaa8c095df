// Package currency holds locale-specific money formatting rules.
//
// A PaymentCurrency mirrors the monetary half of a POSIX localeconv table:
// symbols, separators, grouping, fraction digits and sign placement. Format
// renders a decimal amount with those rules.
//
//	usd, _ := currency.DefaultDefinitions().Lookup("en_US")
//	currency.Format(usd, decimal.RequireFromString("-1234.5"), currency.WithGrouping())
//	// -$1,234.50
//
// Definitions can be loaded from YAML (LoadDefinitions) and a Watcher reloads
// a definitions file whenever it changes on disk.
package currency
