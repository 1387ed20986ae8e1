package holdings

import (
	"fmt"
	"regexp"

	"github.com/Rhymond/go-money"
)

// Codes are upper case letters or digits. ISO 4217 codes are the common case
// but providers also quote gold (GA, XAU), crypto (BTC) or indices.
var currencyCode = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// ValidateCurrency checks that code is usable as a rate table or money code.
func ValidateCurrency(code string) error {
	if code == "" {
		return fmt.Errorf("currency code is missing")
	}
	if !currencyCode.MatchString(code) {
		return fmt.Errorf("invalid currency code %q: want 2 to 10 upper case letters or digits", code)
	}
	return nil
}

// IsISOCurrency reports whether code is an ISO 4217 currency known to the
// formatting library.
func IsISOCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}

// fraction returns the number of digits used when persisting or displaying
// amounts in code. Non ISO codes keep more digits since they are usually
// quoted per gram or per coin.
func fraction(code string) int32 {
	if c := money.GetCurrency(code); c != nil {
		return int32(c.Fraction)
	}
	return 4
}
