package receipt

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.French)

// FormatPrice renders an amount the way the storefront shows it: "119,70 €".
func FormatPrice(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return printer.Sprintf("%v €", number.Decimal(f, number.Scale(2)))
}
