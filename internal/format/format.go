// Package format renders amounts and rates for Korean-facing output.
package format

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Korean)

// Won formats an amount in won with digit grouping, e.g. "100,000원".
func Won(amount int64) string {
	return printer.Sprintf("%d원", amount)
}

// Percent formats a percentage with at most two decimals, e.g. "85%" or "85.5%".
func Percent(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String() + "%"
}
