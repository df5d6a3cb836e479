package invoice

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Totals are the amounts derived from the line items and the tax and
// discount terms. No rounding is applied; FormatMoney rounds for
// display only.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Calculate sums quantity times unit price over items, adds taxRate
// percent of the subtotal and subtracts discount. The total never goes
// below zero. NaN and infinite inputs count as zero.
func Calculate(items []LineItem, taxRate, discount float64) Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += it.Amount()
	}
	tax := subtotal * (finite(taxRate) / 100)
	disc := finite(discount)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: disc,
		Total:    math.Max(0, subtotal+tax-disc),
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders amount in the given ISO 4217 currency. Codes the
// currency table does not know fall back to "<code> 0.00".
func FormatMoney(amount float64, code string) string {
	amount = finite(amount)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, amount)
	}
	return moneyPrinter.Sprint(currency.Symbol(unit.Amount(amount)))
}
