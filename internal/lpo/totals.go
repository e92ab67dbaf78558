package lpo

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimal places kept for amounts.
const MoneyScale = 4

var hundred = decimal.NewFromInt(100)

// RecomputeTotals refreshes line totals and the order money fields from the
// live lines. Every line mutation must be followed by a call before the order
// is persisted.
func RecomputeTotals(o *Order) {
	subtotal := decimal.Zero
	for i := range o.Lines {
		line := &o.Lines[i]
		line.LineTotal = line.Quantity.Mul(line.UnitPrice).Round(MoneyScale)
		if line.Deleted {
			continue
		}
		subtotal = subtotal.Add(line.LineTotal)
	}
	o.Subtotal = subtotal
	o.VATAmount = subtotal.Mul(o.VATPercent).Div(hundred).Round(MoneyScale)
	o.DiscountAmount = subtotal.Mul(o.DiscountPercent).Div(hundred).Round(MoneyScale)
	o.Total = subtotal.Add(o.VATAmount).Sub(o.DiscountAmount)
}
