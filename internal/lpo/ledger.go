package lpo

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// countUnits only accept whole quantities.
var countUnits = map[string]struct{}{
	"EA": {}, "PC": {}, "PCS": {}, "NOS": {}, "UNIT": {}, "SET": {}, "BOX": {}, "PKT": {}, "PAIR": {},
}

// IsCountUnit reports whether uom is counted in whole units.
func IsCountUnit(uom string) bool {
	_, ok := countUnits[strings.ToUpper(strings.TrimSpace(uom))]
	return ok
}

// ValidateQuantity checks qty is positive and consistent with uom.
func ValidateQuantity(uom string, qty decimal.Decimal) error {
	if msg := quantityProblem(uom, qty); msg != "" {
		return fmt.Errorf("%w: %s", shared.ErrValidation, msg)
	}
	return nil
}

func quantityProblem(uom string, qty decimal.Decimal) string {
	if !qty.IsPositive() {
		return "quantity must be positive"
	}
	if IsCountUnit(uom) && !qty.Equal(qty.Truncate(0)) {
		return strings.ToUpper(strings.TrimSpace(uom)) + " is counted in whole units"
	}
	return ""
}

// ApplyReceipt is the only writer of a line's received quantity. It rejects
// receipts above the pending quantity and leaves the line untouched on error.
func ApplyReceipt(line *OrderLine, qty decimal.Decimal) (LineStatus, error) {
	const op = "lpo.apply_receipt"
	if line.Deleted {
		return "", lineErr(shared.ErrInvalidState, op, line.OrderID, line.ID, "line was removed")
	}
	if msg := quantityProblem(line.UOM, qty); msg != "" {
		return "", lineErr(shared.ErrValidation, op, line.OrderID, line.ID, msg)
	}
	pending := line.Pending()
	if qty.GreaterThan(pending) {
		return "", lineErr(shared.ErrOverReceipt, op, line.OrderID, line.ID, fmt.Sprintf("requested %s, pending %s", qty, pending))
	}
	line.QuantityReceived = line.QuantityReceived.Add(qty)
	return line.Status(), nil
}

// AggregateStatus derives the receiving-phase order status from its live
// lines.
func AggregateStatus(lines []OrderLine) Status {
	live, full, touched := 0, 0, 0
	for _, l := range lines {
		if l.Deleted {
			continue
		}
		live++
		switch l.Status() {
		case LineFull:
			full++
			touched++
		case LinePartial:
			touched++
		}
	}
	switch {
	case live > 0 && full == live:
		return StatusFullyReceived
	case touched > 0:
		return StatusPartiallyReceived
	default:
		return StatusSentToVendor
	}
}
