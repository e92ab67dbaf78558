package lpo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPendingDept       Status = "PENDING_DEPT_APPROVAL"
	StatusPendingGM         Status = "PENDING_GM_APPROVAL"
	StatusPendingAcc        Status = "PENDING_ACC_APPROVAL"
	StatusApproved          Status = "APPROVED"
	StatusSentToVendor      Status = "SENT_TO_VENDOR"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusFullyReceived     Status = "FULLY_RECEIVED"
	StatusInvoiced          Status = "INVOICED"
	StatusClosed            Status = "CLOSED"
	StatusCancelled         Status = "CANCELLED"
	StatusRejectedDept      Status = "REJECTED_DEPT"
	StatusRejectedGM        Status = "REJECTED_GM"
	StatusRejectedAcc       Status = "REJECTED_ACC"
)

// Tier is an approval stage.
type Tier string

const (
	TierDept Tier = "DEPT"
	TierGM   Tier = "GM"
	TierAcc  Tier = "ACC"
)

var tierOrder = []Tier{TierDept, TierGM, TierAcc}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t == TierDept || t == TierGM || t == TierAcc
}

// PendingStatus is the state an order waits in for tier.
func (t Tier) PendingStatus() Status {
	switch t {
	case TierDept:
		return StatusPendingDept
	case TierGM:
		return StatusPendingGM
	case TierAcc:
		return StatusPendingAcc
	}
	return ""
}

// RejectedStatus is the terminal state after a rejection at tier.
func (t Tier) RejectedStatus() Status {
	switch t {
	case TierDept:
		return StatusRejectedDept
	case TierGM:
		return StatusRejectedGM
	case TierAcc:
		return StatusRejectedAcc
	}
	return ""
}

// TierOf returns the tier a PENDING_* status waits for.
func TierOf(s Status) (Tier, bool) {
	for _, t := range tierOrder {
		if t.PendingStatus() == s {
			return t, true
		}
	}
	return "", false
}

// PendingStatuses lists every approval wait state.
func PendingStatuses() []Status {
	return []Status{StatusPendingDept, StatusPendingGM, StatusPendingAcc}
}

// LineStatus is the per-line receiving state.
type LineStatus string

const (
	LinePending LineStatus = "PENDING"
	LinePartial LineStatus = "PARTIAL"
	LineFull    LineStatus = "FULL"
)

// Condition of received goods.
type Condition string

const (
	ConditionNew       Condition = "NEW"
	ConditionGood      Condition = "GOOD"
	ConditionDamaged   Condition = "DAMAGED"
	ConditionDefective Condition = "DEFECTIVE"
)

// IsValid reports whether c is a known condition.
func (c Condition) IsValid() bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionDamaged, ConditionDefective:
		return true
	}
	return false
}

// Tracking decides whether received units become fixed assets.
type Tracking string

const (
	TrackingConsumable Tracking = "CONSUMABLE"
	// TrackingCapital creates one asset per receipt event.
	TrackingCapital Tracking = "CAPITAL"
	// TrackingSerialized creates one asset per unit and requires serials.
	TrackingSerialized Tracking = "SERIALIZED"
)

// IsValid reports whether t is a known tracking mode.
func (t Tracking) IsValid() bool {
	return t == TrackingConsumable || t == TrackingCapital || t == TrackingSerialized
}

// CreatesAssets reports whether receipts against the line register assets.
func (t Tracking) CreatesAssets() bool {
	return t == TrackingCapital || t == TrackingSerialized
}

// ApprovalStamp records a passed tier.
type ApprovalStamp struct {
	Tier    Tier      `json:"tier"`
	ActorID int64     `json:"actor_id"`
	At      time.Time `json:"at"`
	Comment string    `json:"comment,omitempty"`
}

// Rejection records the tier that stopped the order.
type Rejection struct {
	Tier    Tier
	ActorID int64
	Reason  string
	At      time.Time
}

// Order is a local purchase order.
type Order struct {
	ID              int64
	Number          string
	VendorID        int64
	VendorName      string
	BranchID        int64
	DepartmentID    int64
	Currency        string
	VATPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
	Subtotal        decimal.Decimal
	VATAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	Route           []Tier
	Approvals       []ApprovalStamp
	Rejection       *Rejection
	RequestedBy     int64
	QuotationRef    string
	DocumentRef     string
	Notes           string
	SubmittedAt     *time.Time
	SentAt          *time.Time
	SentBy          int64
	InvoicedAt      *time.Time
	InvoicedBy      int64
	InvoiceRef      string
	ClosedAt        *time.Time
	ClosedBy        int64
	CancelledAt     *time.Time
	CancelledBy     int64
	CancelReason    string
	Lines           []OrderLine
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a copy of o that shares no slices or pointers with it.
func (o Order) Clone() Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	o.Route = append([]Tier(nil), o.Route...)
	o.Approvals = append([]ApprovalStamp(nil), o.Approvals...)
	if o.Rejection != nil {
		r := *o.Rejection
		o.Rejection = &r
	}
	for _, at := range []**time.Time{&o.SubmittedAt, &o.SentAt, &o.InvoicedAt, &o.ClosedAt, &o.CancelledAt} {
		if *at != nil {
			t := **at
			*at = &t
		}
	}
	return o
}

// LiveLines returns lines that are not soft-deleted.
func (o Order) LiveLines() []OrderLine {
	out := make([]OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		if !l.Deleted {
			out = append(out, l)
		}
	}
	return out
}

// Line returns a pointer into o.Lines for lineID.
func (o *Order) Line(lineID int64) (*OrderLine, bool) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// Approval returns the stamp for tier, if any.
func (o Order) Approval(tier Tier) (ApprovalStamp, bool) {
	for _, a := range o.Approvals {
		if a.Tier == tier {
			return a, true
		}
	}
	return ApprovalStamp{}, false
}

// HasReceipts reports whether any quantity was received.
func (o Order) HasReceipts() bool {
	for _, l := range o.Lines {
		if l.QuantityReceived.IsPositive() {
			return true
		}
	}
	return false
}

// OrderLine is one ordered item.
type OrderLine struct {
	ID               int64
	OrderID          int64
	Seq              int
	Description      string
	UOM              string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	LineTotal        decimal.Decimal
	Category         string
	Tracking         Tracking
	QuantityReceived decimal.Decimal
	Deleted          bool
}

// Pending is the quantity still expected.
func (l OrderLine) Pending() decimal.Decimal {
	p := l.Quantity.Sub(l.QuantityReceived)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// Status derives the receiving state of the line.
func (l OrderLine) Status() LineStatus {
	switch {
	case !l.QuantityReceived.IsPositive():
		return LinePending
	case l.QuantityReceived.GreaterThanOrEqual(l.Quantity):
		return LineFull
	default:
		return LinePartial
	}
}

// ReceiptEvent is an immutable ledger entry.
type ReceiptEvent struct {
	ID              uuid.UUID
	OrderID         int64
	LineID          int64
	Quantity        decimal.Decimal
	Condition       Condition
	SerialNumbers   []string
	Destination     string
	ReceivedBy      int64
	ReceivedOn      time.Time
	DeliveryNoteRef string
	RecordedAt      time.Time
}

// FormatNumber renders the human-readable order number.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("LPO-%04d-%05d", year, seq)
}

// Module is the audit/approval module name for orders.
const Module = "LPO"

func orderErr(kind error, op string, orderID int64, msg string) error {
	return &shared.DomainError{Kind: kind, Op: op, OrderID: orderID, Msg: msg}
}

func lineErr(kind error, op string, orderID, lineID int64, msg string) error {
	return &shared.DomainError{Kind: kind, Op: op, OrderID: orderID, LineID: lineID, Msg: msg}
}

func tierErr(kind error, op string, orderID int64, tier Tier, msg string) error {
	return &shared.DomainError{Kind: kind, Op: op, OrderID: orderID, Tier: string(tier), Msg: msg}
}
