package lpo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Notifier dispatches an order to its vendor. Delivery is best effort; a
// failure never undoes the transition.
type Notifier interface {
	NotifyVendor(ctx context.Context, dispatch VendorDispatch) error
}

// VendorDispatch is the payload handed to the notifier.
type VendorDispatch struct {
	OrderID     int64           `json:"order_id"`
	Number      string          `json:"number"`
	VendorID    int64           `json:"vendor_id"`
	VendorName  string          `json:"vendor_name"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	DocumentRef string          `json:"document_ref,omitempty"`
	SentBy      int64           `json:"sent_by"`
	SentAt      time.Time       `json:"sent_at"`
}

// EventPublisher forwards lifecycle events to reporting consumers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// StatusChangedEvent is published after every committed status change.
type StatusChangedEvent struct {
	Type     string          `json:"type"`
	OrderID  int64           `json:"order_id"`
	Number   string          `json:"number"`
	From     Status          `json:"from"`
	To       Status          `json:"to"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	ActorID  int64           `json:"actor_id"`
	Occurred time.Time       `json:"occurred_at"`
}

// GoodsReceivedEvent is published for every committed receipt.
type GoodsReceivedEvent struct {
	Type       string          `json:"type"`
	ReceiptID  string          `json:"receipt_id"`
	OrderID    int64           `json:"order_id"`
	LineID     int64           `json:"line_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Condition  Condition       `json:"condition"`
	LineStatus LineStatus      `json:"line_status"`
	AssetIDs   []int64         `json:"asset_ids,omitempty"`
	ReceivedBy int64           `json:"received_by"`
	Occurred   time.Time       `json:"occurred_at"`
}

// MetricsPort receives engine counters.
type MetricsPort interface {
	ObserveTransition(from, to string)
	ObserveReceipt(lines int, assets int)
	ObserveRejected(op, kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string) {}
func (noopMetrics) ObserveReceipt(int, int)          {}
func (noopMetrics) ObserveRejected(string, string)   {}
