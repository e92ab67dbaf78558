package assets

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Status is the fixed-asset lifecycle state.
type Status string

const (
	StatusPendingActivation Status = "PENDING_ACTIVATION" // Received, not yet put to use
	StatusActive            Status = "ACTIVE"             // In use, depreciating
	StatusUnderRepair       Status = "UNDER_REPAIR"
	StatusInStorage         Status = "IN_STORAGE"
	StatusDisposed          Status = "DISPOSED" // Terminal
)

var transitions = map[Status][]Status{
	StatusPendingActivation: {StatusActive},
	StatusActive:            {StatusUnderRepair, StatusInStorage, StatusDisposed},
	StatusUnderRepair:       {StatusActive, StatusInStorage, StatusDisposed},
	StatusInStorage:         {StatusActive, StatusUnderRepair, StatusDisposed},
	StatusDisposed:          {},
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// Asset is a tracked fixed asset created from a goods receipt.
type Asset struct {
	ID                int64
	Tag               string
	Status            Status
	OrderID           int64
	LineID            int64
	ReceiptID         uuid.UUID
	UnitIndex         *int
	SerialNumber      string
	Description       string
	Category          string
	Condition         string
	Location          string
	Quantity          decimal.Decimal
	AcquisitionCost   decimal.Decimal
	Currency          string
	ReceivedAt        time.Time
	DepreciationStart *time.Time
	ActivatedBy       int64
	ActivatedAt       *time.Time
	StatusReason      string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Source describes the receipt an asset is created from.
type Source struct {
	OrderID      int64
	LineID       int64
	ReceiptID    uuid.UUID
	UnitIndex    *int
	SerialNumber string
	Description  string
	Category     string
	Condition    string
	Location     string
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	Currency     string
	ReceivedAt   time.Time
}

// FormatTag renders the permanent asset tag for a yearly sequence value.
func FormatTag(year int, seq int64) string {
	return fmt.Sprintf("FA-%04d-%06d", year, seq)
}

// Module is the audit/approval module name for assets.
const Module = "ASSET"

var (
	// ErrNotFound is returned when the asset does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrInvalidState is returned for illegal lifecycle moves.
	ErrInvalidState = shared.ErrInvalidState
	// ErrValidation is returned for malformed input.
	ErrValidation = shared.ErrValidation
)

func domainErr(kind error, op string, assetID int64, msg string) error {
	return &shared.DomainError{Kind: kind, Op: op, AssetID: assetID, Msg: msg}
}
