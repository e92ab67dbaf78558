package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState indicates the operation is not legal in the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden indicates the actor lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrOverReceipt indicates a receipt larger than the pending quantity.
	ErrOverReceipt = errors.New("over receipt")
	// ErrConflict indicates a lost concurrent-update race.
	ErrConflict = errors.New("conflict")
	// ErrTimeout indicates a bounded wait for a lock or resource expired.
	ErrTimeout = errors.New("timeout")
)

// DomainError carries the failing operation and the entities involved so
// callers can render a precise message. It unwraps to its Kind.
type DomainError struct {
	Kind    error
	Op      string
	OrderID int64
	LineID  int64
	AssetID int64
	Tier    string
	Msg     string
}

// Error implements error.
func (e *DomainError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.OrderID != 0 {
		fmt.Fprintf(&b, " order=%d", e.OrderID)
	}
	if e.LineID != 0 {
		fmt.Fprintf(&b, " line=%d", e.LineID)
	}
	if e.AssetID != 0 {
		fmt.Fprintf(&b, " asset=%d", e.AssetID)
	}
	if e.Tier != "" {
		fmt.Fprintf(&b, " tier=%s", e.Tier)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

// Unwrap exposes the error kind to errors.Is.
func (e *DomainError) Unwrap() error {
	return e.Kind
}

// Details returns the populated context fields, keyed for JSON output.
func (e *DomainError) Details() map[string]any {
	details := map[string]any{}
	if e.Op != "" {
		details["op"] = e.Op
	}
	if e.OrderID != 0 {
		details["order_id"] = e.OrderID
	}
	if e.LineID != 0 {
		details["line_id"] = e.LineID
	}
	if e.AssetID != 0 {
		details["asset_id"] = e.AssetID
	}
	if e.Tier != "" {
		details["tier"] = e.Tier
	}
	return details
}

// KindOf reports which taxonomy sentinel err belongs to, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrInvalidState, ErrForbidden, ErrOverReceipt, ErrConflict, ErrTimeout, ErrNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
