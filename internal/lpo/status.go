package lpo

// transitions is the complete set of legal status moves. Self-loops cover
// mutations that keep the state (draft edits, further partial receipts).
var transitions = map[Status][]Status{
	StatusDraft:             {StatusDraft, StatusPendingDept, StatusCancelled},
	StatusPendingDept:       {StatusPendingGM, StatusPendingAcc, StatusRejectedDept, StatusCancelled},
	StatusPendingGM:         {StatusPendingAcc, StatusRejectedGM, StatusCancelled},
	StatusPendingAcc:        {StatusApproved, StatusRejectedAcc, StatusCancelled},
	StatusApproved:          {StatusSentToVendor, StatusCancelled},
	StatusSentToVendor:      {StatusPartiallyReceived, StatusFullyReceived, StatusCancelled},
	StatusPartiallyReceived: {StatusPartiallyReceived, StatusFullyReceived},
	StatusFullyReceived:     {StatusInvoiced},
	StatusInvoiced:          {StatusClosed},
	StatusClosed:            {},
	StatusCancelled:         {},
	StatusRejectedDept:      {},
	StatusRejectedGM:        {},
	StatusRejectedAcc:       {},
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether the order can no longer change.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DeriveStatus computes the order status from its stamps and ledger. It is
// the only source of status; the stored column is a projection of it.
func DeriveStatus(o Order) Status {
	switch {
	case o.CancelledAt != nil:
		return StatusCancelled
	case o.Rejection != nil:
		return o.Rejection.Tier.RejectedStatus()
	case o.ClosedAt != nil:
		return StatusClosed
	case o.InvoicedAt != nil:
		return StatusInvoiced
	case o.SubmittedAt == nil:
		return StatusDraft
	}
	if tier, ok := nextUnstamped(o.Route, o.Approvals); ok {
		return tier.PendingStatus()
	}
	if o.SentAt == nil {
		return StatusApproved
	}
	return AggregateStatus(o.Lines)
}

// Action is an operation a caller may offer for an order.
type Action string

const (
	ActionEdit    Action = "EDIT"
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionSend    Action = "SEND_TO_VENDOR"
	ActionReceive Action = "RECEIVE"
	ActionInvoice Action = "MARK_INVOICED"
	ActionClose   Action = "CLOSE"
	ActionCancel  Action = "CANCEL"
)

// AllowedActions lists the operations legal in the order's current status.
// Role checks still apply when an action is invoked.
func AllowedActions(o Order) []Action {
	switch DeriveStatus(o) {
	case StatusDraft:
		return []Action{ActionEdit, ActionSubmit, ActionCancel}
	case StatusPendingDept, StatusPendingGM, StatusPendingAcc:
		return []Action{ActionApprove, ActionReject, ActionCancel}
	case StatusApproved:
		return []Action{ActionSend, ActionCancel}
	case StatusSentToVendor:
		return []Action{ActionReceive, ActionCancel}
	case StatusPartiallyReceived:
		return []Action{ActionReceive}
	case StatusFullyReceived:
		return []Action{ActionInvoice}
	case StatusInvoiced:
		return []Action{ActionClose}
	default:
		return nil
	}
}

func allows(o Order, action Action) bool {
	for _, a := range AllowedActions(o) {
		if a == action {
			return true
		}
	}
	return false
}
