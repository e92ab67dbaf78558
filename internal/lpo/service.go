package lpo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/currency"

	"github.com/munesh14/first-exchange-hub-sub000/internal/assets"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	OrderIDForLine(ctx context.Context, lineID int64) (int64, error)
	ListOrdersByStatus(ctx context.Context, statuses []Status, limit int) ([]Order, error)
	ListReceipts(ctx context.Context, orderID int64) ([]ReceiptEvent, error)
}

// TxRepository exposes transactional operations. It embeds assets.Writer so
// assets created by a receipt commit with the ledger update.
type TxRepository interface {
	assets.Writer
	NextOrderNumber(ctx context.Context, year int) (int64, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertLine(ctx context.Context, line OrderLine) (int64, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	// UpdateOrder writes the header and every persisted line when the stored
	// version equals expectedVersion, else returns shared.ErrConflict.
	UpdateOrder(ctx context.Context, order Order, expectedVersion int64) error
	InsertReceipt(ctx context.Context, receipt ReceiptEvent) error
	ReceivedSerials(ctx context.Context, orderID int64) ([]string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort stores the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// ApprovalTrailReader reads back the approval trail of a document.
type ApprovalTrailReader interface {
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditTrailReader reads back the audit trail of an entity.
type AuditTrailReader interface {
	List(ctx context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error)
}

// IdempotencyPort guards receipt replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Deps groups the optional collaborators of Service. Nil members are
// skipped.
type Deps struct {
	Locks       shared.Locker
	Approvals   ApprovalPort
	Audit       AuditPort
	Idempotency IdempotencyPort
	Notifier    Notifier
	Events      EventPublisher
	Metrics     MetricsPort
	Logger      *slog.Logger

	ApprovalTrail ApprovalTrailReader
	AuditTrail    AuditTrailReader
}

// Config tunes the engine.
type Config struct {
	Policy   Policy
	LockWait time.Duration
}

// Service orchestrates the order lifecycle.
type Service struct {
	repo      RepositoryPort
	registrar *assets.Registrar
	deps      Deps
	policy    Policy
	lockWait  time.Duration
	logger    *slog.Logger
	metrics   MetricsPort
	reads     singleflight.Group
	now       func() time.Time
}

// NewService constructs the order service.
func NewService(repo RepositoryPort, registrar *assets.Registrar, deps Deps, cfg Config) *Service {
	if deps.Locks == nil {
		deps.Locks = shared.NewLocalLocker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if registrar == nil {
		registrar = assets.NewRegistrar(nil, deps.Locks, nil, nil, logger, assets.Config{})
	}
	if cfg.Policy.GMThreshold.IsZero() && cfg.Policy.Roles == (Roles{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	return &Service{
		repo:      repo,
		registrar: registrar,
		deps:      deps,
		policy:    cfg.Policy,
		lockWait:  cfg.LockWait,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Policy returns the routing policy in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// LineInput describes an order line.
type LineInput struct {
	Description string
	UOM         string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Category    string
	Tracking    Tracking
}

// CreateOrderInput describes a new draft.
type CreateOrderInput struct {
	VendorID        int64
	VendorName      string
	BranchID        int64
	DepartmentID    int64
	Currency        string
	VATPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
	QuotationRef    string
	DocumentRef     string
	Notes           string
	Lines           []LineInput
}

// LineUpdate replaces the editable fields of an existing line.
type LineUpdate struct {
	LineID int64
	LineInput
}

// EditOrderInput carries draft changes. Nil header fields are kept.
type EditOrderInput struct {
	VendorID        *int64
	VendorName      *string
	BranchID        *int64
	DepartmentID    *int64
	Currency        *string
	VATPercent      *decimal.Decimal
	DiscountPercent *decimal.Decimal
	QuotationRef    *string
	DocumentRef     *string
	Notes           *string
	AddLines        []LineInput
	UpdateLines     []LineUpdate
	RemoveLines     []int64
}

// CreateOrder stores a new DRAFT order owned by actor.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, input CreateOrderInput) (Order, error) {
	const op = "lpo.create"
	if actor.ID == 0 {
		return Order{}, orderErr(shared.ErrValidation, op, 0, "actor required")
	}
	if input.BranchID <= 0 {
		return Order{}, orderErr(shared.ErrValidation, op, 0, "branch required")
	}
	if strings.TrimSpace(input.Currency) == "" {
		input.Currency = s.policy.BaseCurrency
	}
	cur, err := normaliseCurrency(input.Currency)
	if err != nil {
		return Order{}, orderErr(shared.ErrValidation, op, 0, err.Error())
	}
	if err := validatePercent("vat", input.VATPercent); err != nil {
		return Order{}, orderErr(shared.ErrValidation, op, 0, err.Error())
	}
	if err := validatePercent("discount", input.DiscountPercent); err != nil {
		return Order{}, orderErr(shared.ErrValidation, op, 0, err.Error())
	}
	now := s.now()
	order := Order{
		VendorID:        input.VendorID,
		VendorName:      strings.TrimSpace(input.VendorName),
		BranchID:        input.BranchID,
		DepartmentID:    input.DepartmentID,
		Currency:        cur,
		VATPercent:      input.VATPercent,
		DiscountPercent: input.DiscountPercent,
		QuotationRef:    input.QuotationRef,
		DocumentRef:     input.DocumentRef,
		Notes:           input.Notes,
		RequestedBy:     actor.ID,
		Status:          StatusDraft,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, in := range input.Lines {
		line, err := buildLine(in)
		if err != nil {
			return Order{}, orderErr(shared.ErrValidation, op, 0, fmt.Sprintf("line %d: %s", i+1, err))
		}
		line.Seq = i + 1
		order.Lines = append(order.Lines, line)
	}
	RecomputeTotals(&order)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextOrderNumber(ctx, now.Year())
		if err != nil {
			return fmt.Errorf("%s: allocate number: %w", op, err)
		}
		order.Number = FormatNumber(now.Year(), seq)
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		order.ID = id
		for i := range order.Lines {
			order.Lines[i].OrderID = id
			lineID, err := tx.InsertLine(ctx, order.Lines[i])
			if err != nil {
				return fmt.Errorf("%s: insert line: %w", op, err)
			}
			order.Lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, "LPO_CREATE", order, "", actor.ID, map[string]any{"number": order.Number})
	return order, nil
}

// EditOrder applies header and line changes to a DRAFT order. Totals are
// recomputed in the same write.
func (s *Service) EditOrder(ctx context.Context, orderID int64, actor shared.Actor, input EditOrderInput) (Order, error) {
	const op = "lpo.edit"
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if !allows(*o, ActionEdit) {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", DeriveStatus(*o)))
		}
		if actor.ID == 0 || actor.ID != o.RequestedBy {
			return orderErr(shared.ErrForbidden, op, o.ID, "only the requester may edit")
		}
		if err := applyHeader(o, input); err != nil {
			return orderErr(shared.ErrValidation, op, o.ID, err.Error())
		}
		for _, upd := range input.UpdateLines {
			line, ok := o.Line(upd.LineID)
			if !ok || line.Deleted {
				return lineErr(shared.ErrValidation, op, o.ID, upd.LineID, "line not found on order")
			}
			next, err := buildLine(upd.LineInput)
			if err != nil {
				return lineErr(shared.ErrValidation, op, o.ID, upd.LineID, err.Error())
			}
			next.ID, next.OrderID, next.Seq = line.ID, line.OrderID, line.Seq
			*line = next
		}
		for _, lineID := range input.RemoveLines {
			line, ok := o.Line(lineID)
			if !ok || line.Deleted {
				return lineErr(shared.ErrValidation, op, o.ID, lineID, "line not found on order")
			}
			line.Deleted = true
		}
		nextSeq := 0
		for _, l := range o.Lines {
			if l.Seq > nextSeq {
				nextSeq = l.Seq
			}
		}
		for i, in := range input.AddLines {
			line, err := buildLine(in)
			if err != nil {
				return orderErr(shared.ErrValidation, op, o.ID, fmt.Sprintf("new line %d: %s", i+1, err))
			}
			nextSeq++
			line.OrderID, line.Seq = o.ID, nextSeq
			o.Lines = append(o.Lines, line)
		}
		RecomputeTotals(o)
		for i := range o.Lines {
			if o.Lines[i].ID != 0 {
				continue
			}
			id, err := tx.InsertLine(ctx, o.Lines[i])
			if err != nil {
				return fmt.Errorf("%s: insert line: %w", op, err)
			}
			o.Lines[i].ID = id
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, "LPO_EDIT", order, from, actor.ID, map[string]any{
		"added": len(input.AddLines), "updated": len(input.UpdateLines), "removed": len(input.RemoveLines), "total": order.Total,
	})
	return order, nil
}

// SubmitOrder sends a DRAFT into approval, snapshotting the route for its
// current total.
func (s *Service) SubmitOrder(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	const op = "lpo.submit"
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if status := DeriveStatus(*o); status != StatusDraft {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", status))
		}
		if actor.ID == 0 || actor.ID != o.RequestedBy {
			return orderErr(shared.ErrForbidden, op, o.ID, "only the requester may submit")
		}
		if strings.TrimSpace(o.VendorName) == "" {
			return orderErr(shared.ErrValidation, op, o.ID, "vendor name required")
		}
		live := o.LiveLines()
		if len(live) == 0 {
			return orderErr(shared.ErrValidation, op, o.ID, "at least one line required")
		}
		for _, l := range live {
			if !l.Quantity.IsPositive() {
				return lineErr(shared.ErrValidation, op, o.ID, l.ID, "quantity must be positive")
			}
			if l.UnitPrice.IsNegative() {
				return lineErr(shared.ErrValidation, op, o.ID, l.ID, "unit price must not be negative")
			}
		}
		RecomputeTotals(o)
		now := s.now()
		o.Route = s.policy.RequiredTiers(*o)
		o.Approvals = nil
		o.SubmittedAt = &now
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordApproval(ctx, order, actor, "", shared.ApprovalSubmit, "")
	s.afterCommit(ctx, "LPO_SUBMIT", order, from, actor.ID, map[string]any{"route": order.Route, "total": order.Total})
	return order, nil
}

// ApproveOrder stamps tier and advances to the next tier or APPROVED.
// Approving a tier that is not the current one fails with InvalidState.
func (s *Service) ApproveOrder(ctx context.Context, orderID int64, actor shared.Actor, tier Tier, comment string) (Order, error) {
	const op = "lpo.approve"
	if !tier.IsValid() {
		return Order{}, tierErr(shared.ErrValidation, op, orderID, tier, "unknown tier")
	}
	comment = strings.TrimSpace(comment)
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if err := s.checkTier(op, *o, actor, tier); err != nil {
			return err
		}
		o.Approvals = append(o.Approvals, ApprovalStamp{Tier: tier, ActorID: actor.ID, At: s.now(), Comment: comment})
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordApproval(ctx, order, actor, tier, shared.ApprovalApprove, comment)
	s.afterCommit(ctx, "LPO_APPROVE", order, from, actor.ID, map[string]any{"tier": tier})
	return order, nil
}

// RejectOrder stops the order at tier. The reason is mandatory and the
// resulting state is terminal.
func (s *Service) RejectOrder(ctx context.Context, orderID int64, actor shared.Actor, tier Tier, reason string) (Order, error) {
	const op = "lpo.reject"
	if !tier.IsValid() {
		return Order{}, tierErr(shared.ErrValidation, op, orderID, tier, "unknown tier")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, tierErr(shared.ErrValidation, op, orderID, tier, "rejection reason required")
	}
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if err := s.checkTier(op, *o, actor, tier); err != nil {
			return err
		}
		o.Rejection = &Rejection{Tier: tier, ActorID: actor.ID, Reason: reason, At: s.now()}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordApproval(ctx, order, actor, tier, shared.ApprovalReject, reason)
	s.afterCommit(ctx, "LPO_REJECT", order, from, actor.ID, map[string]any{"tier": tier, "reason": reason})
	return order, nil
}

func (s *Service) checkTier(op string, o Order, actor shared.Actor, tier Tier) error {
	status := DeriveStatus(o)
	if status != tier.PendingStatus() {
		return tierErr(shared.ErrInvalidState, op, o.ID, tier, fmt.Sprintf("order is %s", status))
	}
	if !s.policy.CanAct(actor, tier, o.DepartmentID) {
		return tierErr(shared.ErrForbidden, op, o.ID, tier, "actor cannot act on this tier")
	}
	return nil
}

// SendToVendor marks an APPROVED order as sent and hands it to the notifier
// after commit.
func (s *Service) SendToVendor(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	const op = "lpo.send_to_vendor"
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if status := DeriveStatus(*o); status != StatusApproved {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", status))
		}
		if actor.ID == 0 || (actor.ID != o.RequestedBy && !actor.HasRole(s.policy.Roles.Procurement)) {
			return orderErr(shared.ErrForbidden, op, o.ID, "requester or procurement required")
		}
		now := s.now()
		o.SentAt = &now
		o.SentBy = actor.ID
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, "LPO_SEND", order, from, actor.ID, nil)
	if s.deps.Notifier != nil {
		dispatch := VendorDispatch{
			OrderID:     order.ID,
			Number:      order.Number,
			VendorID:    order.VendorID,
			VendorName:  order.VendorName,
			Currency:    order.Currency,
			Total:       order.Total,
			DocumentRef: order.DocumentRef,
			SentBy:      actor.ID,
			SentAt:      *order.SentAt,
		}
		if err := s.deps.Notifier.NotifyVendor(ctx, dispatch); err != nil {
			s.logger.Warn("vendor dispatch", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	return order, nil
}

// CancelOrder abandons an order that has not received goods.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, actor shared.Actor, reason string) (Order, error) {
	const op = "lpo.cancel"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Order{}, orderErr(shared.ErrValidation, op, orderID, "cancellation reason required")
	}
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if !allows(*o, ActionCancel) || o.HasReceipts() {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", DeriveStatus(*o)))
		}
		r := s.policy.Roles
		if actor.ID == 0 || (actor.ID != o.RequestedBy && !actor.HasAnyRole(r.Procurement, r.Superuser)) {
			return orderErr(shared.ErrForbidden, op, o.ID, "requester, procurement or superuser required")
		}
		now := s.now()
		o.CancelledAt = &now
		o.CancelledBy = actor.ID
		o.CancelReason = reason
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordApproval(ctx, order, actor, "", shared.ApprovalCancel, reason)
	s.afterCommit(ctx, "LPO_CANCEL", order, from, actor.ID, map[string]any{"reason": reason})
	return order, nil
}

// MarkInvoiced records the vendor invoice against a fully received order.
func (s *Service) MarkInvoiced(ctx context.Context, orderID int64, actor shared.Actor, invoiceRef string) (Order, error) {
	const op = "lpo.mark_invoiced"
	invoiceRef = strings.TrimSpace(invoiceRef)
	if invoiceRef == "" {
		return Order{}, orderErr(shared.ErrValidation, op, orderID, "invoice reference required")
	}
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if status := DeriveStatus(*o); status != StatusFullyReceived {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", status))
		}
		if !actor.HasRole(s.policy.Roles.Accounts) {
			return orderErr(shared.ErrForbidden, op, o.ID, "accounts role required")
		}
		now := s.now()
		o.InvoicedAt = &now
		o.InvoicedBy = actor.ID
		o.InvoiceRef = invoiceRef
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, "LPO_INVOICE", order, from, actor.ID, map[string]any{"invoice_ref": invoiceRef})
	return order, nil
}

// CloseOrder finishes an invoiced order.
func (s *Service) CloseOrder(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	const op = "lpo.close"
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		if status := DeriveStatus(*o); status != StatusInvoiced {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", status))
		}
		if !actor.HasRole(s.policy.Roles.Accounts) {
			return orderErr(shared.ErrForbidden, op, o.ID, "accounts role required")
		}
		now := s.now()
		o.ClosedAt = &now
		o.ClosedBy = actor.ID
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterCommit(ctx, "LPO_CLOSE", order, from, actor.ID, nil)
	return order, nil
}

// readTimeout bounds a shared order read once it is detached from the
// caller that started it.
const readTimeout = 10 * time.Second

// GetOrder returns an order with its lines. Concurrent reads of the same
// order share one repository call; a caller that gives up does not fail the
// others, and each caller gets its own copy.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	ch := s.reads.DoChan(strconv.FormatInt(orderID, 10), func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()
		return s.repo.GetOrder(readCtx, orderID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Order{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, shared.ErrNotFound) {
			return Order{}, orderErr(shared.ErrNotFound, "lpo.get", orderID, "")
		}
		return Order{}, res.Err
	}
	return res.Val.(Order).Clone(), nil
}

// ListPendingFor returns orders waiting on a tier actor may act on.
func (s *Service) ListPendingFor(ctx context.Context, actor shared.Actor, limit int) ([]Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	orders, err := s.repo.ListOrdersByStatus(ctx, PendingStatuses(), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		tier, ok := TierOf(DeriveStatus(o))
		if ok && s.policy.CanAct(actor, tier, o.DepartmentID) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListReceipts returns the receipt ledger of an order in recording order.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]ReceiptEvent, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListReceipts(ctx, orderID)
}

// History is the recorded trail of an order.
type History struct {
	Approvals []shared.ApprovalLog
	Audit     []shared.AuditLog
}

// OrderHistory returns the approval and audit trails of an order. Trails
// without a configured reader come back empty.
func (s *Service) OrderHistory(ctx context.Context, orderID int64, limit int) (History, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return History{}, err
	}
	var h History
	if s.deps.ApprovalTrail != nil {
		logs, err := s.deps.ApprovalTrail.List(ctx, Module, shared.ApprovalRef(Module, orderID))
		if err != nil {
			return History{}, fmt.Errorf("lpo history approvals: %w", err)
		}
		h.Approvals = logs
	}
	if s.deps.AuditTrail != nil {
		logs, err := s.deps.AuditTrail.List(ctx, auditEntity, strconv.FormatInt(orderID, 10), limit)
		if err != nil {
			return History{}, fmt.Errorf("lpo history audit: %w", err)
		}
		h.Audit = logs
	}
	return h, nil
}

// mutateOrder runs fn under the order lock inside a transaction, derives the
// resulting status, checks it against the transition table and writes the
// order with a version compare-and-swap.
func (s *Service) mutateOrder(ctx context.Context, op string, orderID int64, fn func(context.Context, TxRepository, *Order) error) (Order, Status, error) {
	release, err := s.deps.Locks.Acquire(ctx, shared.OrderLockKey(orderID), s.lockWait)
	if err != nil {
		if errors.Is(err, shared.ErrTimeout) {
			err = orderErr(shared.ErrTimeout, op, orderID, "order is locked by another request")
		}
		s.metrics.ObserveRejected(op, kindLabel(err))
		return Order{}, "", err
	}
	defer release()

	var (
		updated Order
		from    Status
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return orderErr(shared.ErrNotFound, op, orderID, "")
			}
			return err
		}
		from = DeriveStatus(o)
		version := o.Version
		if err := fn(ctx, tx, &o); err != nil {
			return err
		}
		to := DeriveStatus(o)
		if !CanTransition(from, to) {
			return orderErr(shared.ErrInvalidState, op, orderID, fmt.Sprintf("%s cannot move to %s", from, to))
		}
		o.Status = to
		o.Version = version + 1
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o, version); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return orderErr(shared.ErrConflict, op, orderID, "order changed concurrently")
			}
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		s.metrics.ObserveRejected(op, kindLabel(err))
		return Order{}, "", err
	}
	s.reads.Forget(strconv.FormatInt(orderID, 10))
	return updated, from, nil
}

func (s *Service) afterCommit(ctx context.Context, action string, order Order, from Status, actorID int64, meta map[string]any) {
	if s.deps.Audit != nil {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["status"] = order.Status
		if from != "" && from != order.Status {
			meta["from"] = from
		}
		if err := s.deps.Audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: auditEntity, EntityID: strconv.FormatInt(order.ID, 10), Meta: meta}); err != nil {
			s.logger.Warn("lpo audit", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	if from == order.Status {
		return
	}
	s.metrics.ObserveTransition(string(from), string(order.Status))
	s.logger.Info("lpo status changed", slog.Int64("order_id", order.ID), slog.String("from", string(from)), slog.String("to", string(order.Status)))
	if s.deps.Events != nil {
		evt := StatusChangedEvent{
			Type:     "lpo.order.status_changed",
			OrderID:  order.ID,
			Number:   order.Number,
			From:     from,
			To:       order.Status,
			Total:    order.Total,
			Currency: order.Currency,
			ActorID:  actorID,
			Occurred: s.now(),
		}
		if err := s.deps.Events.Publish(ctx, orderKey(order.ID), evt); err != nil {
			s.logger.Warn("publish order event", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) recordApproval(ctx context.Context, order Order, actor shared.Actor, tier Tier, action shared.ApprovalAction, note string) {
	if s.deps.Approvals == nil {
		return
	}
	log := shared.ApprovalLog{
		Module:  Module,
		RefID:   shared.ApprovalRef(Module, order.ID),
		ActorID: actor.ID,
		Tier:    string(tier),
		Action:  action,
		Note:    note,
	}
	if err := s.deps.Approvals.Record(ctx, log); err != nil {
		s.logger.Warn("approval trail", slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
}

const auditEntity = "lpo"

func orderKey(id int64) string {
	return "lpo:" + strconv.FormatInt(id, 10)
}

func kindLabel(err error) string {
	if kind := shared.KindOf(err); kind != nil {
		return strings.ReplaceAll(kind.Error(), " ", "_")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal"
}

func buildLine(in LineInput) (OrderLine, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return OrderLine{}, errors.New("description required")
	}
	uom := strings.ToUpper(strings.TrimSpace(in.UOM))
	if uom == "" {
		return OrderLine{}, errors.New("unit of measure required")
	}
	if msg := quantityProblem(uom, in.Quantity); msg != "" {
		return OrderLine{}, errors.New(msg)
	}
	if in.UnitPrice.IsNegative() {
		return OrderLine{}, errors.New("unit price must not be negative")
	}
	tracking := in.Tracking
	if tracking == "" {
		tracking = TrackingConsumable
	}
	if !tracking.IsValid() {
		return OrderLine{}, fmt.Errorf("unknown tracking %q", in.Tracking)
	}
	if tracking == TrackingSerialized && !IsCountUnit(uom) {
		return OrderLine{}, errors.New("serialized lines must use a count unit")
	}
	return OrderLine{
		Description:      desc,
		UOM:              uom,
		Quantity:         in.Quantity,
		UnitPrice:        in.UnitPrice,
		Category:         strings.TrimSpace(in.Category),
		Tracking:         tracking,
		QuantityReceived: decimal.Zero,
	}, nil
}

func applyHeader(o *Order, in EditOrderInput) error {
	if in.VendorID != nil {
		o.VendorID = *in.VendorID
	}
	if in.VendorName != nil {
		o.VendorName = strings.TrimSpace(*in.VendorName)
	}
	if in.BranchID != nil {
		if *in.BranchID <= 0 {
			return errors.New("branch required")
		}
		o.BranchID = *in.BranchID
	}
	if in.DepartmentID != nil {
		o.DepartmentID = *in.DepartmentID
	}
	if in.Currency != nil {
		cur, err := normaliseCurrency(*in.Currency)
		if err != nil {
			return err
		}
		o.Currency = cur
	}
	if in.VATPercent != nil {
		if err := validatePercent("vat", *in.VATPercent); err != nil {
			return err
		}
		o.VATPercent = *in.VATPercent
	}
	if in.DiscountPercent != nil {
		if err := validatePercent("discount", *in.DiscountPercent); err != nil {
			return err
		}
		o.DiscountPercent = *in.DiscountPercent
	}
	if in.QuotationRef != nil {
		o.QuotationRef = *in.QuotationRef
	}
	if in.DocumentRef != nil {
		o.DocumentRef = *in.DocumentRef
	}
	if in.Notes != nil {
		o.Notes = *in.Notes
	}
	return nil
}

func normaliseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return unit.String(), nil
}

func validatePercent(name string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("%s percent must be between 0 and 100", name)
	}
	return nil
}
