package lpo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/munesh14/first-exchange-hub-sub000/internal/assets"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/db"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	assets.Writer
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{Writer: assets.NewWriter(tx), tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

const orderColumns = `id, number, vendor_id, vendor_name, branch_id, department_id, currency,
	vat_percent, discount_percent, subtotal, vat_amount, discount_amount, total, status,
	route, approvals, rejected_tier, rejected_by, reject_reason, rejected_at, requested_by,
	quotation_ref, document_ref, notes, submitted_at, sent_at, sent_by, invoiced_at, invoiced_by,
	invoice_ref, closed_at, closed_by, cancelled_at, cancelled_by, cancel_reason, version,
	created_at, updated_at`

const lineColumns = `id, order_id, seq, description, uom, quantity, unit_price, line_total,
	category, tracking, quantity_received, deleted`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o            Order
		status       string
		route        []string
		departmentID *int64
		rejTier      *string
		rejBy        *int64
		rejReason    *string
		rejAt        *time.Time
		sentBy       *int64
		invoicedBy   *int64
		closedBy     *int64
		cancelledBy  *int64
	)
	err := row.Scan(&o.ID, &o.Number, &o.VendorID, &o.VendorName, &o.BranchID, &departmentID, &o.Currency,
		&o.VATPercent, &o.DiscountPercent, &o.Subtotal, &o.VATAmount, &o.DiscountAmount, &o.Total, &status,
		&route, &o.Approvals, &rejTier, &rejBy, &rejReason, &rejAt, &o.RequestedBy,
		&o.QuotationRef, &o.DocumentRef, &o.Notes, &o.SubmittedAt, &o.SentAt, &sentBy, &o.InvoicedAt, &invoicedBy,
		&o.InvoiceRef, &o.ClosedAt, &closedBy, &o.CancelledAt, &cancelledBy, &o.CancelReason, &o.Version,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	o.DepartmentID = derefID(departmentID)
	o.SentBy = derefID(sentBy)
	o.InvoicedBy = derefID(invoicedBy)
	o.ClosedBy = derefID(closedBy)
	o.CancelledBy = derefID(cancelledBy)
	for _, t := range route {
		o.Route = append(o.Route, Tier(t))
	}
	if rejTier != nil && rejAt != nil {
		o.Rejection = &Rejection{Tier: Tier(*rejTier), At: *rejAt}
		if rejBy != nil {
			o.Rejection.ActorID = *rejBy
		}
		if rejReason != nil {
			o.Rejection.Reason = *rejReason
		}
	}
	return o, nil
}

func derefID(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func scanLine(row pgx.Row) (OrderLine, error) {
	var (
		l        OrderLine
		tracking string
	)
	if err := row.Scan(&l.ID, &l.OrderID, &l.Seq, &l.Description, &l.UOM, &l.Quantity, &l.UnitPrice, &l.LineTotal,
		&l.Category, &tracking, &l.QuantityReceived, &l.Deleted); err != nil {
		return OrderLine{}, err
	}
	l.Tracking = Tracking(tracking)
	return l, nil
}

func loadLines(ctx context.Context, q assets.DBTX, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM lpo_order_lines WHERE order_id = $1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func loadOrder(ctx context.Context, q assets.DBTX, query string, id int64) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, q, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("load lines: %w", err)
	}
	return o, nil
}

// GetOrder returns order header with lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, r.pool, `SELECT `+orderColumns+` FROM lpo_orders WHERE id = $1`, id)
}

// OrderIDForLine resolves the owning order of a line.
func (r *Repository) OrderIDForLine(ctx context.Context, lineID int64) (int64, error) {
	var orderID int64
	err := r.pool.QueryRow(ctx, `SELECT order_id FROM lpo_order_lines WHERE id = $1`, lineID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return orderID, err
}

// ListOrdersByStatus returns orders in any of statuses, oldest first. Lines
// are not loaded.
func (r *Repository) ListOrdersByStatus(ctx context.Context, statuses []Status, limit int) ([]Order, error) {
	codes := make([]string, len(statuses))
	for i, s := range statuses {
		codes[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM lpo_orders
WHERE status = ANY($1) ORDER BY submitted_at NULLS LAST, id LIMIT $2`, codes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListReceipts returns the ledger of an order.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]ReceiptEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, line_id, quantity, condition, serial_numbers, destination,
	received_by, received_on, delivery_note_ref, recorded_at
FROM lpo_receipts WHERE order_id = $1 ORDER BY recorded_at, line_id`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReceiptEvent, error) {
		var (
			ev        ReceiptEvent
			condition string
		)
		err := row.Scan(&ev.ID, &ev.OrderID, &ev.LineID, &ev.Quantity, &condition, &ev.SerialNumbers, &ev.Destination,
			&ev.ReceivedBy, &ev.ReceivedOn, &ev.DeliveryNoteRef, &ev.RecordedAt)
		ev.Condition = Condition(condition)
		return ev, err
	})
}

// NextOrderNumber increments and returns the per-year number counter.
func (t *txRepo) NextOrderNumber(ctx context.Context, year int) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO lpo_number_sequences (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = lpo_number_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&seq)
	return seq, err
}

// InsertOrder stores a new order header.
func (t *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO lpo_orders (
			number, vendor_id, vendor_name, branch_id, department_id, currency,
			vat_percent, discount_percent, subtotal, vat_amount, discount_amount, total, status,
			route, approvals, requested_by, quotation_ref, document_ref, notes, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id`,
		o.Number, o.VendorID, o.VendorName, o.BranchID, o.DepartmentID, o.Currency,
		o.VATPercent, o.DiscountPercent, o.Subtotal, o.VATAmount, o.DiscountAmount, o.Total, string(o.Status),
		routeCodes(o.Route), approvalsJSON(o.Approvals), o.RequestedBy, o.QuotationRef, o.DocumentRef, o.Notes,
		o.Version, o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	return id, err
}

// InsertLine stores a new order line.
func (t *txRepo) InsertLine(ctx context.Context, l OrderLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO lpo_order_lines (
			order_id, seq, description, uom, quantity, unit_price, line_total, category, tracking,
			quantity_received, deleted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		l.OrderID, l.Seq, l.Description, l.UOM, l.Quantity, l.UnitPrice, l.LineTotal, l.Category, string(l.Tracking),
		l.QuantityReceived, l.Deleted,
	).Scan(&id)
	return id, err
}

// GetOrderForUpdate loads an order and locks its row.
func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return loadOrder(ctx, t.tx, `SELECT `+orderColumns+` FROM lpo_orders WHERE id = $1 FOR UPDATE`, id)
}

// UpdateOrder writes header and lines guarded by the row version.
func (t *txRepo) UpdateOrder(ctx context.Context, o Order, expectedVersion int64) error {
	var (
		rejTier   *string
		rejBy     *int64
		rejReason *string
		rejAt     *time.Time
	)
	if o.Rejection != nil {
		tier := string(o.Rejection.Tier)
		rejTier, rejBy, rejReason, rejAt = &tier, &o.Rejection.ActorID, &o.Rejection.Reason, &o.Rejection.At
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE lpo_orders SET
			vendor_id = $1, vendor_name = $2, branch_id = $3, department_id = NULLIF($4, 0), currency = $5,
			vat_percent = $6, discount_percent = $7, subtotal = $8, vat_amount = $9, discount_amount = $10,
			total = $11, status = $12, route = $13, approvals = $14, rejected_tier = $15, rejected_by = $16,
			reject_reason = $17, rejected_at = $18, quotation_ref = $19, document_ref = $20, notes = $21,
			submitted_at = $22, sent_at = $23, sent_by = NULLIF($24, 0), invoiced_at = $25, invoiced_by = NULLIF($26, 0),
			invoice_ref = $27, closed_at = $28, closed_by = NULLIF($29, 0), cancelled_at = $30, cancelled_by = NULLIF($31, 0),
			cancel_reason = $32, version = $33, updated_at = $34
		WHERE id = $35 AND version = $36`,
		o.VendorID, o.VendorName, o.BranchID, o.DepartmentID, o.Currency,
		o.VATPercent, o.DiscountPercent, o.Subtotal, o.VATAmount, o.DiscountAmount,
		o.Total, string(o.Status), routeCodes(o.Route), approvalsJSON(o.Approvals), rejTier, rejBy,
		rejReason, rejAt, o.QuotationRef, o.DocumentRef, o.Notes,
		o.SubmittedAt, o.SentAt, o.SentBy, o.InvoicedAt, o.InvoicedBy,
		o.InvoiceRef, o.ClosedAt, o.ClosedBy, o.CancelledAt, o.CancelledBy,
		o.CancelReason, o.Version, o.UpdatedAt,
		o.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	batch := &pgx.Batch{}
	for _, l := range o.Lines {
		if l.ID == 0 {
			continue
		}
		batch.Queue(`
			UPDATE lpo_order_lines SET description = $1, uom = $2, quantity = $3, unit_price = $4,
				line_total = $5, category = $6, tracking = $7, quantity_received = $8, deleted = $9
			WHERE id = $10 AND order_id = $11`,
			l.Description, l.UOM, l.Quantity, l.UnitPrice, l.LineTotal, l.Category, string(l.Tracking),
			l.QuantityReceived, l.Deleted, l.ID, o.ID)
	}
	if batch.Len() == 0 {
		return nil
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

// InsertReceipt appends to the receipt ledger.
func (t *txRepo) InsertReceipt(ctx context.Context, r ReceiptEvent) error {
	serials := r.SerialNumbers
	if serials == nil {
		serials = []string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lpo_receipts (
			id, order_id, line_id, quantity, condition, serial_numbers, destination, received_by,
			received_on, delivery_note_ref, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.OrderID, r.LineID, r.Quantity, string(r.Condition), serials, r.Destination, r.ReceivedBy,
		r.ReceivedOn, r.DeliveryNoteRef, r.RecordedAt,
	)
	return err
}

// ReceivedSerials returns every serial already received on the order.
func (t *txRepo) ReceivedSerials(ctx context.Context, orderID int64) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT unnest(serial_numbers) FROM lpo_receipts WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func routeCodes(route []Tier) []string {
	out := make([]string, len(route))
	for i, t := range route {
		out[i] = string(t)
	}
	return out
}

func approvalsJSON(stamps []ApprovalStamp) []ApprovalStamp {
	if stamps == nil {
		return []ApprovalStamp{}
	}
	return stamps
}
