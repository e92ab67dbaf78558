package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/db"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q DBTX
}

// NewWriter returns a Writer bound to q, typically a transaction owned by
// another package.
func NewWriter(q DBTX) Writer {
	return &txRepo{q: q}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConflict, err)
	}
	return err
}

const assetColumns = `id, tag, status, order_id, line_id, receipt_id, unit_index, serial_number,
	description, category, condition, location, quantity, acquisition_cost, currency,
	received_at, depreciation_start, activated_by, activated_at, status_reason, version,
	created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a           Asset
		tag         *string
		status      string
		activatedBy *int64
	)
	err := row.Scan(&a.ID, &tag, &status, &a.OrderID, &a.LineID, &a.ReceiptID, &a.UnitIndex, &a.SerialNumber,
		&a.Description, &a.Category, &a.Condition, &a.Location, &a.Quantity, &a.AcquisitionCost, &a.Currency,
		&a.ReceivedAt, &a.DepreciationStart, &activatedBy, &a.ActivatedAt, &a.StatusReason, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, shared.ErrNotFound
		}
		return Asset{}, err
	}
	if tag != nil {
		a.Tag = *tag
	}
	if activatedBy != nil {
		a.ActivatedBy = *activatedBy
	}
	a.Status = Status(status)
	return a, nil
}

func collectAssets(rows pgx.Rows) ([]Asset, error) {
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get fetches an asset by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Asset, error) {
	return scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id = $1`, id))
}

// ListByOrder returns assets for an order ordered by creation.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return collectAssets(rows)
}

// ListPendingSince returns pending assets received before the cutoff.
func (r *Repository) ListPendingSince(ctx context.Context, receivedBefore time.Time) ([]Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets
WHERE status = $1 AND received_at < $2 ORDER BY received_at, id`, string(StatusPendingActivation), receivedBefore)
	if err != nil {
		return nil, err
	}
	return collectAssets(rows)
}

// InsertAsset stores a new asset and returns its id.
func (t *txRepo) InsertAsset(ctx context.Context, a Asset) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO fixed_assets (
			tag, status, order_id, line_id, receipt_id, unit_index, serial_number,
			description, category, condition, location, quantity, acquisition_cost, currency,
			received_at, version, created_at, updated_at
		) VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		a.Tag, string(a.Status), a.OrderID, a.LineID, a.ReceiptID, a.UnitIndex, a.SerialNumber,
		a.Description, a.Category, a.Condition, a.Location, a.Quantity, a.AcquisitionCost, a.Currency,
		a.ReceivedAt, a.Version, a.CreatedAt, a.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert asset: %w", err)
	}
	return id, nil
}

// GetForUpdate fetches an asset and locks its row for the transaction.
func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Asset, error) {
	return scanAsset(t.q.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id = $1 FOR UPDATE`, id))
}

// UpdateAsset writes mutable fields when the stored version matches.
func (t *txRepo) UpdateAsset(ctx context.Context, a Asset, expectedVersion int64) error {
	var activatedBy *int64
	if a.ActivatedBy != 0 {
		activatedBy = &a.ActivatedBy
	}
	tag, err := t.q.Exec(ctx, `
		UPDATE fixed_assets
		SET tag = NULLIF($1, ''), status = $2, depreciation_start = $3, activated_by = $4,
			activated_at = $5, status_reason = $6, version = $7, updated_at = $8
		WHERE id = $9 AND version = $10`,
		a.Tag, string(a.Status), a.DepreciationStart, activatedBy,
		a.ActivatedAt, a.StatusReason, a.Version, a.UpdatedAt,
		a.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

// NextTagSequence increments and returns the per-year tag counter.
func (t *txRepo) NextTagSequence(ctx context.Context, year int) (int64, error) {
	var seq int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO asset_tag_sequences (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = asset_tag_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&seq)
	return seq, err
}
