package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Writer inserts assets inside a caller-owned transaction. The goods-receipt
// processor passes its own transaction so asset creation commits or rolls
// back with the ledger update.
type Writer interface {
	InsertAsset(ctx context.Context, asset Asset) (int64, error)
}

// RepositoryPort describes repository operations used by Registrar.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Asset, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Asset, error)
	ListPendingSince(ctx context.Context, receivedBefore time.Time) ([]Asset, error)
}

// TxRepository exposes transactional asset operations.
type TxRepository interface {
	Writer
	GetForUpdate(ctx context.Context, id int64) (Asset, error)
	UpdateAsset(ctx context.Context, asset Asset, expectedVersion int64) error
	NextTagSequence(ctx context.Context, year int) (int64, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPublisher forwards lifecycle events to reporting consumers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// StatusChangedEvent is published after every committed asset transition.
type StatusChangedEvent struct {
	Type     string    `json:"type"`
	AssetID  int64     `json:"asset_id"`
	Tag      string    `json:"tag,omitempty"`
	OrderID  int64     `json:"order_id"`
	LineID   int64     `json:"line_id"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Reason   string    `json:"reason,omitempty"`
	ActorID  int64     `json:"actor_id"`
	Occurred time.Time `json:"occurred_at"`
}

// Config tunes the registrar.
type Config struct {
	LockWait time.Duration
}

// Registrar allocates and tracks fixed assets received against orders.
type Registrar struct {
	repo   RepositoryPort
	locks  shared.Locker
	audit  AuditPort
	events EventPublisher
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewRegistrar constructs the registrar. audit and events may be nil.
func NewRegistrar(repo RepositoryPort, locks shared.Locker, audit AuditPort, events EventPublisher, logger *slog.Logger, cfg Config) *Registrar {
	if locks == nil {
		locks = shared.NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	return &Registrar{repo: repo, locks: locks, audit: audit, events: events, logger: logger, cfg: cfg, now: time.Now}
}

// CreatePending stores a PENDING_ACTIVATION asset for a received unit. The
// tag is not allocated until the asset is put to use.
func (r *Registrar) CreatePending(ctx context.Context, w Writer, src Source) (Asset, error) {
	const op = "assets.create_pending"
	if src.OrderID == 0 || src.LineID == 0 || src.ReceiptID == uuid.Nil {
		return Asset{}, domainErr(ErrValidation, op, 0, "order, line and receipt references required")
	}
	qty := src.Quantity
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	if !qty.IsPositive() {
		return Asset{}, domainErr(ErrValidation, op, 0, "quantity must be positive")
	}
	now := r.now()
	asset := Asset{
		Status:          StatusPendingActivation,
		OrderID:         src.OrderID,
		LineID:          src.LineID,
		ReceiptID:       src.ReceiptID,
		UnitIndex:       src.UnitIndex,
		SerialNumber:    strings.TrimSpace(src.SerialNumber),
		Description:     src.Description,
		Category:        src.Category,
		Condition:       src.Condition,
		Location:        src.Location,
		Quantity:        qty,
		AcquisitionCost: src.UnitCost.Mul(qty).Round(4),
		Currency:        src.Currency,
		ReceivedAt:      src.ReceivedAt,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	id, err := w.InsertAsset(ctx, asset)
	if err != nil {
		return Asset{}, fmt.Errorf("%s: %w", op, err)
	}
	asset.ID = id
	return asset, nil
}

// PutToUse activates a pending asset, allocates its permanent tag and fixes
// the depreciation start date.
func (r *Registrar) PutToUse(ctx context.Context, assetID int64, date time.Time, actor shared.Actor) (Asset, error) {
	const op = "assets.put_to_use"
	if date.IsZero() {
		return Asset{}, domainErr(ErrValidation, op, assetID, "put-to-use date required")
	}
	if actor.ID == 0 {
		return Asset{}, domainErr(ErrValidation, op, assetID, "actor required")
	}
	start := truncateDay(date)

	updated, err := r.mutate(ctx, op, assetID, func(ctx context.Context, tx TxRepository, asset *Asset) error {
		if asset.Status != StatusPendingActivation {
			return domainErr(ErrInvalidState, op, assetID, fmt.Sprintf("asset is %s", asset.Status))
		}
		if !asset.ReceivedAt.IsZero() && start.Before(truncateDay(asset.ReceivedAt)) {
			return domainErr(ErrValidation, op, assetID, "depreciation cannot start before receipt")
		}
		seq, err := tx.NextTagSequence(ctx, start.Year())
		if err != nil {
			return fmt.Errorf("%s: allocate tag: %w", op, err)
		}
		now := r.now()
		asset.Status = StatusActive
		asset.Tag = FormatTag(start.Year(), seq)
		asset.DepreciationStart = &start
		asset.ActivatedBy = actor.ID
		asset.ActivatedAt = &now
		return nil
	})
	if err != nil {
		return Asset{}, err
	}
	r.afterCommit(ctx, updated, StatusPendingActivation, "", actor.ID)
	return updated, nil
}

// ChangeStatus moves an activated asset between operational states.
// DISPOSED is terminal and requires a reason.
func (r *Registrar) ChangeStatus(ctx context.Context, assetID int64, target Status, reason string, actor shared.Actor) (Asset, error) {
	const op = "assets.change_status"
	reason = strings.TrimSpace(reason)
	if !target.IsValid() {
		return Asset{}, domainErr(ErrValidation, op, assetID, fmt.Sprintf("unknown status %q", target))
	}
	if target == StatusDisposed && reason == "" {
		return Asset{}, domainErr(ErrValidation, op, assetID, "disposal reason required")
	}
	if actor.ID == 0 {
		return Asset{}, domainErr(ErrValidation, op, assetID, "actor required")
	}

	var from Status
	updated, err := r.mutate(ctx, op, assetID, func(ctx context.Context, tx TxRepository, asset *Asset) error {
		from = asset.Status
		if asset.Status == StatusPendingActivation {
			return domainErr(ErrInvalidState, op, assetID, "asset must be put to use first")
		}
		if !asset.Status.CanTransitionTo(target) {
			return domainErr(ErrInvalidState, op, assetID, fmt.Sprintf("cannot move from %s to %s", asset.Status, target))
		}
		asset.Status = target
		asset.StatusReason = reason
		return nil
	})
	if err != nil {
		return Asset{}, err
	}
	r.afterCommit(ctx, updated, from, reason, actor.ID)
	return updated, nil
}

// Get returns a single asset.
func (r *Registrar) Get(ctx context.Context, assetID int64) (Asset, error) {
	asset, err := r.repo.Get(ctx, assetID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Asset{}, domainErr(ErrNotFound, "assets.get", assetID, "")
		}
		return Asset{}, err
	}
	return asset, nil
}

// ListByOrder returns every asset created from an order's receipts.
func (r *Registrar) ListByOrder(ctx context.Context, orderID int64) ([]Asset, error) {
	return r.repo.ListByOrder(ctx, orderID)
}

// ListPendingSince returns pending assets received before the cutoff.
func (r *Registrar) ListPendingSince(ctx context.Context, receivedBefore time.Time) ([]Asset, error) {
	return r.repo.ListPendingSince(ctx, receivedBefore)
}

// mutate applies fn to the locked asset and returns it as persisted, with the
// bumped version.
func (r *Registrar) mutate(ctx context.Context, op string, assetID int64, fn func(context.Context, TxRepository, *Asset) error) (Asset, error) {
	release, err := r.locks.Acquire(ctx, shared.AssetLockKey(assetID), r.cfg.LockWait)
	if err != nil {
		if errors.Is(err, shared.ErrTimeout) {
			return Asset{}, domainErr(shared.ErrTimeout, op, assetID, "asset is locked by another request")
		}
		return Asset{}, err
	}
	defer release()

	var persisted Asset
	err = r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		asset, err := tx.GetForUpdate(ctx, assetID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return domainErr(ErrNotFound, op, assetID, "")
			}
			return err
		}
		version := asset.Version
		if err := fn(ctx, tx, &asset); err != nil {
			return err
		}
		asset.Version = version + 1
		asset.UpdatedAt = r.now()
		if err := tx.UpdateAsset(ctx, asset, version); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return domainErr(shared.ErrConflict, op, assetID, "asset changed concurrently")
			}
			return err
		}
		persisted = asset
		return nil
	})
	if err != nil {
		return Asset{}, err
	}
	return persisted, nil
}

func (r *Registrar) afterCommit(ctx context.Context, asset Asset, from Status, reason string, actorID int64) {
	if r.audit != nil {
		meta := map[string]any{"from": from, "to": asset.Status, "tag": asset.Tag}
		if reason != "" {
			meta["reason"] = reason
		}
		if err := r.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: "ASSET_" + string(asset.Status), Entity: "asset", EntityID: fmt.Sprintf("%d", asset.ID), Meta: meta}); err != nil {
			r.logger.Warn("asset audit", slog.Int64("asset_id", asset.ID), slog.Any("error", err))
		}
	}
	if r.events != nil {
		evt := StatusChangedEvent{
			Type:     "asset.status_changed",
			AssetID:  asset.ID,
			Tag:      asset.Tag,
			OrderID:  asset.OrderID,
			LineID:   asset.LineID,
			From:     from,
			To:       asset.Status,
			Reason:   reason,
			ActorID:  actorID,
			Occurred: r.now(),
		}
		if err := r.events.Publish(ctx, fmt.Sprintf("asset:%d", asset.ID), evt); err != nil {
			r.logger.Warn("publish asset event", slog.Int64("asset_id", asset.ID), slog.Any("error", err))
		}
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
