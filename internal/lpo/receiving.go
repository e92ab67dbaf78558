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

	"github.com/munesh14/first-exchange-hub-sub000/internal/assets"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// receiptModule scopes receipt idempotency keys.
const receiptModule = Module + "_RECEIPT"

// receiptNamespace seeds receipt ids derived from idempotency keys.
var receiptNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("lpo:receipt"))

// ReceiveInput describes goods received against one line.
type ReceiveInput struct {
	Quantity        decimal.Decimal
	Condition       Condition
	SerialNumbers   []string
	Destination     string
	ReceivedOn      time.Time
	DeliveryNoteRef string
	IdempotencyKey  string
}

// DeliveryLine is one line of a delivery note.
type DeliveryLine struct {
	LineID        int64
	Quantity      decimal.Decimal
	Condition     Condition
	SerialNumbers []string
	// Destination overrides the delivery destination when set.
	Destination string
}

// DeliveryInput describes a delivery note covering several lines.
type DeliveryInput struct {
	DeliveryNoteRef string
	ReceivedOn      time.Time
	Destination     string
	IdempotencyKey  string
	Lines           []DeliveryLine
}

// ReceiptResult is a stored receipt and what it produced.
type ReceiptResult struct {
	Receipt    ReceiptEvent
	LineStatus LineStatus
	AssetIDs   []int64
}

// ReceiveGoods records a receipt against a single order line.
func (s *Service) ReceiveGoods(ctx context.Context, lineID int64, actor shared.Actor, input ReceiveInput) (ReceiptResult, error) {
	const op = "lpo.receive_goods"
	orderID, err := s.repo.OrderIDForLine(ctx, lineID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ReceiptResult{}, lineErr(shared.ErrNotFound, op, 0, lineID, "")
		}
		return ReceiptResult{}, err
	}
	results, err := s.receive(ctx, op, orderID, actor, DeliveryInput{
		DeliveryNoteRef: input.DeliveryNoteRef,
		ReceivedOn:      input.ReceivedOn,
		Destination:     input.Destination,
		IdempotencyKey:  input.IdempotencyKey,
		Lines: []DeliveryLine{{
			LineID:        lineID,
			Quantity:      input.Quantity,
			Condition:     input.Condition,
			SerialNumbers: input.SerialNumbers,
		}},
	})
	if err != nil {
		return ReceiptResult{}, err
	}
	return results[0], nil
}

// ReceiveDelivery records a delivery note covering several lines of one
// order. All lines are applied in one transaction or none are.
func (s *Service) ReceiveDelivery(ctx context.Context, orderID int64, actor shared.Actor, input DeliveryInput) ([]ReceiptResult, error) {
	return s.receive(ctx, "lpo.receive_delivery", orderID, actor, input)
}

func (s *Service) receive(ctx context.Context, op string, orderID int64, actor shared.Actor, input DeliveryInput) ([]ReceiptResult, error) {
	if actor.ID == 0 {
		return nil, orderErr(shared.ErrValidation, op, orderID, "receiver required")
	}
	if len(input.Lines) == 0 {
		return nil, orderErr(shared.ErrValidation, op, orderID, "at least one line required")
	}
	seen := make(map[int64]struct{}, len(input.Lines))
	for _, dl := range input.Lines {
		if _, dup := seen[dl.LineID]; dup {
			return nil, lineErr(shared.ErrValidation, op, orderID, dl.LineID, "line listed twice")
		}
		seen[dl.LineID] = struct{}{}
		if !dl.Condition.IsValid() {
			return nil, lineErr(shared.ErrValidation, op, orderID, dl.LineID, fmt.Sprintf("unknown condition %q", dl.Condition))
		}
	}
	receivedOn := input.ReceivedOn
	if receivedOn.IsZero() {
		receivedOn = s.now()
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.deps.Idempotency != nil {
		if err := s.deps.Idempotency.CheckAndInsert(ctx, key, receiptModule); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return nil, orderErr(shared.ErrConflict, op, orderID, "receipt already recorded for this idempotency key")
			}
			return nil, err
		}
	}

	var results []ReceiptResult
	order, from, err := s.mutateOrder(ctx, op, orderID, func(ctx context.Context, tx TxRepository, o *Order) error {
		results = results[:0]
		if !allows(*o, ActionReceive) {
			return orderErr(shared.ErrInvalidState, op, o.ID, fmt.Sprintf("order is %s", DeriveStatus(*o)))
		}
		r := s.policy.Roles
		if !actor.HasAnyRole(r.Store, r.Procurement, r.Superuser) {
			return orderErr(shared.ErrForbidden, op, o.ID, "receiving role required")
		}
		existing, err := tx.ReceivedSerials(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("%s: load serials: %w", op, err)
		}
		serials := make(map[string]struct{}, len(existing))
		for _, sn := range existing {
			serials[strings.ToUpper(sn)] = struct{}{}
		}
		now := s.now()
		for _, dl := range input.Lines {
			line, ok := o.Line(dl.LineID)
			if !ok {
				return lineErr(shared.ErrValidation, op, o.ID, dl.LineID, "line does not belong to order")
			}
			cleaned, err := checkSerials(*line, dl, serials)
			if err != nil {
				return lineErr(shared.ErrValidation, op, o.ID, line.ID, err.Error())
			}
			status, err := ApplyReceipt(line, dl.Quantity)
			if err != nil {
				return err
			}
			dest := strings.TrimSpace(dl.Destination)
			if dest == "" {
				dest = strings.TrimSpace(input.Destination)
			}
			receipt := ReceiptEvent{
				ID:              receiptID(key, line.ID),
				OrderID:         o.ID,
				LineID:          line.ID,
				Quantity:        dl.Quantity,
				Condition:       dl.Condition,
				SerialNumbers:   cleaned,
				Destination:     dest,
				ReceivedBy:      actor.ID,
				ReceivedOn:      receivedOn,
				DeliveryNoteRef: strings.TrimSpace(input.DeliveryNoteRef),
				RecordedAt:      now,
			}
			if err := tx.InsertReceipt(ctx, receipt); err != nil {
				return fmt.Errorf("%s: insert receipt: %w", op, err)
			}
			assetIDs, err := s.registerAssets(ctx, tx, *o, *line, receipt)
			if err != nil {
				return err
			}
			results = append(results, ReceiptResult{Receipt: receipt, LineStatus: status, AssetIDs: assetIDs})
		}
		return nil
	})
	if err != nil {
		if key != "" && s.deps.Idempotency != nil {
			if derr := s.deps.Idempotency.Delete(ctx, key, receiptModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return nil, err
	}

	created := 0
	for _, res := range results {
		created += len(res.AssetIDs)
	}
	s.metrics.ObserveReceipt(len(results), created)
	s.afterCommit(ctx, "LPO_RECEIVE", order, from, actor.ID, map[string]any{
		"lines": len(results), "assets": created, "delivery_note": input.DeliveryNoteRef,
	})
	if s.deps.Events != nil {
		for _, res := range results {
			evt := GoodsReceivedEvent{
				Type:       "lpo.goods.received",
				ReceiptID:  res.Receipt.ID.String(),
				OrderID:    res.Receipt.OrderID,
				LineID:     res.Receipt.LineID,
				Quantity:   res.Receipt.Quantity,
				Condition:  res.Receipt.Condition,
				LineStatus: res.LineStatus,
				AssetIDs:   res.AssetIDs,
				ReceivedBy: actor.ID,
				Occurred:   res.Receipt.RecordedAt,
			}
			if err := s.deps.Events.Publish(ctx, orderKey(order.ID), evt); err != nil {
				s.logger.Warn("publish receipt event", slog.Int64("order_id", order.ID), slog.Any("error", err))
			}
		}
	}
	return results, nil
}

// checkSerials normalises the serial list and enforces count and uniqueness
// within the order. seen is extended with the accepted serials.
func checkSerials(line OrderLine, dl DeliveryLine, seen map[string]struct{}) ([]string, error) {
	if len(dl.SerialNumbers) == 0 {
		if line.Tracking == TrackingSerialized {
			return nil, errors.New("serial numbers required for serialized line")
		}
		return nil, nil
	}
	cleaned := make([]string, 0, len(dl.SerialNumbers))
	for _, sn := range dl.SerialNumbers {
		sn = strings.TrimSpace(sn)
		if sn == "" {
			return nil, errors.New("blank serial number")
		}
		upper := strings.ToUpper(sn)
		if _, dup := seen[upper]; dup {
			return nil, fmt.Errorf("serial %s already received on this order", sn)
		}
		seen[upper] = struct{}{}
		cleaned = append(cleaned, sn)
	}
	if !decimal.NewFromInt(int64(len(cleaned))).Equal(dl.Quantity) {
		return nil, fmt.Errorf("%d serial numbers for quantity %s", len(cleaned), dl.Quantity)
	}
	return cleaned, nil
}

func (s *Service) registerAssets(ctx context.Context, tx TxRepository, o Order, line OrderLine, receipt ReceiptEvent) ([]int64, error) {
	if !line.Tracking.CreatesAssets() {
		return nil, nil
	}
	src := assets.Source{
		OrderID:     o.ID,
		LineID:      line.ID,
		ReceiptID:   receipt.ID,
		Description: line.Description,
		Category:    line.Category,
		Condition:   string(receipt.Condition),
		Location:    receipt.Destination,
		UnitCost:    line.UnitPrice,
		Currency:    o.Currency,
		ReceivedAt:  receipt.ReceivedOn,
	}
	if line.Tracking == TrackingCapital {
		src.Quantity = receipt.Quantity
		asset, err := s.registrar.CreatePending(ctx, tx, src)
		if err != nil {
			return nil, err
		}
		return []int64{asset.ID}, nil
	}
	ids := make([]int64, 0, len(receipt.SerialNumbers))
	for i, sn := range receipt.SerialNumbers {
		unit := src
		idx := i + 1
		unit.UnitIndex = &idx
		unit.SerialNumber = sn
		unit.Quantity = decimal.NewFromInt(1)
		asset, err := s.registrar.CreatePending(ctx, tx, unit)
		if err != nil {
			return nil, err
		}
		ids = append(ids, asset.ID)
	}
	return ids, nil
}

func receiptID(key string, lineID int64) uuid.UUID {
	if key == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(receiptNamespace, []byte(key+":"+strconv.FormatInt(lineID, 10)))
}
