package lpo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/munesh14/first-exchange-hub-sub000/internal/assets"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// memStore is a transactional in-memory repository. Each transaction works
// on a deep copy that replaces the committed state only when fn succeeds.
type memStore struct {
	mu         sync.Mutex
	state      memState
	failUpdate error
}

type memState struct {
	orders    map[int64]Order
	lineOwner map[int64]int64
	receipts  []ReceiptEvent
	assets    map[int64]assets.Asset
	orderSeq  map[int]int64
	tagSeq    map[int]int64
	nextOrder int64
	nextLine  int64
	nextAsset int64
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		orders:    map[int64]Order{},
		lineOwner: map[int64]int64{},
		assets:    map[int64]assets.Asset{},
		orderSeq:  map[int]int64{},
		tagSeq:    map[int]int64{},
	}}
}

func cloneOrder(o Order) Order {
	return o.Clone()
}

func (s memState) clone() memState {
	out := memState{
		orders:    make(map[int64]Order, len(s.orders)),
		lineOwner: make(map[int64]int64, len(s.lineOwner)),
		receipts:  append([]ReceiptEvent(nil), s.receipts...),
		assets:    make(map[int64]assets.Asset, len(s.assets)),
		orderSeq:  make(map[int]int64, len(s.orderSeq)),
		tagSeq:    make(map[int]int64, len(s.tagSeq)),
		nextOrder: s.nextOrder,
		nextLine:  s.nextLine,
		nextAsset: s.nextAsset,
	}
	for k, v := range s.orders {
		out.orders[k] = cloneOrder(v)
	}
	for k, v := range s.lineOwner {
		out.lineOwner[k] = v
	}
	for k, v := range s.assets {
		out.assets[k] = v
	}
	for k, v := range s.orderSeq {
		out.orderSeq[k] = v
	}
	for k, v := range s.tagSeq {
		out.tagSeq[k] = v
	}
	return out
}

type memTx struct {
	store *memStore
	st    *memState
}

func (m *memStore) run(ctx context.Context, fn func(*memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state.clone()
	if err := fn(&memTx{store: m, st: &st}); err != nil {
		return err
	}
	m.state = st
	return nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.run(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

func (m *memStore) GetOrder(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) OrderIDForLine(_ context.Context, lineID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.lineOwner[lineID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func (m *memStore) ListOrdersByStatus(_ context.Context, statuses []Status, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.state.orders {
		for _, s := range statuses {
			if o.Status == s {
				out = append(out, cloneOrder(o))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListReceipts(_ context.Context, orderID int64) ([]ReceiptEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReceiptEvent
	for _, r := range m.state.receipts {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) NextOrderNumber(_ context.Context, year int) (int64, error) {
	t.st.orderSeq[year]++
	return t.st.orderSeq[year], nil
}

func (t *memTx) InsertOrder(_ context.Context, o Order) (int64, error) {
	t.st.nextOrder++
	o.ID = t.st.nextOrder
	o.Lines = nil
	t.st.orders[o.ID] = o
	return o.ID, nil
}

func (t *memTx) InsertLine(_ context.Context, l OrderLine) (int64, error) {
	o, ok := t.st.orders[l.OrderID]
	if !ok {
		return 0, errors.New("order missing")
	}
	t.st.nextLine++
	l.ID = t.st.nextLine
	o.Lines = append(o.Lines, l)
	t.st.orders[o.ID] = o
	t.st.lineOwner[l.ID] = o.ID
	return l.ID, nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return Order{}, shared.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o Order, expected int64) error {
	if err := t.store.failUpdate; err != nil {
		t.store.failUpdate = nil
		return err
	}
	current, ok := t.st.orders[o.ID]
	if !ok || current.Version != expected {
		return shared.ErrConflict
	}
	t.st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) InsertReceipt(_ context.Context, r ReceiptEvent) error {
	for _, existing := range t.st.receipts {
		if existing.ID == r.ID {
			return errors.New("duplicate receipt id")
		}
	}
	r.SerialNumbers = append([]string(nil), r.SerialNumbers...)
	t.st.receipts = append(t.st.receipts, r)
	return nil
}

func (t *memTx) ReceivedSerials(_ context.Context, orderID int64) ([]string, error) {
	var out []string
	for _, r := range t.st.receipts {
		if r.OrderID == orderID {
			out = append(out, r.SerialNumbers...)
		}
	}
	return out, nil
}

func (t *memTx) InsertAsset(_ context.Context, a assets.Asset) (int64, error) {
	t.st.nextAsset++
	a.ID = t.st.nextAsset
	t.st.assets[a.ID] = a
	return a.ID, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (assets.Asset, error) {
	a, ok := t.st.assets[id]
	if !ok {
		return assets.Asset{}, shared.ErrNotFound
	}
	return a, nil
}

func (t *memTx) UpdateAsset(_ context.Context, a assets.Asset, expected int64) error {
	current, ok := t.st.assets[a.ID]
	if !ok || current.Version != expected {
		return shared.ErrConflict
	}
	t.st.assets[a.ID] = a
	return nil
}

func (t *memTx) NextTagSequence(_ context.Context, year int) (int64, error) {
	t.st.tagSeq[year]++
	return t.st.tagSeq[year], nil
}

// memAssets adapts memStore to the registrar's repository port.
type memAssets struct {
	store *memStore
}

func (a memAssets) WithTx(ctx context.Context, fn func(context.Context, assets.TxRepository) error) error {
	return a.store.run(ctx, func(tx *memTx) error { return fn(ctx, tx) })
}

func (a memAssets) Get(_ context.Context, id int64) (assets.Asset, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	asset, ok := a.store.state.assets[id]
	if !ok {
		return assets.Asset{}, shared.ErrNotFound
	}
	return asset, nil
}

func (a memAssets) ListByOrder(_ context.Context, orderID int64) ([]assets.Asset, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	var out []assets.Asset
	for _, asset := range a.store.state.assets {
		if asset.OrderID == orderID {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a memAssets) ListPendingSince(_ context.Context, before time.Time) ([]assets.Asset, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	var out []assets.Asset
	for _, asset := range a.store.state.assets {
		if asset.Status == assets.StatusPendingActivation && asset.ReceivedAt.Before(before) {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	k := module + "|" + key
	if _, ok := m.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[k] = struct{}{}
	return nil
}

func (m *memIdempotency) Delete(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"|"+key)
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingEvents) Publish(_ context.Context, _ string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, payload)
	return nil
}

func (r *recordingEvents) statusChanges() []StatusChangedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StatusChangedEvent
	for _, e := range r.events {
		if evt, ok := e.(StatusChangedEvent); ok {
			out = append(out, evt)
		}
	}
	return out
}

type recordingApprovals struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (r *recordingApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range r.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(_ context.Context, entry shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) List(_ context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.AuditLog
	for _, e := range r.entries {
		if e.Entity == entity && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type stubNotifier struct {
	err  error
	sent []VendorDispatch
}

func (n *stubNotifier) NotifyVendor(_ context.Context, d VendorDispatch) error {
	n.sent = append(n.sent, d)
	return n.err
}
