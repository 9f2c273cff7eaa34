package ordermgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
	apperrors "tradeguard/pkg/errors"
)

// fakeExchange is an in-memory core.IExchange for ordermgr unit tests.
type fakeExchange struct {
	mu           sync.Mutex
	rejectNext   bool
	rejectReason string
	queryResults map[string]core.QueryResult
	canceled     map[string]bool
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		queryResults: make(map[string]core.QueryResult),
		canceled:     make(map[string]bool),
	}
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, spec core.OrderSpec) (core.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectNext {
		f.rejectNext = false
		return core.SubmitResult{Accepted: false, RejectReason: f.rejectReason}, nil
	}
	return core.SubmitResult{Accepted: true, ExchangeOrderID: uuid.NewString()}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled[exchangeOrderID] = true
	return nil
}

func (f *fakeExchange) QueryOrder(ctx context.Context, exchangeOrderID string) (core.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryResults[exchangeOrderID], nil
}

func (f *fakeExchange) StartFillStream(ctx context.Context, callback func(core.FillEvent)) error {
	return nil
}

func (f *fakeExchange) StartSnapshotStream(ctx context.Context, symbols []string, callback func(string, core.MarketSnapshot)) error {
	return nil
}

var _ core.IExchange = (*fakeExchange)(nil)

// fakeAlerter collects alerts for assertions.
type fakeAlerter struct {
	mu        sync.Mutex
	criticals []string
	warns     []string
}

func (a *fakeAlerter) Critical(ctx context.Context, title, message string, fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.criticals = append(a.criticals, title)
}

func (a *fakeAlerter) Warn(ctx context.Context, title, message string, fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warns = append(a.warns, title)
}

var _ core.IAlerter = (*fakeAlerter)(nil)

// fakeStore is an in-memory core.IStore sufficient for ordermgr tests.
type fakeStore struct {
	mu        sync.Mutex
	vas       map[string]*core.VirtualAccount
	orders    map[string]*core.Order
	positions map[string]*core.Position // key: vaID+"/"+symbol
	trades    []*core.Trade
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vas:       make(map[string]*core.VirtualAccount),
		orders:    make(map[string]*core.Order),
		positions: make(map[string]*core.Position),
	}
}

func posKey(vaID, symbol string) string { return vaID + "/" + symbol }

func (s *fakeStore) GetVA(ctx context.Context, vaID string) (*core.VirtualAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if va, ok := s.vas[vaID]; ok {
		return va, nil
	}
	return &core.VirtualAccount{VAID: vaID}, nil
}
func (s *fakeStore) ListVAs(ctx context.Context) ([]*core.VirtualAccount, error) { return nil, nil }
func (s *fakeStore) UpsertVA(ctx context.Context, va *core.VirtualAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vas[va.VAID] = va
	return nil
}

func (s *fakeStore) InsertOrder(ctx context.Context, o *core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = o
	return nil
}
func (s *fakeStore) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}
	return o, nil
}
func (s *fakeStore) ListNonTerminalOrders(ctx context.Context) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Order
	for _, o := range s.orders {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out, nil
}
func (s *fakeStore) ListNonTerminalOrdersOlderThan(ctx context.Context, cutoff time.Time) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Order
	for _, o := range s.orders {
		if !o.Status.IsTerminal() && o.LastUpdateAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) GetPosition(ctx context.Context, vaID, symbol string) (*core.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[posKey(vaID, symbol)]
	if !ok {
		return nil, apperrors.ErrPositionNotFound
	}
	return p, nil
}
func (s *fakeStore) ListOpenPositions(ctx context.Context) ([]*core.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Position
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) ListTrades(ctx context.Context, vaID string) ([]*core.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Trade
	for _, t := range s.trades {
		if t.VAID == vaID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) ApplyFill(ctx context.Context, fill core.FillEvent, apply core.FillApplier) (core.FillApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[fill.OrderID]
	if !ok {
		return core.FillApplyResult{}, apperrors.ErrOrderNotFound
	}
	var position *core.Position
	if p, ok := s.positions[posKey(order.VAID, order.Symbol)]; ok {
		position = p
	}

	tx := &fakeStoreTx{s: s}
	result, err := apply(tx, order, position)
	if err != nil {
		return core.FillApplyResult{}, err
	}
	return result, nil
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, orderID string, status core.OrderStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	o.Status = status
	o.LastUpdateAt = now
	return nil
}

func (s *fakeStore) GetOrderByLinkedEntryID(ctx context.Context, entryOrderID string) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.LinkedEntryID != nil && *o.LinkedEntryID == entryOrderID {
			return o, nil
		}
	}
	return nil, apperrors.ErrOrderNotFound
}

func (s *fakeStore) UpdateOrderQty(ctx context.Context, orderID string, qty decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	o.QtyRequested = qty
	o.LastUpdateAt = now
	return nil
}

func (s *fakeStore) Close() error { return nil }

var _ core.IStore = (*fakeStore)(nil)

// fakeStoreTx implements core.StoreTx against the same locked fakeStore
// map (the lock is already held by the caller, ApplyFill).
type fakeStoreTx struct {
	s *fakeStore
}

func (t *fakeStoreTx) GetVA(vaID string) (*core.VirtualAccount, error) {
	if va, ok := t.s.vas[vaID]; ok {
		return va, nil
	}
	return &core.VirtualAccount{VAID: vaID}, nil
}
func (t *fakeStoreTx) SaveVA(va *core.VirtualAccount) error {
	t.s.vas[va.VAID] = va
	return nil
}
func (t *fakeStoreTx) SaveOrder(o *core.Order) error {
	t.s.orders[o.OrderID] = o
	return nil
}
func (t *fakeStoreTx) SavePosition(p *core.Position) error {
	t.s.positions[posKey(p.VAID, p.Symbol)] = p
	return nil
}
func (t *fakeStoreTx) DeletePosition(vaID, symbol string) error {
	delete(t.s.positions, posKey(vaID, symbol))
	return nil
}
func (t *fakeStoreTx) InsertTrade(tr *core.Trade) error {
	t.s.trades = append(t.s.trades, tr)
	return nil
}

var _ core.StoreTx = (*fakeStoreTx)(nil)
