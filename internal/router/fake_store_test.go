package router

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
)

// fakeStore implements core.IStore with just enough behavior to exercise
// Rehydrate; every other method is unused by this package's tests.
type fakeStore struct {
	positions []*core.Position
}

func (f *fakeStore) GetVA(ctx context.Context, vaID string) (*core.VirtualAccount, error) { return nil, nil }
func (f *fakeStore) ListVAs(ctx context.Context) ([]*core.VirtualAccount, error)           { return nil, nil }
func (f *fakeStore) UpsertVA(ctx context.Context, va *core.VirtualAccount) error           { return nil }

func (f *fakeStore) InsertOrder(ctx context.Context, o *core.Order) error         { return nil }
func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	return nil, nil
}
func (f *fakeStore) ListNonTerminalOrders(ctx context.Context) ([]*core.Order, error) {
	return nil, nil
}
func (f *fakeStore) ListNonTerminalOrdersOlderThan(ctx context.Context, cutoff time.Time) ([]*core.Order, error) {
	return nil, nil
}

func (f *fakeStore) GetPosition(ctx context.Context, vaID, symbol string) (*core.Position, error) {
	return nil, nil
}
func (f *fakeStore) ListOpenPositions(ctx context.Context) ([]*core.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) ListTrades(ctx context.Context, vaID string) ([]*core.Trade, error) {
	return nil, nil
}

func (f *fakeStore) ApplyFill(ctx context.Context, fill core.FillEvent, apply core.FillApplier) (core.FillApplyResult, error) {
	return core.FillApplyResult{}, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID string, status core.OrderStatus, now time.Time) error {
	return nil
}

func (f *fakeStore) GetOrderByLinkedEntryID(ctx context.Context, entryOrderID string) (*core.Order, error) {
	return nil, nil
}

func (f *fakeStore) UpdateOrderQty(ctx context.Context, orderID string, qty decimal.Decimal, now time.Time) error {
	return nil
}

func (f *fakeStore) Close() error { return nil }

var _ core.IStore = (*fakeStore)(nil)
