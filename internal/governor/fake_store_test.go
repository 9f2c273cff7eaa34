package governor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
)

type fakeGovernorStore struct {
	vas       map[string]*core.VirtualAccount
	positions []*core.Position
}

func newFakeGovernorStore() *fakeGovernorStore {
	return &fakeGovernorStore{vas: make(map[string]*core.VirtualAccount)}
}

func (f *fakeGovernorStore) GetVA(ctx context.Context, vaID string) (*core.VirtualAccount, error) {
	if va, ok := f.vas[vaID]; ok {
		return va, nil
	}
	return &core.VirtualAccount{VAID: vaID}, nil
}
func (f *fakeGovernorStore) ListVAs(ctx context.Context) ([]*core.VirtualAccount, error) {
	var out []*core.VirtualAccount
	for _, va := range f.vas {
		out = append(out, va)
	}
	return out, nil
}
func (f *fakeGovernorStore) UpsertVA(ctx context.Context, va *core.VirtualAccount) error {
	f.vas[va.VAID] = va
	return nil
}

func (f *fakeGovernorStore) InsertOrder(ctx context.Context, o *core.Order) error { return nil }
func (f *fakeGovernorStore) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	return nil, nil
}
func (f *fakeGovernorStore) ListNonTerminalOrders(ctx context.Context) ([]*core.Order, error) {
	return nil, nil
}
func (f *fakeGovernorStore) ListNonTerminalOrdersOlderThan(ctx context.Context, cutoff time.Time) ([]*core.Order, error) {
	return nil, nil
}

func (f *fakeGovernorStore) GetPosition(ctx context.Context, vaID, symbol string) (*core.Position, error) {
	return nil, nil
}
func (f *fakeGovernorStore) ListOpenPositions(ctx context.Context) ([]*core.Position, error) {
	return f.positions, nil
}

func (f *fakeGovernorStore) ListTrades(ctx context.Context, vaID string) ([]*core.Trade, error) {
	return nil, nil
}

func (f *fakeGovernorStore) ApplyFill(ctx context.Context, fill core.FillEvent, apply core.FillApplier) (core.FillApplyResult, error) {
	return core.FillApplyResult{}, nil
}

func (f *fakeGovernorStore) UpdateOrderStatus(ctx context.Context, orderID string, status core.OrderStatus, now time.Time) error {
	return nil
}

func (f *fakeGovernorStore) GetOrderByLinkedEntryID(ctx context.Context, entryOrderID string) (*core.Order, error) {
	return nil, nil
}

func (f *fakeGovernorStore) UpdateOrderQty(ctx context.Context, orderID string, qty decimal.Decimal, now time.Time) error {
	return nil
}

func (f *fakeGovernorStore) Close() error { return nil }

var _ core.IStore = (*fakeGovernorStore)(nil)
