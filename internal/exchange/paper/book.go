// Package paper is the paper-trading exchange adapter: a deterministic
// in-memory venue that implements core.IExchange, grounded on the
// teacher's internal/mock.MockExchange. Market orders (LimitPrice zero)
// fill immediately at the book's last traded price; resting orders
// (stop-loss, reduce-only exits carrying a LimitPrice) stay PENDING until
// triggered with Exchange.TriggerStopLoss or canceled.
package paper

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
)

type bookOrder struct {
	exchangeOrderID string
	spec            core.OrderSpec
	status          core.OrderStatus
	qtyFilled       decimal.Decimal
	avgFillPrice    decimal.Decimal
	createdAt       time.Time
}

// book is the venue's internal order and price state, guarded by one mutex.
// Real venues shard this across matching engines; a single paper book is
// plenty for the admission-pipeline scenarios this adapter exists for.
type book struct {
	mu         sync.Mutex
	orders     map[string]*bookOrder
	lastPrice  map[string]decimal.Decimal
	onFill     func(core.FillEvent)
	onSnapshot func(symbol string, snap core.MarketSnapshot)
}

func newBook() *book {
	return &book{
		orders:    make(map[string]*bookOrder),
		lastPrice: make(map[string]decimal.Decimal),
	}
}

// SetPrice seeds or updates the last-traded price a market order fills at.
// Test harnesses and the snapshot feed call this; production wiring would
// have a market-data adapter driving it instead.
func (b *book) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrice[symbol] = price
}

func (b *book) priceFor(symbol string) decimal.Decimal {
	if p, ok := b.lastPrice[symbol]; ok {
		return p
	}
	return decimal.NewFromInt(100)
}

func (b *book) submit(spec core.OrderSpec) core.SubmitResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	order := &bookOrder{
		exchangeOrderID: id,
		spec:            spec,
		status:          core.StatusPending,
		createdAt:       time.Now(),
	}

	if spec.LimitPrice.IsZero() {
		price := b.priceFor(spec.Symbol)
		order.status = core.StatusFilled
		order.qtyFilled = spec.Qty
		order.avgFillPrice = price
		b.orders[id] = order
		if b.onFill != nil {
			go b.onFill(core.FillEvent{OrderID: id, QtyIncrement: spec.Qty, Price: price, Timestamp: time.Now()})
		}
		return core.SubmitResult{Accepted: true, ExchangeOrderID: id}
	}

	b.orders[id] = order
	return core.SubmitResult{Accepted: true, ExchangeOrderID: id}
}

func (b *book) cancel(exchangeOrderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[exchangeOrderID]
	if !ok || o.status.IsTerminal() {
		return false
	}
	o.status = core.StatusCanceled
	return true
}

func (b *book) query(exchangeOrderID string) (core.QueryResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[exchangeOrderID]
	if !ok {
		return core.QueryResult{}, false
	}
	return core.QueryResult{Status: o.status, QtyFilled: o.qtyFilled, AvgFillPrice: o.avgFillPrice}, true
}

// trigger fills a resting order immediately at its limit price — used to
// simulate a stop-loss or reduce-only exit actually executing once its
// trigger condition is observed by the caller (ordermgr decides when).
func (b *book) trigger(exchangeOrderID string) (core.FillEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[exchangeOrderID]
	if !ok || o.status.IsTerminal() {
		return core.FillEvent{}, false
	}
	o.status = core.StatusFilled
	o.qtyFilled = o.spec.Qty
	o.avgFillPrice = o.spec.LimitPrice
	fill := core.FillEvent{OrderID: exchangeOrderID, QtyIncrement: o.spec.Qty, Price: o.spec.LimitPrice, Timestamp: time.Now()}
	return fill, true
}
