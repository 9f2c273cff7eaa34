package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger is the structured logging seam every component depends on.
// Implemented by internal/logging.Logger (a zap wrapper), matching the
// teacher's own ILogger shape so components never import zap directly.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// OrderSpec is what the order manager asks the exchange adapter to submit.
type OrderSpec struct {
	VAID       string
	Symbol     string
	Side       Side
	Intent     OrderIntent
	Qty        decimal.Decimal
	LimitPrice decimal.Decimal // zero means market order
	ReduceOnly bool
}

// SubmitResult is the exchange's synchronous response to an order
// submission: either an exchange-assigned order ID, or a rejection reason.
type SubmitResult struct {
	ExchangeOrderID string
	Accepted        bool
	RejectReason    string
}

// QueryResult is the exchange's view of an order, used by reconciliation.
type QueryResult struct {
	Status       OrderStatus
	QtyFilled    decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// IExchange is the external collaborator contract every exchange adapter
// implements. Production adapters for real venues are out of scope;
// internal/exchange ships a paper-trading implementation that this
// interface lets the rest of the pipeline be built and tested against.
type IExchange interface {
	SubmitOrder(ctx context.Context, spec OrderSpec) (SubmitResult, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	QueryOrder(ctx context.Context, exchangeOrderID string) (QueryResult, error)

	// StartFillStream and StartSnapshotStream register push callbacks; the
	// adapter owns the goroutine driving them and must stop cleanly when
	// ctx is canceled.
	StartFillStream(ctx context.Context, callback func(FillEvent)) error
	StartSnapshotStream(ctx context.Context, symbols []string, callback func(symbol string, snap MarketSnapshot)) error
}

// IStore is the transactional persistence seam. Every method that
// mutates more than one row does so inside a single
// database transaction so a crash mid-operation leaves a valid state.
type IStore interface {
	// Virtual accounts
	GetVA(ctx context.Context, vaID string) (*VirtualAccount, error)
	ListVAs(ctx context.Context) ([]*VirtualAccount, error)
	UpsertVA(ctx context.Context, va *VirtualAccount) error

	// Orders
	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListNonTerminalOrders(ctx context.Context) ([]*Order, error)
	ListNonTerminalOrdersOlderThan(ctx context.Context, cutoff time.Time) ([]*Order, error)

	// Positions
	GetPosition(ctx context.Context, vaID, symbol string) (*Position, error)
	ListOpenPositions(ctx context.Context) ([]*Position, error)

	// Trades
	ListTrades(ctx context.Context, vaID string) ([]*Trade, error)

	// ApplyFill atomically applies a fill to its order and the resulting
	// position/trade/VA state. The FillApplier runs inside the same
	// transaction so the router/governor caches are only updated
	// write-through after commit success.
	ApplyFill(ctx context.Context, fill FillEvent, apply FillApplier) (FillApplyResult, error)

	// UpdateOrderStatus is used by reconciliation to move an order to a new
	// terminal or non-terminal status without a fill.
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus, now time.Time) error

	// GetOrderByLinkedEntryID finds the order linked back to entryOrderID
	// (a STOP_LOSS order's LinkedEntryID), if one exists.
	GetOrderByLinkedEntryID(ctx context.Context, entryOrderID string) (*Order, error)

	// UpdateOrderQty adjusts an order's requested quantity outside the
	// normal fill path. Used to keep a live stop-loss order's protected
	// quantity synchronized as its entry accumulates partial fills.
	UpdateOrderQty(ctx context.Context, orderID string, qty decimal.Decimal, now time.Time) error

	Close() error
}

// FillApplyResult tells the caller what happened inside ApplyFill so it can
// write through the in-memory router/governor caches after commit.
type FillApplyResult struct {
	Order          *Order
	PositionClosed bool
	ClosedPosition *Position
	Trade          *Trade
	// FirstEntryFill is true when this fill moved an ENTRY order's
	// QtyFilled from zero to non-zero — the point at which a stop-loss
	// must be attached, rather than waiting for the entry to fill in full.
	FirstEntryFill bool
}

// FillApplier is the business logic ApplyFill runs inside its transaction.
// It receives the current order/position (position may be nil for the
// first ENTRY fill) and returns the mutations to persist.
type FillApplier func(tx StoreTx, order *Order, position *Position) (FillApplyResult, error)

// StoreTx is the narrow read/write surface FillApplier gets inside a
// transaction — deliberately smaller than IStore so business logic cannot
// accidentally start a nested transaction.
type StoreTx interface {
	GetVA(vaID string) (*VirtualAccount, error)
	SaveVA(va *VirtualAccount) error
	SaveOrder(o *Order) error
	SavePosition(p *Position) error
	DeletePosition(vaID, symbol string) error
	InsertTrade(t *Trade) error
}

// IAlerter raises operator-visible incidents.
type IAlerter interface {
	Critical(ctx context.Context, title, message string, fields map[string]string)
	Warn(ctx context.Context, title, message string, fields map[string]string)
}
