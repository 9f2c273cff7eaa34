// Package core defines the domain types and collaborator interfaces shared
// across the signal-to-fill governance pipeline: virtual accounts, orders,
// positions, trades, signals, and the exchange/logger/store seams other
// packages depend on.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side, used when synthesizing a stop-loss or
// reduce-only order against an existing position.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for BUY and -1 for SELL, for PnL sign conventions.
func (s Side) Sign() int {
	if s == Buy {
		return 1
	}
	return -1
}

// OrderIntent classifies why an order exists.
type OrderIntent string

const (
	IntentEntry          OrderIntent = "ENTRY"
	IntentReduceOnlyExit OrderIntent = "REDUCE_ONLY_EXIT"
	IntentStopLoss       OrderIntent = "STOP_LOSS"
)

// OrderStatus is the lifecycle state of an Order. Transitions are monotonic
// except PARTIAL -> PARTIAL, and terminal once in {FILLED, CANCELED,
// REJECTED, EXPIRED}.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// TradeReason records why a position was closed.
type TradeReason string

const (
	ReasonManualExit       TradeReason = "MANUAL_EXIT"
	ReasonStopLoss         TradeReason = "STOP_LOSS"
	ReasonReconciledClose  TradeReason = "RECONCILED_CLOSE"
)

// VirtualAccount is an isolated risk and accounting unit sharing one real
// exchange connection with every other VA in the process.
type VirtualAccount struct {
	VAID              string
	Balance           decimal.Decimal
	RealizedPnL       decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	Wins              int
	Losses            int
	ConsecutiveLosses int
	MaxDrawdown       decimal.Decimal
	PeakEquity        decimal.Decimal
	CooldownUntil     *time.Time // nil when not in cooldown
	KillSwitch        bool
}

// InCooldown reports whether the VA is currently blocked from new ENTRYs by
// its own cooldown (distinct from the process-wide kill switch).
func (va *VirtualAccount) InCooldown(now time.Time) bool {
	return va.CooldownUntil != nil && va.CooldownUntil.After(now)
}

// Order is a single exchange order tracked through its lifecycle.
type Order struct {
	OrderID         string
	ExchangeOrderID string // assigned by IExchange.SubmitOrder on acceptance
	VAID            string
	Symbol          string
	Side            Side
	Intent          OrderIntent
	QtyRequested    decimal.Decimal
	QtyFilled       decimal.Decimal
	AvgFillPrice    decimal.Decimal
	Status          OrderStatus
	StopLossPrice   *decimal.Decimal // required for ENTRY
	LinkedEntryID   *string          // set for STOP_LOSS orders
	CreatedAt       time.Time
	LastUpdateAt    time.Time
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.QtyRequested.Sub(o.QtyFilled)
}

// Position is keyed by (VAID, Symbol). At most one VA may hold a position
// for any given symbol globally.
type Position struct {
	VAID          string
	Symbol        string
	Side          Side
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	StopLossPrice decimal.Decimal
	UnrealizedPnL decimal.Decimal
	OpenedAt      time.Time
}

// Trade is an immutable record appended when a position closes.
type Trade struct {
	TradeID     string
	VAID        string
	Symbol      string
	Side        Side
	Qty         decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	RealizedPnL decimal.Decimal
	ClosedAt    time.Time
	Reason      TradeReason
}

// MarketSnapshot is the pricing context attached to a Signal.
type MarketSnapshot struct {
	Bid             decimal.Decimal
	Ask             decimal.Decimal
	Last            decimal.Decimal
	AsOf            time.Time
	SourceLatencyMS int64
	// ExpectedPrice is the strategy's intended execution reference price.
	// Zero means "not populated" and the slippage filter is skipped.
	ExpectedPrice decimal.Decimal
}

// Signal is the in-flight request from the (external) strategy: "VA X
// wants to trade symbol Y."
type Signal struct {
	VAID       string
	Symbol     string
	Side       Side
	DesiredQty decimal.Decimal
	Market     MarketSnapshot
	ReceivedAt time.Time
}

// FillEvent is a single fill notification from the exchange adapter.
type FillEvent struct {
	OrderID      string
	QtyIncrement decimal.Decimal
	Price        decimal.Decimal
	Timestamp    time.Time
}
