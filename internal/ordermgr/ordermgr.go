// Package ordermgr owns the order lifecycle: mandatory stop-loss
// attachment on every ENTRY, partial-fill accumulation, reconciliation
// against the exchange's view of the world, and panic-close, scoped per
// virtual account.
package ordermgr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
	"tradeguard/internal/governor"
	"tradeguard/internal/router"
	apperrors "tradeguard/pkg/errors"
	"tradeguard/pkg/tradingutils"
)

// Config is the subset of config.OrderMgrConfig the manager needs.
type Config struct {
	StopLossPercentage  float64
	StaleOrderThreshold time.Duration
	ExchangeCallTimeout time.Duration
	PriceDecimals       int // defaults to 2 (cents) when zero
}

// Manager coordinates order placement, fills, reconciliation, and
// panic-close across the exchange adapter and the persistence store.
type Manager struct {
	cfg      Config
	exchange core.IExchange
	store    core.IStore
	router   *router.Router
	governor *governor.Governor
	alerter  core.IAlerter
	logger   core.ILogger
}

// New wires a Manager from its collaborators.
func New(cfg Config, exchange core.IExchange, store core.IStore, r *router.Router, g *governor.Governor, alerter core.IAlerter, logger core.ILogger) *Manager {
	return &Manager{
		cfg:      cfg,
		exchange: exchange,
		store:    store,
		router:   r,
		governor: g,
		alerter:  alerter,
		logger:   logger.WithField("component", "order_manager"),
	}
}

// PlaceEntry submits an ENTRY order for an admitted signal. The stop-loss
// price is computed here and persisted on the order row; the STOP_LOSS
// order itself is only submitted once the ENTRY receives its first fill
// (see HandleFill) —
// the mandatory-stop-loss guarantee is about liveness of protection, not
// a simultaneous submission requirement.
func (m *Manager) PlaceEntry(ctx context.Context, signal core.Signal) (*core.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeCallTimeout)
	defer cancel()

	stopLossPrice := m.computeStopLoss(signal.Side, signal.Market.Last)

	spec := core.OrderSpec{
		VAID:   signal.VAID,
		Symbol: signal.Symbol,
		Side:   signal.Side,
		Intent: core.IntentEntry,
		Qty:    signal.DesiredQty,
	}

	result, err := m.exchange.SubmitOrder(callCtx, spec)
	if err != nil {
		return nil, fmt.Errorf("submit entry order: %w", err)
	}
	if !result.Accepted {
		m.logger.Info("entry order rejected by exchange", "va_id", signal.VAID, "symbol", signal.Symbol, "reason", result.RejectReason)
		return nil, fmt.Errorf("%w: %s", apperrors.ErrExchangeRejected, result.RejectReason)
	}

	now := time.Now()
	order := &core.Order{
		OrderID:         uuid.NewString(),
		ExchangeOrderID: result.ExchangeOrderID,
		VAID:            signal.VAID,
		Symbol:          signal.Symbol,
		Side:            signal.Side,
		Intent:          core.IntentEntry,
		QtyRequested:    signal.DesiredQty,
		Status:          core.StatusPending,
		StopLossPrice:   &stopLossPrice,
		CreatedAt:       now,
		LastUpdateAt:    now,
	}

	if err := m.store.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist entry order: %w", err)
	}
	return order, nil
}

// computeStopLoss derives the stop-loss price at cfg.StopLossPercentage
// below (BUY) or above (SELL) the reference price.
func (m *Manager) computeStopLoss(side core.Side, referencePrice decimal.Decimal) decimal.Decimal {
	pct := decimal.NewFromFloat(m.cfg.StopLossPercentage).Div(decimal.NewFromInt(100))
	offset := referencePrice.Mul(pct)
	var price decimal.Decimal
	if side == core.Buy {
		price = referencePrice.Sub(offset)
	} else {
		price = referencePrice.Add(offset)
	}
	decimals := m.cfg.PriceDecimals
	if decimals == 0 {
		decimals = 2
	}
	return tradingutils.RoundPrice(price, decimals)
}
