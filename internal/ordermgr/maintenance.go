package ordermgr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/core"
	apperrors "tradeguard/pkg/errors"
)

// Reconcile queries the exchange for every non-terminal order older than
// cfg.StaleOrderThreshold and resolves disagreement in the exchange's
// favor — it is the authoritative source of truth.
func (m *Manager) Reconcile(ctx context.Context) error {
	cutoff := time.Now().Add(-m.cfg.StaleOrderThreshold)
	stale, err := m.store.ListNonTerminalOrdersOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale orders: %w", err)
	}

	for _, order := range stale {
		if err := m.reconcileOne(ctx, order); err != nil {
			m.logger.Error("reconciliation failed for order", "order_id", order.OrderID, "error", err)
		}
	}
	return nil
}

func (m *Manager) reconcileOne(ctx context.Context, order *core.Order) error {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeCallTimeout)
	defer cancel()

	result, err := m.exchange.QueryOrder(callCtx, order.ExchangeOrderID)
	if err != nil {
		m.logger.Warn("reconciliation query failed, will retry next tick", "order_id", order.OrderID, "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrReconcileTimeout, err)
	}

	if result.Status == order.Status && result.QtyFilled.Equal(order.QtyFilled) {
		return nil
	}

	now := time.Now()
	if result.Status.IsTerminal() && result.Status != core.StatusFilled {
		// Exchange says this order is done without filling: cancel/reject
		// locally too, no position change.
		return m.store.UpdateOrderStatus(ctx, order.OrderID, result.Status, now)
	}

	if result.QtyFilled.GreaterThan(order.QtyFilled) {
		increment := result.QtyFilled.Sub(order.QtyFilled)
		return m.HandleFill(ctx, core.FillEvent{
			OrderID:      order.OrderID,
			QtyIncrement: increment,
			Price:        result.AvgFillPrice,
			Timestamp:    now,
		})
	}

	if time.Since(order.LastUpdateAt) > 2*m.cfg.StaleOrderThreshold {
		m.logger.Warn("canceling order stale past reconciliation grace period", "order_id", order.OrderID)
		if err := m.exchange.CancelOrder(callCtx, order.ExchangeOrderID); err != nil {
			return fmt.Errorf("cancel stale order: %w", err)
		}
		return m.store.UpdateOrderStatus(ctx, order.OrderID, core.StatusCanceled, now)
	}
	return nil
}

// CheckStopLossTriggers evaluates every open position against its
// stop_loss_price and submits a reduce-only exit order with intent
// STOP_LOSS on trigger.
func (m *Manager) CheckStopLossTriggers(ctx context.Context, positions []*core.Position) {
	for _, p := range positions {
		triggered := false
		switch p.Side {
		case core.Buy:
			triggered = p.CurrentPrice.LessThanOrEqual(p.StopLossPrice)
		case core.Sell:
			triggered = p.CurrentPrice.GreaterThanOrEqual(p.StopLossPrice)
		}
		if !triggered {
			continue
		}
		m.logger.Warn("stop-loss triggered", "va_id", p.VAID, "symbol", p.Symbol, "current_price", p.CurrentPrice, "stop_loss_price", p.StopLossPrice)
		if err := m.submitReduceOnlyExit(ctx, p, core.ReasonStopLoss); err != nil {
			m.logger.Error("failed to submit stop-loss exit", "va_id", p.VAID, "symbol", p.Symbol, "error", err)
		}
	}
}

func (m *Manager) submitReduceOnlyExit(ctx context.Context, p *core.Position, reason core.TradeReason) error {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeCallTimeout)
	defer cancel()

	intent := core.IntentReduceOnlyExit
	if reason == core.ReasonStopLoss {
		intent = core.IntentStopLoss
	}

	spec := core.OrderSpec{
		VAID:       p.VAID,
		Symbol:     p.Symbol,
		Side:       p.Side.Opposite(),
		Intent:     intent,
		Qty:        p.Qty,
		ReduceOnly: true,
	}

	result, err := m.exchange.SubmitOrder(callCtx, spec)
	if err != nil {
		return fmt.Errorf("submit exit order: %w", err)
	}
	if !result.Accepted {
		return fmt.Errorf("%w: %s", apperrors.ErrExchangeRejected, result.RejectReason)
	}

	now := time.Now()
	order := &core.Order{
		OrderID:         uuid.NewString(),
		ExchangeOrderID: result.ExchangeOrderID,
		VAID:            p.VAID,
		Symbol:          p.Symbol,
		Side:            spec.Side,
		Intent:          intent,
		QtyRequested:    p.Qty,
		Status:          core.StatusPending,
		CreatedAt:       now,
		LastUpdateAt:    now,
	}
	return m.store.InsertOrder(ctx, order)
}

// PanicClose forces a VA out of a symbol immediately, bypassing the
// router, governor, and filter chain entirely: cancel any resting orders,
// then submit a market reduce-only order for the full remaining quantity.
// Used when stop-loss protection could not be attached, or by an operator.
func (m *Manager) PanicClose(ctx context.Context, vaID, symbol, reason string) error {
	m.alerter.Critical(ctx, "panic-close engaged", reason, map[string]string{"va_id": vaID, "symbol": symbol})

	position, err := m.store.GetPosition(ctx, vaID, symbol)
	if err != nil {
		if err == apperrors.ErrPositionNotFound {
			return nil
		}
		return fmt.Errorf("panic-close lookup position: %w", err)
	}

	nonTerminal, err := m.store.ListNonTerminalOrders(ctx)
	if err != nil {
		return fmt.Errorf("panic-close list orders: %w", err)
	}
	for _, o := range nonTerminal {
		if o.VAID != vaID || o.Symbol != symbol {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeCallTimeout)
		if err := m.exchange.CancelOrder(callCtx, o.ExchangeOrderID); err != nil {
			m.logger.Error("panic-close: failed to cancel resting order", "order_id", o.OrderID, "error", err)
		}
		cancel()
		_ = m.store.UpdateOrderStatus(ctx, o.OrderID, core.StatusCanceled, time.Now())
	}

	return m.submitReduceOnlyExit(ctx, position, core.ReasonManualExit)
}
