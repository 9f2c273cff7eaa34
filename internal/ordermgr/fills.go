package ordermgr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
	apperrors "tradeguard/pkg/errors"
)

// HandleFill applies a fill inside a single store transaction: updates
// the order, opens/updates/closes the position, and records a trade on
// close. Fills that would exceed the requested quantity are rejected
// without mutating state. Fill timestamps are not compared, so a fill
// that arrives out of order is applied like any other.
func (m *Manager) HandleFill(ctx context.Context, fill core.FillEvent) error {
	result, err := m.store.ApplyFill(ctx, fill, func(tx core.StoreTx, order *core.Order, position *core.Position) (core.FillApplyResult, error) {
		return m.applyFillLocked(tx, order, position, fill)
	})
	if err != nil {
		if err == apperrors.ErrInconsistentFill {
			m.logger.Warn("rejected inconsistent fill", "order_id", fill.OrderID, "qty_increment", fill.QtyIncrement)
			m.alerter.Warn(ctx, "inconsistent fill rejected", "fill exceeds requested quantity", map[string]string{"order_id": fill.OrderID})
			return nil
		}
		return fmt.Errorf("apply fill: %w", err)
	}

	if result.Order != nil && result.Order.Intent == core.IntentEntry {
		if result.FirstEntryFill {
			m.attachStopLoss(ctx, result.Order)
		} else if result.Order.QtyFilled.IsPositive() {
			m.syncStopLossQty(ctx, result.Order)
		}
	}

	if result.PositionClosed && result.Trade != nil {
		m.governor.RecordTrade(ctx, result.Trade.VAID, result.Trade.RealizedPnL, time.Now())
		m.governor.OnPositionClosed(result.Trade.VAID)
		m.router.Release(result.Trade.VAID, result.Trade.Symbol)
	} else if result.Order != nil && result.Order.Intent == core.IntentEntry && result.Order.Status == core.StatusFilled {
		m.governor.OnPositionOpened(result.Order.VAID)
	}

	return nil
}

// applyFillLocked runs inside ApplyFill's transaction. It must not call
// the exchange adapter or any other blocking collaborator.
func (m *Manager) applyFillLocked(tx core.StoreTx, order *core.Order, position *core.Position, fill core.FillEvent) (core.FillApplyResult, error) {
	previouslyFilled := order.QtyFilled
	newFilled := order.QtyFilled.Add(fill.QtyIncrement)
	if newFilled.GreaterThan(order.QtyRequested) {
		return core.FillApplyResult{}, apperrors.ErrInconsistentFill
	}

	order.AvgFillPrice = weightedAvg(order.QtyFilled, order.AvgFillPrice, fill.QtyIncrement, fill.Price)
	order.QtyFilled = newFilled
	order.LastUpdateAt = fill.Timestamp
	if order.QtyFilled.Equal(order.QtyRequested) {
		order.Status = core.StatusFilled
	} else {
		order.Status = core.StatusPartial
	}

	if err := tx.SaveOrder(order); err != nil {
		return core.FillApplyResult{}, err
	}

	var result core.FillApplyResult
	var err error
	switch order.Intent {
	case core.IntentEntry:
		result, err = m.applyEntryFill(tx, order, position, fill)
	case core.IntentStopLoss, core.IntentReduceOnlyExit:
		result, err = m.applyExitFill(tx, order, position, fill)
	default:
		result, err = core.FillApplyResult{Order: order}, nil
	}
	if err != nil {
		return core.FillApplyResult{}, err
	}

	result.FirstEntryFill = order.Intent == core.IntentEntry && previouslyFilled.IsZero() && !newFilled.IsZero()
	return result, nil
}

func (m *Manager) applyEntryFill(tx core.StoreTx, order *core.Order, position *core.Position, fill core.FillEvent) (core.FillApplyResult, error) {
	if position == nil {
		position = &core.Position{
			VAID:          order.VAID,
			Symbol:        order.Symbol,
			Side:          order.Side,
			OpenedAt:      fill.Timestamp,
			StopLossPrice: zeroIfNil(order.StopLossPrice),
		}
	}
	position.AvgEntryPrice = weightedAvg(position.Qty, position.AvgEntryPrice, fill.QtyIncrement, fill.Price)
	position.Qty = position.Qty.Add(fill.QtyIncrement)
	position.CurrentPrice = fill.Price

	if err := tx.SavePosition(position); err != nil {
		return core.FillApplyResult{}, err
	}
	return core.FillApplyResult{Order: order}, nil
}

func (m *Manager) applyExitFill(tx core.StoreTx, order *core.Order, position *core.Position, fill core.FillEvent) (core.FillApplyResult, error) {
	if position == nil {
		// Exit fill with no known position: nothing to reconcile locally,
		// but the order itself is still recorded via SaveOrder above.
		return core.FillApplyResult{Order: order}, nil
	}

	remaining := position.Qty.Sub(fill.QtyIncrement)
	closed := remaining.LessThanOrEqual(decimal.Zero)

	realizedPnL := fill.Price.Sub(position.AvgEntryPrice).Mul(fill.QtyIncrement).Mul(decimal.NewFromInt(int64(position.Side.Sign())))

	if !closed {
		position.Qty = remaining
		position.CurrentPrice = fill.Price
		if err := tx.SavePosition(position); err != nil {
			return core.FillApplyResult{}, err
		}
		return core.FillApplyResult{Order: order}, nil
	}

	if err := tx.DeletePosition(position.VAID, position.Symbol); err != nil {
		return core.FillApplyResult{}, err
	}

	trade := &core.Trade{
		TradeID:     uuid.NewString(),
		VAID:        position.VAID,
		Symbol:      position.Symbol,
		Side:        position.Side,
		Qty:         fill.QtyIncrement,
		EntryPrice:  position.AvgEntryPrice,
		ExitPrice:   fill.Price,
		RealizedPnL: realizedPnL,
		ClosedAt:    fill.Timestamp,
		Reason:      tradeReasonFor(order.Intent),
	}
	if err := tx.InsertTrade(trade); err != nil {
		return core.FillApplyResult{}, err
	}

	va, err := tx.GetVA(position.VAID)
	if err == nil {
		va.RealizedPnL = va.RealizedPnL.Add(realizedPnL)
		va.Balance = va.Balance.Add(realizedPnL)
		if realizedPnL.IsNegative() {
			va.Losses++
		} else {
			va.Wins++
		}
		if va.Balance.GreaterThan(va.PeakEquity) {
			va.PeakEquity = va.Balance
		}
		drawdown := va.PeakEquity.Sub(va.Balance)
		if drawdown.GreaterThan(va.MaxDrawdown) {
			va.MaxDrawdown = drawdown
		}
		_ = tx.SaveVA(va)
	}

	return core.FillApplyResult{Order: order, PositionClosed: true, ClosedPosition: position, Trade: trade}, nil
}

func tradeReasonFor(intent core.OrderIntent) core.TradeReason {
	if intent == core.IntentStopLoss {
		return core.ReasonStopLoss
	}
	return core.ReasonManualExit
}

func zeroIfNil(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func weightedAvg(qtyA, priceA, qtyB, priceB decimal.Decimal) decimal.Decimal {
	total := qtyA.Add(qtyB)
	if total.IsZero() {
		return decimal.Zero
	}
	return qtyA.Mul(priceA).Add(qtyB.Mul(priceB)).Div(total)
}

// attachStopLoss submits the mandatory STOP_LOSS order on an ENTRY order's
// first non-zero fill, protecting exactly the quantity filled so far
// rather than waiting for the entry to fill in full. On failure this is a
// safety fault: panic-close the position immediately rather than leave it
// unprotected.
func (m *Manager) attachStopLoss(ctx context.Context, entry *core.Order) {
	if entry.StopLossPrice == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ExchangeCallTimeout)
	defer cancel()

	spec := core.OrderSpec{
		VAID:       entry.VAID,
		Symbol:     entry.Symbol,
		Side:       entry.Side.Opposite(),
		Intent:     core.IntentStopLoss,
		Qty:        entry.QtyFilled,
		LimitPrice: *entry.StopLossPrice,
		ReduceOnly: true,
	}

	result, err := m.exchange.SubmitOrder(callCtx, spec)
	if err != nil || !result.Accepted {
		m.logger.Error("stop-loss attach failed, panic-closing", "order_id", entry.OrderID, "error", err)
		m.alerter.Critical(ctx, "stop-loss attach failed", fmt.Sprintf("entry order %s has no live stop-loss, panic-closing", entry.OrderID),
			map[string]string{"va_id": entry.VAID, "symbol": entry.Symbol})
		m.governor.RecordPanicClose(entry.VAID)
		if perr := m.PanicClose(ctx, entry.VAID, entry.Symbol, "stop_loss_attach_failed"); perr != nil {
			m.logger.Error("panic-close itself failed", "error", perr)
		}
		return
	}

	now := time.Now()
	linkedID := entry.OrderID
	slOrder := &core.Order{
		OrderID:         uuid.NewString(),
		ExchangeOrderID: result.ExchangeOrderID,
		VAID:            entry.VAID,
		Symbol:          entry.Symbol,
		Side:            entry.Side.Opposite(),
		Intent:          core.IntentStopLoss,
		QtyRequested:    entry.QtyFilled,
		Status:          core.StatusPending,
		LinkedEntryID:   &linkedID,
		CreatedAt:       now,
		LastUpdateAt:    now,
	}
	if err := m.store.InsertOrder(ctx, slOrder); err != nil {
		m.logger.Error("failed to persist stop-loss order", "error", err)
	}
}

// syncStopLossQty keeps an already-attached stop-loss order's protected
// quantity in step with its entry's cumulative fills. It never resubmits
// to the exchange — only the resting order's requested quantity is
// updated locally, matching how a reduce-only order protects whatever is
// currently filled.
func (m *Manager) syncStopLossQty(ctx context.Context, entry *core.Order) {
	sl, err := m.store.GetOrderByLinkedEntryID(ctx, entry.OrderID)
	if err != nil {
		if err != apperrors.ErrOrderNotFound {
			m.logger.Error("failed to look up stop-loss order for sync", "order_id", entry.OrderID, "error", err)
		}
		return
	}
	if sl.Status.IsTerminal() || sl.QtyRequested.Equal(entry.QtyFilled) {
		return
	}
	if err := m.store.UpdateOrderQty(ctx, sl.OrderID, entry.QtyFilled, time.Now()); err != nil {
		m.logger.Error("failed to sync stop-loss qty", "order_id", sl.OrderID, "error", err)
	}
}
