package store

import (
	"database/sql"
	"fmt"
	"time"

	"tradeguard/internal/core"
	apperrors "tradeguard/pkg/errors"
)

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func unixNanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func saveVATx(tx *sql.Tx, va *core.VirtualAccount) error {
	var cooldownUntil sql.NullInt64
	if va.CooldownUntil != nil {
		cooldownUntil = sql.NullInt64{Int64: va.CooldownUntil.UnixNano(), Valid: true}
	}
	killSwitch := 0
	if va.KillSwitch {
		killSwitch = 1
	}

	_, err := tx.Exec(`INSERT INTO virtual_accounts (va_id, balance, realized_pnl, unrealized_pnl, wins, losses,
			consecutive_losses, max_drawdown, peak_equity, cooldown_until, kill_switch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(va_id) DO UPDATE SET balance=excluded.balance, realized_pnl=excluded.realized_pnl,
			unrealized_pnl=excluded.unrealized_pnl, wins=excluded.wins, losses=excluded.losses,
			consecutive_losses=excluded.consecutive_losses, max_drawdown=excluded.max_drawdown,
			peak_equity=excluded.peak_equity, cooldown_until=excluded.cooldown_until, kill_switch=excluded.kill_switch`,
		va.VAID, va.Balance.String(), va.RealizedPnL.String(), va.UnrealizedPnL.String(), va.Wins, va.Losses,
		va.ConsecutiveLosses, va.MaxDrawdown.String(), va.PeakEquity.String(), cooldownUntil, killSwitch)
	if err != nil {
		return fmt.Errorf("save virtual account: %w", err)
	}
	return nil
}

func saveOrderTx(tx *sql.Tx, o *core.Order) error {
	var stopLoss sql.NullString
	if o.StopLossPrice != nil {
		stopLoss = sql.NullString{String: o.StopLossPrice.String(), Valid: true}
	}
	var linkedEntry sql.NullString
	if o.LinkedEntryID != nil {
		linkedEntry = sql.NullString{String: *o.LinkedEntryID, Valid: true}
	}

	_, err := tx.Exec(`INSERT INTO orders (order_id, exchange_order_id, va_id, symbol, side, intent, qty_requested, qty_filled,
			avg_fill_price, status, stop_loss_price, linked_entry_id, created_at, last_update_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET exchange_order_id=excluded.exchange_order_id, qty_filled=excluded.qty_filled, avg_fill_price=excluded.avg_fill_price,
			status=excluded.status, stop_loss_price=excluded.stop_loss_price, last_update_at=excluded.last_update_at`,
		o.OrderID, nullableString(o.ExchangeOrderID), o.VAID, o.Symbol, o.Side, o.Intent, o.QtyRequested.String(), o.QtyFilled.String(),
		o.AvgFillPrice.String(), o.Status, stopLoss, linkedEntry, o.CreatedAt.UnixNano(), o.LastUpdateAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func savePositionTx(tx *sql.Tx, p *core.Position) error {
	_, err := tx.Exec(`INSERT INTO positions (va_id, symbol, side, qty, avg_entry_price, current_price,
			stop_loss_price, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(va_id, symbol) DO UPDATE SET side=excluded.side, qty=excluded.qty,
			avg_entry_price=excluded.avg_entry_price, current_price=excluded.current_price,
			stop_loss_price=excluded.stop_loss_price`,
		p.VAID, p.Symbol, p.Side, p.Qty.String(), p.AvgEntryPrice.String(), p.CurrentPrice.String(),
		p.StopLossPrice.String(), p.OpenedAt.UnixNano())
	if err != nil {
		// The UNIQUE(symbol) constraint is what enforces one-symbol-per-VA
		// ownership: a second VA inserting a position on an owned symbol
		// fails here.
		return fmt.Errorf("save position: %w: %w", apperrors.ErrSymbolOwned, err)
	}
	return nil
}

func deletePositionTx(tx *sql.Tx, vaID, symbol string) error {
	_, err := tx.Exec(`DELETE FROM positions WHERE va_id = ? AND symbol = ?`, vaID, symbol)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func insertTradeTx(tx *sql.Tx, t *core.Trade) error {
	_, err := tx.Exec(`INSERT INTO trades (trade_id, va_id, symbol, side, qty, entry_price, exit_price,
			realized_pnl, closed_at, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.VAID, t.Symbol, t.Side, t.Qty.String(), t.EntryPrice.String(), t.ExitPrice.String(),
		t.RealizedPnL.String(), t.ClosedAt.UnixNano(), t.Reason)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// storeTx implements core.StoreTx against an in-flight *sql.Tx, the narrow
// surface ApplyFill exposes to its FillApplier callback.
type storeTx struct {
	tx *sql.Tx
}

func (s *storeTx) GetVA(vaID string) (*core.VirtualAccount, error) {
	row := s.tx.QueryRow(`SELECT va_id, balance, realized_pnl, unrealized_pnl, wins, losses,
		consecutive_losses, max_drawdown, peak_equity, cooldown_until, kill_switch FROM virtual_accounts WHERE va_id = ?`, vaID)
	va, err := scanVA(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrVANotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get virtual account in tx: %w", err)
	}
	return va, nil
}

func (s *storeTx) SaveVA(va *core.VirtualAccount) error       { return saveVATx(s.tx, va) }
func (s *storeTx) SaveOrder(o *core.Order) error              { return saveOrderTx(s.tx, o) }
func (s *storeTx) SavePosition(p *core.Position) error        { return savePositionTx(s.tx, p) }
func (s *storeTx) DeletePosition(vaID, symbol string) error   { return deletePositionTx(s.tx, vaID, symbol) }
func (s *storeTx) InsertTrade(t *core.Trade) error             { return insertTradeTx(s.tx, t) }

var _ core.StoreTx = (*storeTx)(nil)
