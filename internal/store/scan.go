package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

const orderSelectCols = `SELECT order_id, exchange_order_id, va_id, symbol, side, intent, qty_requested, qty_filled, avg_fill_price,
	status, stop_loss_price, linked_entry_id, created_at, last_update_at`

const positionSelectCols = `SELECT va_id, symbol, side, qty, avg_entry_price, current_price, stop_loss_price, opened_at`

func scanVA(row scanner) (*core.VirtualAccount, error) {
	var va core.VirtualAccount
	var balance, realized, unrealized, maxDD, peak string
	var cooldownUntil sql.NullInt64
	var killSwitch int

	if err := row.Scan(&va.VAID, &balance, &realized, &unrealized, &va.Wins, &va.Losses,
		&va.ConsecutiveLosses, &maxDD, &peak, &cooldownUntil, &killSwitch); err != nil {
		return nil, err
	}

	var err error
	if va.Balance, err = parseDecimal(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if va.RealizedPnL, err = parseDecimal(realized); err != nil {
		return nil, fmt.Errorf("parse realized_pnl: %w", err)
	}
	if va.UnrealizedPnL, err = parseDecimal(unrealized); err != nil {
		return nil, fmt.Errorf("parse unrealized_pnl: %w", err)
	}
	if va.MaxDrawdown, err = parseDecimal(maxDD); err != nil {
		return nil, fmt.Errorf("parse max_drawdown: %w", err)
	}
	if va.PeakEquity, err = parseDecimal(peak); err != nil {
		return nil, fmt.Errorf("parse peak_equity: %w", err)
	}
	if cooldownUntil.Valid {
		t := unixNanoTime(cooldownUntil.Int64)
		va.CooldownUntil = &t
	}
	va.KillSwitch = killSwitch != 0
	return &va, nil
}

func scanOrder(row scanner) (*core.Order, error) {
	var o core.Order
	var qtyReq, qtyFilled, avgFill string
	var exchangeOrderID, stopLoss, linkedEntry sql.NullString
	var createdAt, lastUpdate int64

	if err := row.Scan(&o.OrderID, &exchangeOrderID, &o.VAID, &o.Symbol, &o.Side, &o.Intent, &qtyReq, &qtyFilled, &avgFill,
		&o.Status, &stopLoss, &linkedEntry, &createdAt, &lastUpdate); err != nil {
		return nil, err
	}
	o.ExchangeOrderID = exchangeOrderID.String

	var err error
	if o.QtyRequested, err = parseDecimal(qtyReq); err != nil {
		return nil, fmt.Errorf("parse qty_requested: %w", err)
	}
	if o.QtyFilled, err = parseDecimal(qtyFilled); err != nil {
		return nil, fmt.Errorf("parse qty_filled: %w", err)
	}
	if o.AvgFillPrice, err = parseDecimal(avgFill); err != nil {
		return nil, fmt.Errorf("parse avg_fill_price: %w", err)
	}
	if stopLoss.Valid {
		d, err := parseDecimal(stopLoss.String)
		if err != nil {
			return nil, fmt.Errorf("parse stop_loss_price: %w", err)
		}
		o.StopLossPrice = &d
	}
	if linkedEntry.Valid {
		id := linkedEntry.String
		o.LinkedEntryID = &id
	}
	o.CreatedAt = unixNanoTime(createdAt)
	o.LastUpdateAt = unixNanoTime(lastUpdate)
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*core.Order, error) {
	var out []*core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanPosition(row scanner) (*core.Position, error) {
	var p core.Position
	var qty, avgEntry, current, stopLoss string
	var openedAt int64

	if err := row.Scan(&p.VAID, &p.Symbol, &p.Side, &qty, &avgEntry, &current, &stopLoss, &openedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Qty, err = parseDecimal(qty); err != nil {
		return nil, fmt.Errorf("parse qty: %w", err)
	}
	if p.AvgEntryPrice, err = parseDecimal(avgEntry); err != nil {
		return nil, fmt.Errorf("parse avg_entry_price: %w", err)
	}
	if p.CurrentPrice, err = parseDecimal(current); err != nil {
		return nil, fmt.Errorf("parse current_price: %w", err)
	}
	if p.StopLossPrice, err = parseDecimal(stopLoss); err != nil {
		return nil, fmt.Errorf("parse stop_loss_price: %w", err)
	}
	p.OpenedAt = unixNanoTime(openedAt)
	return &p, nil
}

func scanTrade(row scanner) (*core.Trade, error) {
	var t core.Trade
	var qty, entry, exit, pnl string
	var closedAt int64

	if err := row.Scan(&t.TradeID, &t.VAID, &t.Symbol, &t.Side, &qty, &entry, &exit, &pnl, &closedAt, &t.Reason); err != nil {
		return nil, err
	}

	var err error
	if t.Qty, err = parseDecimal(qty); err != nil {
		return nil, fmt.Errorf("parse qty: %w", err)
	}
	if t.EntryPrice, err = parseDecimal(entry); err != nil {
		return nil, fmt.Errorf("parse entry_price: %w", err)
	}
	if t.ExitPrice, err = parseDecimal(exit); err != nil {
		return nil, fmt.Errorf("parse exit_price: %w", err)
	}
	if t.RealizedPnL, err = parseDecimal(pnl); err != nil {
		return nil, fmt.Errorf("parse realized_pnl: %w", err)
	}
	t.ClosedAt = unixNanoTime(closedAt)
	return &t, nil
}
