// Package store implements core.IStore over sqlite: the serialization point
// for every state change that matters for position ownership and
// stop-loss liveness. Every mutation that touches more than one table
// runs inside a single serializable transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"

	"tradeguard/internal/core"
	apperrors "tradeguard/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS virtual_accounts (
	va_id              TEXT PRIMARY KEY,
	balance            TEXT NOT NULL,
	realized_pnl       TEXT NOT NULL,
	unrealized_pnl     TEXT NOT NULL,
	wins               INTEGER NOT NULL,
	losses             INTEGER NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	max_drawdown       TEXT NOT NULL,
	peak_equity        TEXT NOT NULL,
	cooldown_until     INTEGER,
	kill_switch        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
	order_id          TEXT PRIMARY KEY,
	exchange_order_id TEXT,
	va_id           TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	intent          TEXT NOT NULL,
	qty_requested   TEXT NOT NULL,
	qty_filled      TEXT NOT NULL,
	avg_fill_price  TEXT NOT NULL,
	status          TEXT NOT NULL,
	stop_loss_price TEXT,
	linked_entry_id TEXT,
	created_at      INTEGER NOT NULL,
	last_update_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS positions (
	va_id           TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	qty             TEXT NOT NULL,
	avg_entry_price TEXT NOT NULL,
	current_price   TEXT NOT NULL,
	stop_loss_price TEXT NOT NULL,
	opened_at       INTEGER NOT NULL,
	PRIMARY KEY (va_id, symbol),
	UNIQUE (symbol)
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	va_id        TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	qty          TEXT NOT NULL,
	entry_price  TEXT NOT NULL,
	exit_price   TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	closed_at    INTEGER NOT NULL,
	reason       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS incidents (
	incident_id TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// Store is a sqlite-backed core.IStore.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the sqlite database at path, enables WAL
// mode for crash recovery, and applies the schema if absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- Virtual accounts ---

func (s *Store) GetVA(ctx context.Context, vaID string) (*core.VirtualAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT va_id, balance, realized_pnl, unrealized_pnl, wins, losses,
		consecutive_losses, max_drawdown, peak_equity, cooldown_until, kill_switch FROM virtual_accounts WHERE va_id = ?`, vaID)
	va, err := scanVA(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrVANotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get virtual account: %w", err)
	}
	return va, nil
}

func (s *Store) ListVAs(ctx context.Context) ([]*core.VirtualAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT va_id, balance, realized_pnl, unrealized_pnl, wins, losses,
		consecutive_losses, max_drawdown, peak_equity, cooldown_until, kill_switch FROM virtual_accounts ORDER BY va_id`)
	if err != nil {
		return nil, fmt.Errorf("list virtual accounts: %w", err)
	}
	defer rows.Close()

	var out []*core.VirtualAccount
	for rows.Next() {
		va, err := scanVA(rows)
		if err != nil {
			return nil, fmt.Errorf("scan virtual account: %w", err)
		}
		out = append(out, va)
	}
	return out, rows.Err()
}

func (s *Store) UpsertVA(ctx context.Context, va *core.VirtualAccount) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveVATx(tx, va); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Orders ---

func (s *Store) InsertOrder(ctx context.Context, o *core.Order) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveOrderTx(tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelectCols+` FROM orders WHERE order_id = ?`, orderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListNonTerminalOrders(ctx context.Context) ([]*core.Order, error) {
	rows, err := s.db.QueryContext(ctx, orderSelectCols+` FROM orders WHERE status IN ('PENDING','PARTIAL') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *Store) ListNonTerminalOrdersOlderThan(ctx context.Context, cutoff time.Time) ([]*core.Order, error) {
	rows, err := s.db.QueryContext(ctx, orderSelectCols+` FROM orders WHERE status IN ('PENDING','PARTIAL') AND last_update_at < ? ORDER BY created_at`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status core.OrderStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ?, last_update_at = ? WHERE order_id = ?`, status, now.UnixNano(), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return apperrors.ErrOrderNotFound
	}
	return nil
}

func (s *Store) GetOrderByLinkedEntryID(ctx context.Context, entryOrderID string) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelectCols+` FROM orders WHERE linked_entry_id = ?`, entryOrderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by linked entry id: %w", err)
	}
	return o, nil
}

func (s *Store) UpdateOrderQty(ctx context.Context, orderID string, qty decimal.Decimal, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET qty_requested = ?, last_update_at = ? WHERE order_id = ?`, qty.String(), now.UnixNano(), orderID)
	if err != nil {
		return fmt.Errorf("update order qty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order qty: %w", err)
	}
	if n == 0 {
		return apperrors.ErrOrderNotFound
	}
	return nil
}

// --- Positions ---

func (s *Store) GetPosition(ctx context.Context, vaID, symbol string) (*core.Position, error) {
	row := s.db.QueryRowContext(ctx, positionSelectCols+` FROM positions WHERE va_id = ? AND symbol = ?`, vaID, symbol)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]*core.Position, error) {
	rows, err := s.db.QueryContext(ctx, positionSelectCols+` FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	var out []*core.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Trades ---

func (s *Store) ListTrades(ctx context.Context, vaID string) ([]*core.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_id, va_id, symbol, side, qty, entry_price, exit_price, realized_pnl, closed_at, reason
		FROM trades WHERE va_id = ? ORDER BY closed_at DESC`, vaID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []*core.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApplyFill runs apply inside a single serializable transaction. The
// position row's UNIQUE(symbol) constraint is what makes a conflicting
// INSERT here fail loudly instead of silently double-owning a symbol.
func (s *Store) ApplyFill(ctx context.Context, fill core.FillEvent, apply core.FillApplier) (core.FillApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return core.FillApplyResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.getOrderForUpdate(tx, fill.OrderID)
	if err != nil {
		return core.FillApplyResult{}, err
	}

	position, err := s.getPositionForUpdate(tx, order.VAID, order.Symbol)
	if err != nil && err != apperrors.ErrPositionNotFound {
		return core.FillApplyResult{}, err
	}
	if err == apperrors.ErrPositionNotFound {
		position = nil
	}

	stx := &storeTx{tx: tx}
	result, err := apply(stx, order, position)
	if err != nil {
		return core.FillApplyResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.FillApplyResult{}, fmt.Errorf("commit fill: %w", err)
	}
	return result, nil
}

func (s *Store) getOrderForUpdate(tx *sql.Tx, orderID string) (*core.Order, error) {
	row := tx.QueryRow(orderSelectCols+` FROM orders WHERE order_id = ?`, orderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

func (s *Store) getPositionForUpdate(tx *sql.Tx, vaID, symbol string) (*core.Position, error) {
	row := tx.QueryRow(positionSelectCols+` FROM positions WHERE va_id = ? AND symbol = ?`, vaID, symbol)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position for update: %w", err)
	}
	return p, nil
}

var _ core.IStore = (*Store)(nil)
