// Package execloop runs the three cooperative tasks that drive the
// engine — signal consumption, reconciliation, and position monitoring —
// under a shared context and a single errgroup.
package execloop

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeguard/internal/core"
	"tradeguard/internal/filters"
	"tradeguard/internal/governor"
	"tradeguard/internal/ordermgr"
	"tradeguard/internal/router"
)

// Config tunes the loop's timing and backpressure behavior.
type Config struct {
	SignalQueueCapacity int
	ReconcileInterval   time.Duration
	SnapshotPollFallback time.Duration // period of a full open-position poll that runs alongside pushed snapshots
}

// Loop owns the signal queue and supervises the consumer, reconciliation
// ticker, and position monitor as one errgroup.
type Loop struct {
	cfg      Config
	exchange core.IExchange
	store    core.IStore
	router   *router.Router
	governor *governor.Governor
	filters  *filters.Chain
	orders   *ordermgr.Manager
	logger   core.ILogger

	signals     chan core.Signal
	droppedSigs atomic.Int64

	positions chan positionTick
}

type positionTick struct {
	symbol string
	snap   core.MarketSnapshot
}

// New wires a Loop from its collaborators.
func New(cfg Config, exchange core.IExchange, store core.IStore, r *router.Router, g *governor.Governor, chain *filters.Chain, orders *ordermgr.Manager, logger core.ILogger) *Loop {
	return &Loop{
		cfg:       cfg,
		exchange:  exchange,
		store:     store,
		router:    r,
		governor:  g,
		filters:   chain,
		orders:    orders,
		logger:    logger.WithField("component", "execution_loop"),
		signals:   make(chan core.Signal, cfg.SignalQueueCapacity),
		positions: make(chan positionTick, cfg.SignalQueueCapacity),
	}
}

// Submit enqueues a signal, dropping the oldest queued signal if the
// bounded queue is full.
func (l *Loop) Submit(signal core.Signal) {
	select {
	case l.signals <- signal:
		return
	default:
	}
	select {
	case <-l.signals:
		l.droppedSigs.Add(1)
		l.logger.Warn("signal queue full, dropped oldest signal", "dropped_total", l.droppedSigs.Load())
	default:
	}
	select {
	case l.signals <- signal:
	default:
		l.droppedSigs.Add(1)
	}
}

// DroppedSignals reports the cumulative count of signals dropped for
// backpressure, exposed to the dashboard/metrics packages.
func (l *Loop) DroppedSignals() int64 { return l.droppedSigs.Load() }

// Run starts the three tasks and blocks until ctx is canceled and every
// task has exited cleanly, then closes the persistence store last.
func (l *Loop) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return l.consumeSignals(gctx) })
	group.Go(func() error { return l.reconcileTicker(gctx) })
	group.Go(func() error { return l.monitorPositions(gctx) })

	err := group.Wait()
	if closeErr := l.store.Close(); closeErr != nil {
		l.logger.Error("failed to close store on shutdown", "error", closeErr)
	}
	return err
}

func (l *Loop) consumeSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return l.drain(ctx)
		case signal := <-l.signals:
			l.handleSignal(ctx, signal)
		}
	}
}

func (l *Loop) handleSignal(ctx context.Context, signal core.Signal) {
	routeOutcome := l.router.Route(signal.VAID, signal.Symbol)
	if !routeOutcome.Accepted {
		l.logger.Info("signal rejected by router", "va_id", signal.VAID, "symbol", signal.Symbol, "reason", routeOutcome.Reason)
		return
	}

	admitOutcome := l.governor.Admit(signal.VAID, signal.ReceivedAt)
	if !admitOutcome.Accepted {
		l.logger.Info("signal rejected by governor", "va_id", signal.VAID, "reason", admitOutcome.Reason)
		l.router.Release(signal.VAID, signal.Symbol)
		return
	}

	filterOutcome := l.filters.Run(signal, signal.ReceivedAt)
	if !filterOutcome.Accepted {
		l.logger.Info("signal rejected by filter chain", "va_id", signal.VAID, "symbol", signal.Symbol, "reason", filterOutcome.Reason)
		l.router.Release(signal.VAID, signal.Symbol)
		return
	}

	if _, err := l.orders.PlaceEntry(ctx, signal); err != nil {
		l.logger.Error("order placement failed", "va_id", signal.VAID, "symbol", signal.Symbol, "error", err)
		l.router.Release(signal.VAID, signal.Symbol)
	}
}

// drain is invoked once on shutdown: stop admitting new signals, run one
// final reconciliation pass, then cancel every still-open order through
// the exchange adapter before the store closes.
func (l *Loop) drain(ctx context.Context) error {
	background := context.Background()
	if err := l.orders.Reconcile(background); err != nil {
		l.logger.Error("final reconciliation pass failed during shutdown", "error", err)
	}

	nonTerminal, err := l.store.ListNonTerminalOrders(background)
	if err != nil {
		l.logger.Error("failed to list non-terminal orders during shutdown", "error", err)
		return ctx.Err()
	}
	for _, o := range nonTerminal {
		callCtx, cancel := context.WithTimeout(background, 5*time.Second)
		if err := l.exchange.CancelOrder(callCtx, o.ExchangeOrderID); err != nil {
			l.logger.Error("failed to cancel resting order during shutdown", "order_id", o.OrderID, "error", err)
		} else if err := l.store.UpdateOrderStatus(background, o.OrderID, core.StatusCanceled, time.Now()); err != nil {
			l.logger.Error("failed to mark order canceled during shutdown", "order_id", o.OrderID, "error", err)
		}
		cancel()
	}
	return ctx.Err()
}

func (l *Loop) reconcileTicker(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.orders.Reconcile(ctx); err != nil {
				l.logger.Error("reconciliation tick failed", "error", err)
			}
		}
	}
}

func (l *Loop) monitorPositions(ctx context.Context) error {
	err := l.exchange.StartSnapshotStream(ctx, nil, func(symbol string, snap core.MarketSnapshot) {
		select {
		case l.positions <- positionTick{symbol: symbol, snap: snap}:
		default:
			l.logger.Warn("position tick dropped, monitor backlog full", "symbol", symbol)
		}
	})
	if err != nil {
		l.logger.Error("failed to start snapshot stream, falling back to polling", "error", err)
	}

	fallback := time.NewTicker(l.cfg.SnapshotPollFallback)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-l.positions:
			l.applyPositionTick(ctx, tick)
		case <-fallback.C:
			l.pollPositions(ctx)
		}
	}
}

func (l *Loop) applyPositionTick(ctx context.Context, tick positionTick) {
	positions, err := l.store.ListOpenPositions(ctx)
	if err != nil {
		l.logger.Error("failed to list open positions for monitor tick", "error", err)
		return
	}
	var affected []*core.Position
	for _, p := range positions {
		if p.Symbol == tick.symbol {
			p.CurrentPrice = tick.snap.Last
			affected = append(affected, p)
		}
	}
	if len(affected) > 0 {
		l.orders.CheckStopLossTriggers(ctx, affected)
	}
}

func (l *Loop) pollPositions(ctx context.Context) {
	positions, err := l.store.ListOpenPositions(ctx)
	if err != nil {
		l.logger.Error("failed to list open positions for fallback poll", "error", err)
		return
	}
	if len(positions) > 0 {
		l.orders.CheckStopLossTriggers(ctx, positions)
	}
}
