// Package router enforces the one-symbol-per-VA ownership rule with an
// in-memory reservation map kept write-through against the persistence
// store.
package router

import (
	"context"
	"fmt"
	"sync"

	"tradeguard/internal/core"
)

// Router decides whether a VA may open a position in a symbol. It never
// touches order/position mutation itself — Route only reserves the symbol;
// the order manager commits the actual position via the store.
//
// Two invariants are enforced, so the two maps are kept in sync as a
// bijection: a VA reserves at most one symbol, and a symbol is reserved
// by at most one VA.
type Router struct {
	mu sync.RWMutex
	// bySymbol maps symbol -> the VA currently holding (or reserving) it.
	bySymbol map[string]string
	// byVA maps vaID -> the symbol it currently holds (or reserves).
	byVA map[string]string

	logger core.ILogger
}

// New creates an empty Router. Call Rehydrate after construction to load
// existing ownership from the store on process startup.
func New(logger core.ILogger) *Router {
	return &Router{
		bySymbol: make(map[string]string),
		byVA:     make(map[string]string),
		logger:   logger.WithField("component", "router"),
	}
}

// Rehydrate seeds the reservation map from persisted open positions, so a
// restart does not forget who owns what.
func (r *Router) Rehydrate(ctx context.Context, store core.IStore) error {
	positions, err := store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate router: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range positions {
		r.bySymbol[p.Symbol] = p.VAID
		r.byVA[p.VAID] = p.Symbol
	}
	r.logger.Info("router rehydrated", "symbols_owned", len(r.bySymbol))
	return nil
}

// Route reserves symbol for vaID. Rejected if vaID already reserves a
// different symbol (one-symbol-per-VA) or if symbol is already reserved
// by a different VA. Reservation is provisional: on a downstream
// rejection (governor, filter, or exchange), callers must call Release
// to give the symbol back.
func (r *Router) Route(vaID, symbol string) core.RouteOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.byVA[vaID]; ok && held != symbol {
		r.logger.Debug("route rejected: va already holds a different symbol", "va_id", vaID, "held", held, "requested", symbol)
		return core.RouteRejected(core.ReasonSymbolConflict)
	}
	if holder, ok := r.bySymbol[symbol]; ok && holder != vaID {
		r.logger.Debug("route rejected: symbol conflict", "symbol", symbol, "requesting_va", vaID, "holder", holder)
		return core.RouteRejected(core.ReasonSymbolConflict)
	}

	r.bySymbol[symbol] = vaID
	r.byVA[vaID] = symbol
	return core.Accepted()
}

// Release gives up vaID's reservation of symbol, if it currently holds it.
// Safe to call on rejection paths even if Route was never called for this
// pair — it is a no-op in that case.
func (r *Router) Release(vaID, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bySymbol[symbol] == vaID {
		delete(r.bySymbol, symbol)
	}
	if r.byVA[vaID] == symbol {
		delete(r.byVA, vaID)
	}
}

// OwnerOf reports which VA currently owns symbol, if any.
func (r *Router) OwnerOf(symbol string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	va, ok := r.bySymbol[symbol]
	return va, ok
}
