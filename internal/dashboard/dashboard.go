// Package dashboard assembles a read-only operator snapshot of engine
// state on a fixed refresh period: virtual accounts, open positions,
// recent trades, and the incident log.
package dashboard

import (
	"context"
	"sync"
	"time"

	"tradeguard/internal/alert"
	"tradeguard/internal/core"
)

// SignalQueueStats is anything that can report its backpressure counter;
// satisfied by execloop.Loop without dashboard importing execloop.
type SignalQueueStats interface {
	DroppedSignals() int64
}

// Broadcaster pushes a snapshot out to live subscribers; cmd/engine
// satisfies it with an adapter over pkg/liveserver.Hub, so dashboard
// never imports liveserver directly.
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// Snapshot is the full read-only view served to operators.
type Snapshot struct {
	GeneratedAt     time.Time
	VirtualAccounts []*core.VirtualAccount
	OpenPositions   []*core.Position
	RecentTrades    []*core.Trade
	Incidents       []alert.Incident
	DroppedSignals  int64
	KillSwitch      bool
}

// Dashboard periodically rebuilds a Snapshot from the store, alerter, and
// execution loop, and serves the last built copy without touching them
// again in between refreshes — so a slow store query never blocks an
// HTTP request.
type Dashboard struct {
	store       core.IStore
	alerter     *alert.Manager
	loop        SignalQueueStats
	broadcaster Broadcaster
	logger      core.ILogger

	recentTradesPerVA int
	refreshInterval   time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
}

// New builds a Dashboard. Each snapshot keeps at most recentTradesPerVA
// (20) of the newest trades per VA so the view stays cheap to rebuild.
func New(store core.IStore, alerter *alert.Manager, loop SignalQueueStats, refreshInterval time.Duration, logger core.ILogger) *Dashboard {
	return &Dashboard{
		store:             store,
		alerter:           alerter,
		loop:              loop,
		logger:            logger.WithField("component", "dashboard"),
		recentTradesPerVA: 20,
		refreshInterval:   refreshInterval,
	}
}

// SetBroadcaster wires a live push channel; every refresh after this call
// also broadcasts the new snapshot as a "snapshot" message.
func (d *Dashboard) SetBroadcaster(b Broadcaster) { d.broadcaster = b }

// Run rebuilds the snapshot immediately, then on every refresh tick,
// until ctx is canceled.
func (d *Dashboard) Run(ctx context.Context) error {
	d.refresh(ctx)

	ticker := time.NewTicker(d.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.refresh(ctx)
		}
	}
}

func (d *Dashboard) refresh(ctx context.Context) {
	vas, err := d.store.ListVAs(ctx)
	if err != nil {
		d.logger.Error("dashboard refresh: failed to list virtual accounts", "error", err)
		return
	}
	positions, err := d.store.ListOpenPositions(ctx)
	if err != nil {
		d.logger.Error("dashboard refresh: failed to list open positions", "error", err)
		return
	}

	var trades []*core.Trade
	killSwitch := false
	for _, va := range vas {
		if va.KillSwitch {
			killSwitch = true
		}
		vaTrades, err := d.store.ListTrades(ctx, va.VAID)
		if err != nil {
			d.logger.Error("dashboard refresh: failed to list trades", "va_id", va.VAID, "error", err)
			continue
		}
		if len(vaTrades) > d.recentTradesPerVA {
			vaTrades = vaTrades[:d.recentTradesPerVA] // ListTrades returns newest first
		}
		trades = append(trades, vaTrades...)
	}

	snap := Snapshot{
		GeneratedAt:     time.Now(),
		VirtualAccounts: vas,
		OpenPositions:   positions,
		RecentTrades:    trades,
		KillSwitch:      killSwitch,
	}
	if d.alerter != nil {
		snap.Incidents = d.alerter.Incidents()
	}
	if d.loop != nil {
		snap.DroppedSignals = d.loop.DroppedSignals()
	}

	d.mu.Lock()
	d.snapshot = snap
	d.mu.Unlock()

	if d.broadcaster != nil {
		d.broadcaster.Broadcast("snapshot", snap)
	}
}

// Snapshot returns the most recently built snapshot. Never mutates state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}
