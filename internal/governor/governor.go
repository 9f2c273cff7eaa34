// Package governor enforces per-VA risk controls: consecutive-loss
// cooldown, open-position throttling, and a process-wide kill switch.
// One breaker per virtual account, sharded with sync.Map so trades on
// different VAs serialize independently rather than contending on a
// single global breaker.
package governor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
)

// Config mirrors the subset of config.GovernorConfig the governor needs,
// decoupling this package from internal/config.
type Config struct {
	MaxLossCooldown         int
	CooldownDuration        time.Duration
	MaxOpenPositionsPerVA   int
	KillSwitchEnabled       bool
	PanicCloseIncidentLimit int
}

// vaState is the governor's working state for one VA, guarded by its own
// mutex so concurrent trades on different VAs never contend.
type vaState struct {
	mu                sync.Mutex
	consecutiveLosses int
	cooldownUntil     time.Time
	openPositions     int
	panicCloseCount   int
}

// Governor is the admission gate between the router and the filter chain.
type Governor struct {
	cfg Config

	states sync.Map // vaID -> *vaState
	kill   atomic.Bool

	logger core.ILogger
	store  core.IStore
}

// New creates a Governor. The process-wide kill switch starts at
// cfg.KillSwitchEnabled.
func New(cfg Config, store core.IStore, logger core.ILogger) *Governor {
	g := &Governor{
		cfg:    cfg,
		store:  store,
		logger: logger.WithField("component", "governor"),
	}
	g.kill.Store(cfg.KillSwitchEnabled)
	return g
}

func (g *Governor) stateFor(vaID string) *vaState {
	v, _ := g.states.LoadOrStore(vaID, &vaState{})
	return v.(*vaState)
}

// Rehydrate seeds per-VA state (cooldown, consecutive losses, open
// position count) from persisted state on process startup.
func (g *Governor) Rehydrate(ctx context.Context) error {
	vas, err := g.store.ListVAs(ctx)
	if err != nil {
		return err
	}
	for _, va := range vas {
		st := g.stateFor(va.VAID)
		st.mu.Lock()
		st.consecutiveLosses = va.ConsecutiveLosses
		if va.CooldownUntil != nil {
			st.cooldownUntil = *va.CooldownUntil
		}
		if va.KillSwitch {
			g.kill.Store(true)
		}
		st.mu.Unlock()
	}

	positions, err := g.store.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		st := g.stateFor(p.VAID)
		st.mu.Lock()
		st.openPositions++
		st.mu.Unlock()
	}
	return nil
}

// KillSwitchEngaged reports the current process-wide kill switch state.
func (g *Governor) KillSwitchEngaged() bool { return g.kill.Load() }

// EngageKillSwitch trips the global kill switch; every subsequent Admit
// call rejects until a human clears it.
func (g *Governor) EngageKillSwitch(reason string) {
	g.kill.Store(true)
	g.logger.Warn("kill switch engaged", "reason", reason)
}

// ClearKillSwitch is the operator action that resumes admission.
func (g *Governor) ClearKillSwitch() {
	g.kill.Store(false)
	g.logger.Info("kill switch cleared")
}

// Admit evaluates the VA-level gates in order: kill switch, cooldown,
// open-position throttle. The caller is responsible for calling Route
// first (symbol ownership is the router's concern, not the governor's).
func (g *Governor) Admit(vaID string, now time.Time) core.AdmitOutcome {
	if g.kill.Load() {
		return core.AdmitRejected(core.ReasonKillSwitchEngaged)
	}

	st := g.stateFor(vaID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.cooldownUntil.IsZero() {
		if st.cooldownUntil.After(now) {
			return core.AdmitRejected(core.ReasonInCooldown)
		}
		// Cooldown has elapsed: COOLDOWN -> ACTIVE. The consecutive-loss
		// streak that tripped the cooldown is spent here, not at trip time,
		// so a VA that breaches cooldown again immediately after clearing
		// still needs a fresh streak of losses to re-trip it.
		st.cooldownUntil = time.Time{}
		st.consecutiveLosses = 0
	}

	if g.cfg.MaxOpenPositionsPerVA > 0 && st.openPositions >= g.cfg.MaxOpenPositionsPerVA {
		return core.AdmitRejected(core.ReasonThrottled)
	}

	return core.AdmitAccepted()
}

// OnPositionOpened increments the VA's open-position counter; call after
// the order manager's fill commits an ENTRY.
func (g *Governor) OnPositionOpened(vaID string) {
	st := g.stateFor(vaID)
	st.mu.Lock()
	st.openPositions++
	st.mu.Unlock()
}

// OnPositionClosed decrements the counter; call after a position-closing
// fill commits.
func (g *Governor) OnPositionClosed(vaID string) {
	st := g.stateFor(vaID)
	st.mu.Lock()
	if st.openPositions > 0 {
		st.openPositions--
	}
	st.mu.Unlock()
}

// RecordTrade updates the consecutive-loss counter and, on breach, opens a
// cooldown window for this VA only.
func (g *Governor) RecordTrade(ctx context.Context, vaID string, realizedPnL decimal.Decimal, now time.Time) {
	st := g.stateFor(vaID)
	st.mu.Lock()

	if realizedPnL.IsNegative() {
		st.consecutiveLosses++
	} else {
		st.consecutiveLosses = 0
	}

	tripped := g.cfg.MaxLossCooldown > 0 && st.consecutiveLosses >= g.cfg.MaxLossCooldown
	if tripped {
		st.cooldownUntil = now.Add(g.cfg.CooldownDuration)
	}
	consecutiveLosses := st.consecutiveLosses
	cooldownUntil := st.cooldownUntil
	st.mu.Unlock()

	if tripped {
		g.logger.Warn("cooldown engaged", "va_id", vaID, "cooldown_until", cooldownUntil)
	}

	if va, err := g.store.GetVA(ctx, vaID); err == nil {
		va.ConsecutiveLosses = consecutiveLosses
		if tripped {
			until := cooldownUntil
			va.CooldownUntil = &until
		}
		_ = g.store.UpsertVA(ctx, va)
	}
}

// RecordPanicClose tracks a stop-loss-attach failure that forced a
// panic-close. Once the count reaches PanicCloseIncidentLimit the kill
// switch engages automatically.
func (g *Governor) RecordPanicClose(vaID string) {
	st := g.stateFor(vaID)
	st.mu.Lock()
	st.panicCloseCount++
	breach := g.cfg.PanicCloseIncidentLimit > 0 && st.panicCloseCount >= g.cfg.PanicCloseIncidentLimit
	st.mu.Unlock()

	if breach {
		g.EngageKillSwitch("panic-close incident threshold exceeded")
	}
}
