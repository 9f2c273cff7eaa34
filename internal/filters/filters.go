// Package filters implements the pre-trade gate chain: trading-window,
// spread, slippage, and latency checks evaluated in order, first
// rejection short-circuits. Each filter is a small stateless check
// against a signal's market-condition snapshot.
package filters

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeguard/internal/core"
)

// Filter evaluates one gate against a signal's market snapshot.
type Filter interface {
	Name() string
	Check(signal core.Signal, now time.Time) core.FilterOutcome
}

// Chain runs a fixed, ordered list of filters; the first rejection
// short-circuits the remaining ones.
type Chain struct {
	filters []Filter
	logger  core.ILogger
}

// NewChain builds the chain in a fixed order: trading window, spread,
// slippage, latency.
func NewChain(cfg Config, logger core.ILogger) *Chain {
	return &Chain{
		filters: []Filter{
			NewTradingWindowFilter(cfg.WindowStart, cfg.WindowEnd, cfg.Location),
			SpreadFilter{MaxSpreadBPS: cfg.MaxSpreadBPS},
			SlippageFilter{MaxSlippageBPS: cfg.MaxSlippageBPS},
			LatencyFilter{MaxLatencyMS: cfg.MaxLatencyMS},
		},
		logger: logger.WithField("component", "filter_chain"),
	}
}

// Config is the subset of config.FiltersConfig the chain needs, with the
// time.Location already resolved. The window bounds stay "HH:MM" strings
// here; NewChain parses them once, so filters never re-parse strings per
// signal.
type Config struct {
	MaxSpreadBPS   float64
	MaxSlippageBPS float64
	MaxLatencyMS   float64
	WindowStart    string // "HH:MM", empty means always open
	WindowEnd      string
	Location       *time.Location
}

// Run evaluates every filter in order, stopping at the first rejection.
func (c *Chain) Run(signal core.Signal, now time.Time) core.FilterOutcome {
	for _, f := range c.filters {
		outcome := f.Check(signal, now)
		if !outcome.Accepted {
			c.logger.Debug("filter rejected signal", "filter", f.Name(), "va_id", signal.VAID, "symbol", signal.Symbol, "reason", outcome.Reason)
			return outcome
		}
	}
	return core.FilterAccepted()
}

// SpreadFilter rejects signals where the bid/ask spread, expressed in
// basis points of the mid price, exceeds MaxSpreadBPS.
type SpreadFilter struct {
	MaxSpreadBPS float64
}

func (SpreadFilter) Name() string { return "spread" }

func (f SpreadFilter) Check(signal core.Signal, now time.Time) core.FilterOutcome {
	m := signal.Market
	if m.Bid.IsZero() && m.Ask.IsZero() {
		return core.FilterRejected("spread", core.ReasonInvalidMarket)
	}

	mid := m.Bid.Add(m.Ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return core.FilterRejected("spread", core.ReasonInvalidMarket)
	}

	spread := m.Ask.Sub(m.Bid)
	spreadBPS := spread.Div(mid).Mul(decimal.NewFromInt(10000))

	if spreadBPS.GreaterThan(decimal.NewFromFloat(f.MaxSpreadBPS)) {
		return core.FilterRejected("spread", core.ReasonSpreadTooWide)
	}
	return core.FilterAccepted()
}

// SlippageFilter rejects signals where the snapshot's last price deviates
// from the strategy's ExpectedPrice by more than MaxSlippageBPS. When
// ExpectedPrice is zero (not populated by the caller) this filter is
// skipped entirely rather than rejected — the strategy did not declare an
// intended execution price, so there is nothing to compare against.
type SlippageFilter struct {
	MaxSlippageBPS float64
}

func (SlippageFilter) Name() string { return "slippage" }

func (f SlippageFilter) Check(signal core.Signal, now time.Time) core.FilterOutcome {
	expected := signal.Market.ExpectedPrice
	if expected.IsZero() {
		return core.FilterAccepted()
	}

	last := signal.Market.Last
	diff := last.Sub(expected).Abs()
	slippageBPS := diff.Div(expected).Mul(decimal.NewFromInt(10000))

	if slippageBPS.GreaterThan(decimal.NewFromFloat(f.MaxSlippageBPS)) {
		return core.FilterRejected("slippage", core.ReasonSlippageTooHigh)
	}
	return core.FilterAccepted()
}

// LatencyFilter rejects signals whose market snapshot is older than
// MaxLatencyMS relative to now, using the snapshot's self-reported source
// latency plus staleness since it was captured.
type LatencyFilter struct {
	MaxLatencyMS float64
}

func (LatencyFilter) Name() string { return "latency" }

func (f LatencyFilter) Check(signal core.Signal, now time.Time) core.FilterOutcome {
	m := signal.Market
	staleness := now.Sub(m.AsOf)
	totalLatencyMS := float64(m.SourceLatencyMS) + float64(staleness.Milliseconds())

	if totalLatencyMS > f.MaxLatencyMS {
		return core.FilterRejected("latency", core.ReasonLatencyTooHigh)
	}
	return core.FilterAccepted()
}

// TradingWindowFilter rejects signals received outside the configured
// trading hours. An empty start/end pair means the window is disabled
// (always open), matching config.Validate's both-set-or-both-empty rule.
type TradingWindowFilter struct {
	start, end time.Duration // offsets from midnight
	loc        *time.Location
	enabled    bool
}

// NewTradingWindowFilter parses "HH:MM" bounds once at construction so
// Check never re-parses strings per signal.
func NewTradingWindowFilter(startStr, endStr string, loc *time.Location) TradingWindowFilter {
	if startStr == "" || endStr == "" {
		return TradingWindowFilter{enabled: false}
	}
	if loc == nil {
		loc = time.UTC
	}
	start, errS := parseClock(startStr)
	end, errE := parseClock(endStr)
	if errS != nil || errE != nil {
		return TradingWindowFilter{enabled: false}
	}
	return TradingWindowFilter{start: start, end: end, loc: loc, enabled: true}
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (TradingWindowFilter) Name() string { return "trading_window" }

func (f TradingWindowFilter) Check(signal core.Signal, now time.Time) core.FilterOutcome {
	if !f.enabled {
		return core.FilterAccepted()
	}

	local := now.In(f.loc)
	offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute + time.Duration(local.Second())*time.Second

	if offset < f.start || offset > f.end {
		return core.FilterRejected("trading_window", core.ReasonOutsideTradingHours)
	}
	return core.FilterAccepted()
}
