package filters

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeguard/internal/core"
	"tradeguard/internal/logging"
)

func testLogger() core.ILogger { return logging.New("ERROR") }

func baseSignal(now time.Time) core.Signal {
	return core.Signal{
		VAID:       "va-1",
		Symbol:     "AAPL",
		Side:       core.Buy,
		DesiredQty: decimal.NewFromInt(10),
		Market: core.MarketSnapshot{
			Bid:             decimal.NewFromFloat(99.95),
			Ask:             decimal.NewFromFloat(100.05),
			Last:            decimal.NewFromFloat(100.0),
			AsOf:            now,
			SourceLatencyMS: 10,
		},
		ReceivedAt: now,
	}
}

func TestSpreadFilterRejectsWideSpread(t *testing.T) {
	now := time.Now()
	f := SpreadFilter{MaxSpreadBPS: 10.0}

	sig := baseSignal(now)
	sig.Market.Bid = decimal.NewFromFloat(95.0)
	sig.Market.Ask = decimal.NewFromFloat(105.0)

	out := f.Check(sig, now)
	assert.False(t, out.Accepted)
	assert.Equal(t, core.ReasonSpreadTooWide, out.Reason)
}

func TestSpreadFilterAcceptsTightSpread(t *testing.T) {
	now := time.Now()
	f := SpreadFilter{MaxSpreadBPS: 50.0}
	out := f.Check(baseSignal(now), now)
	assert.True(t, out.Accepted)
}

func TestSlippageFilterSkippedWhenExpectedPriceZero(t *testing.T) {
	now := time.Now()
	f := SlippageFilter{MaxSlippageBPS: 1.0}
	sig := baseSignal(now)
	sig.Market.Last = decimal.NewFromFloat(200.0) // would obviously "slip" if compared
	sig.Market.ExpectedPrice = decimal.Zero

	out := f.Check(sig, now)
	assert.True(t, out.Accepted, "slippage filter must be skipped when ExpectedPrice is unset")
}

func TestSlippageFilterRejectsWhenExpectedPriceDeviates(t *testing.T) {
	now := time.Now()
	f := SlippageFilter{MaxSlippageBPS: 5.0}
	sig := baseSignal(now)
	sig.Market.ExpectedPrice = decimal.NewFromFloat(100.0)
	sig.Market.Last = decimal.NewFromFloat(101.0)

	out := f.Check(sig, now)
	assert.False(t, out.Accepted)
	assert.Equal(t, core.ReasonSlippageTooHigh, out.Reason)
}

func TestLatencyFilterRejectsStaleSnapshot(t *testing.T) {
	now := time.Now()
	f := LatencyFilter{MaxLatencyMS: 500}
	sig := baseSignal(now.Add(-2 * time.Second))

	out := f.Check(sig, now)
	assert.False(t, out.Accepted)
	assert.Equal(t, core.ReasonLatencyTooHigh, out.Reason)
}

func TestTradingWindowFilterRejectsOutsideHours(t *testing.T) {
	loc := time.UTC
	f := NewTradingWindowFilter("09:30", "16:00", loc)

	now := time.Date(2026, 7, 31, 20, 0, 0, 0, loc)
	out := f.Check(baseSignal(now), now)
	assert.False(t, out.Accepted)
	assert.Equal(t, core.ReasonOutsideTradingHours, out.Reason)
}

func TestTradingWindowFilterAcceptsInsideHours(t *testing.T) {
	loc := time.UTC
	f := NewTradingWindowFilter("09:30", "16:00", loc)

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, loc)
	out := f.Check(baseSignal(now), now)
	assert.True(t, out.Accepted)
}

func TestTradingWindowFilterDisabledWhenEmpty(t *testing.T) {
	f := NewTradingWindowFilter("", "", nil)
	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	out := f.Check(baseSignal(now), now)
	assert.True(t, out.Accepted)
}

func TestChainShortCircuitsAtFirstRejection(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cfg := Config{
		MaxSpreadBPS:   1.0, // tight enough to reject the base signal's spread
		MaxSlippageBPS: 5.0,
		MaxLatencyMS:   500,
		WindowStart:    "09:30",
		WindowEnd:      "16:00",
		Location:       time.UTC,
	}
	chain := NewChain(cfg, testLogger())

	out := chain.Run(baseSignal(now), now)
	require.False(t, out.Accepted)
	assert.Equal(t, "spread", out.Filter)
	assert.Equal(t, core.ReasonSpreadTooWide, out.Reason)
}

func TestChainReportsTradingWindowBeforeSpreadWhenBothFail(t *testing.T) {
	now := time.Date(2026, 7, 31, 20, 0, 0, 0, time.UTC) // outside the window below
	cfg := Config{
		MaxSpreadBPS:   1.0, // tight enough to reject the base signal's spread too
		MaxSlippageBPS: 5.0,
		MaxLatencyMS:   500,
		WindowStart:    "09:30",
		WindowEnd:      "16:00",
		Location:       time.UTC,
	}
	chain := NewChain(cfg, testLogger())

	out := chain.Run(baseSignal(now), now)
	require.False(t, out.Accepted)
	assert.Equal(t, "trading_window", out.Filter)
	assert.Equal(t, core.ReasonOutsideTradingHours, out.Reason)
}

func TestChainAcceptsWhenAllPass(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cfg := Config{
		MaxSpreadBPS:   50.0,
		MaxSlippageBPS: 50.0,
		MaxLatencyMS:   5000,
		WindowStart:    "09:30",
		WindowEnd:      "16:00",
		Location:       time.UTC,
	}
	chain := NewChain(cfg, testLogger())

	out := chain.Run(baseSignal(now), now)
	assert.True(t, out.Accepted)
}
