package paper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeguard/internal/core"
	"tradeguard/internal/logging"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	cfg := DefaultConfig()
	ex, err := New(cfg, logging.New("ERROR"))
	require.NoError(t, err)
	t.Cleanup(ex.Close)
	return ex
}

func TestMarketOrderFillsImmediately(t *testing.T) {
	ex := newTestExchange(t)
	ex.PublishSnapshot("AAPL", core.MarketSnapshot{Last: decimal.NewFromFloat(100), AsOf: time.Now()})

	result, err := ex.SubmitOrder(context.Background(), core.OrderSpec{Symbol: "AAPL", Side: core.Buy, Qty: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	q, err := ex.QueryOrder(context.Background(), result.ExchangeOrderID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFilled, q.Status)
	assert.True(t, q.QtyFilled.Equal(decimal.NewFromInt(5)))
}

func TestLimitOrderRestsUntilTriggered(t *testing.T) {
	ex := newTestExchange(t)
	result, err := ex.SubmitOrder(context.Background(), core.OrderSpec{
		Symbol: "AAPL", Side: core.Sell, Qty: decimal.NewFromInt(5), LimitPrice: decimal.NewFromFloat(98), ReduceOnly: true,
	})
	require.NoError(t, err)

	q, err := ex.QueryOrder(context.Background(), result.ExchangeOrderID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, q.Status)

	assert.True(t, ex.TriggerStopLoss(result.ExchangeOrderID))

	q, err = ex.QueryOrder(context.Background(), result.ExchangeOrderID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFilled, q.Status)
}

func TestCancelOrderStopsRestingOrder(t *testing.T) {
	ex := newTestExchange(t)
	result, err := ex.SubmitOrder(context.Background(), core.OrderSpec{
		Symbol: "AAPL", Side: core.Sell, Qty: decimal.NewFromInt(5), LimitPrice: decimal.NewFromFloat(98),
	})
	require.NoError(t, err)

	require.NoError(t, ex.CancelOrder(context.Background(), result.ExchangeOrderID))

	q, err := ex.QueryOrder(context.Background(), result.ExchangeOrderID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCanceled, q.Status)
}

func TestFillStreamReceivesMarketOrderFill(t *testing.T) {
	ex := newTestExchange(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fills := make(chan core.FillEvent, 1)
	require.NoError(t, ex.StartFillStream(ctx, func(f core.FillEvent) { fills <- f }))
	time.Sleep(50 * time.Millisecond) // let the websocket handshake complete

	result, err := ex.SubmitOrder(context.Background(), core.OrderSpec{Symbol: "AAPL", Side: core.Buy, Qty: decimal.NewFromInt(3)})
	require.NoError(t, err)

	select {
	case f := <-fills:
		assert.Equal(t, result.ExchangeOrderID, f.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fill over push stream")
	}
}

func TestSnapshotStreamFiltersBySymbol(t *testing.T) {
	ex := newTestExchange(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps := make(chan core.MarketSnapshot, 1)
	require.NoError(t, ex.StartSnapshotStream(ctx, []string{"AAPL"}, func(symbol string, snap core.MarketSnapshot) {
		if symbol == "AAPL" {
			snaps <- snap
		}
	}))
	time.Sleep(50 * time.Millisecond)

	ex.PublishSnapshot("MSFT", core.MarketSnapshot{Last: decimal.NewFromFloat(300)})
	ex.PublishSnapshot("AAPL", core.MarketSnapshot{Last: decimal.NewFromFloat(150)})

	select {
	case s := <-snaps:
		assert.True(t, s.Last.Equal(decimal.NewFromFloat(150)))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot over push stream")
	}
}

func TestSubmitOrderRetriesThroughSimulatedFaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FaultRate = 0.5
	cfg.MaxRetries = 10
	ex, err := New(cfg, logging.New("ERROR"))
	require.NoError(t, err)
	defer ex.Close()

	_, err = ex.SubmitOrder(context.Background(), core.OrderSpec{Symbol: "AAPL", Side: core.Buy, Qty: decimal.NewFromInt(1)})
	assert.NoError(t, err)
}
