package paper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"tradeguard/internal/core"
	apperrors "tradeguard/pkg/errors"
)

// errSimulatedFault is what maybeFault returns when Config.FaultRate
// rolls a transient failure; the retry/circuit-breaker pipelines handle it
// and the adapter translates it to apperrors at the boundary.
var errSimulatedFault = errors.New("paper exchange: simulated transient fault")

// Config tunes the resilience wrapper around the paper venue: a rate
// limiter, a retry policy, and a circuit breaker.
type Config struct {
	RateLimit             rate.Limit
	RateBurst             int
	MaxRetries            int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	BreakerFailures       int
	BreakerWindow         int
	BreakerOpenDelay      time.Duration
	FaultRate             float64 // [0,1): fraction of calls that simulate a transient fault
}

// DefaultConfig returns a 25 req/s rate limit and a 5-of-10 circuit
// breaker ratio, tuned conservatively for a simulated venue.
func DefaultConfig() Config {
	return Config{
		RateLimit:        rate.Limit(25),
		RateBurst:        30,
		MaxRetries:       3,
		RetryBaseDelay:   100 * time.Millisecond,
		RetryMaxDelay:    2 * time.Second,
		BreakerFailures:  5,
		BreakerWindow:    10,
		BreakerOpenDelay: 10 * time.Second,
		FaultRate:        0,
	}
}

// Exchange is the paper-trading core.IExchange adapter: a deterministic
// in-memory book behind a rate limiter and a failsafe retry/circuit-breaker
// pipeline, with fills and snapshots published over a websocket push
// server so StartFillStream/StartSnapshotStream have a genuine async
// source for the position monitor to consume.
type Exchange struct {
	cfg     Config
	book    *book
	limiter *rate.Limiter
	logger  core.ILogger
	server  *pushServer

	submitPipeline failsafe.Executor[core.SubmitResult]
	cancelPipeline failsafe.Executor[bool]
	queryPipeline  failsafe.Executor[core.QueryResult]
}

// New builds a paper exchange and starts its push server. Close must be
// called to release the listener.
func New(cfg Config, logger core.ILogger) (*Exchange, error) {
	srv, err := newPushServer(logger)
	if err != nil {
		return nil, fmt.Errorf("start paper exchange push server: %w", err)
	}

	b := newBook()
	b.onFill = func(f core.FillEvent) { srv.broadcast(pushMessage{Kind: "fill", Fill: &f}) }

	ex := &Exchange{
		cfg:     cfg,
		book:    b,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logger.WithField("component", "paper_exchange"),
		server:  srv,
	}

	submitRetry := retrypolicy.NewBuilder[core.SubmitResult]().
		HandleIf(func(_ core.SubmitResult, err error) bool { return errors.Is(err, errSimulatedFault) }).
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	submitBreaker := circuitbreaker.NewBuilder[core.SubmitResult]().
		HandleIf(func(_ core.SubmitResult, err error) bool { return errors.Is(err, errSimulatedFault) }).
		WithFailureThresholdRatio(uint(cfg.BreakerFailures), uint(cfg.BreakerWindow)).
		WithDelay(cfg.BreakerOpenDelay).
		Build()
	ex.submitPipeline = failsafe.With[core.SubmitResult](submitRetry, submitBreaker)

	cancelRetry := retrypolicy.NewBuilder[bool]().
		HandleIf(func(_ bool, err error) bool { return errors.Is(err, errSimulatedFault) }).
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	cancelBreaker := circuitbreaker.NewBuilder[bool]().
		HandleIf(func(_ bool, err error) bool { return errors.Is(err, errSimulatedFault) }).
		WithFailureThresholdRatio(uint(cfg.BreakerFailures), uint(cfg.BreakerWindow)).
		WithDelay(cfg.BreakerOpenDelay).
		Build()
	ex.cancelPipeline = failsafe.With[bool](cancelRetry, cancelBreaker)

	queryRetry := retrypolicy.NewBuilder[core.QueryResult]().
		HandleIf(func(_ core.QueryResult, err error) bool { return errors.Is(err, errSimulatedFault) }).
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	queryBreaker := circuitbreaker.NewBuilder[core.QueryResult]().
		HandleIf(func(_ core.QueryResult, err error) bool { return errors.Is(err, errSimulatedFault) }).
		WithFailureThresholdRatio(uint(cfg.BreakerFailures), uint(cfg.BreakerWindow)).
		WithDelay(cfg.BreakerOpenDelay).
		Build()
	ex.queryPipeline = failsafe.With[core.QueryResult](queryRetry, queryBreaker)

	return ex, nil
}

// Close releases the push server's listener and connections.
func (e *Exchange) Close() { e.server.close() }

// PublishSnapshot seeds a price and broadcasts it as a market snapshot —
// the paper venue's stand-in for a real market-data feed.
func (e *Exchange) PublishSnapshot(symbol string, snap core.MarketSnapshot) {
	e.book.SetPrice(symbol, snap.Last)
	e.server.broadcast(pushMessage{Kind: "snapshot", Symbol: symbol, Snapshot: &snap})
}

func (e *Exchange) maybeFault() error {
	if e.cfg.FaultRate > 0 && rand.Float64() < e.cfg.FaultRate {
		return errSimulatedFault
	}
	return nil
}

func (e *Exchange) SubmitOrder(ctx context.Context, spec core.OrderSpec) (core.SubmitResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return core.SubmitResult{}, fmt.Errorf("%w: %w", apperrors.ErrExchangeTimeout, err)
	}
	result, err := e.submitPipeline.GetWithExecution(func(exec failsafe.Execution[core.SubmitResult]) (core.SubmitResult, error) {
		if ferr := e.maybeFault(); ferr != nil {
			return core.SubmitResult{}, ferr
		}
		return e.book.submit(spec), nil
	})
	if err != nil {
		return core.SubmitResult{}, translateFault(err)
	}
	return result, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrExchangeTimeout, err)
	}
	_, err := e.cancelPipeline.GetWithExecution(func(exec failsafe.Execution[bool]) (bool, error) {
		if ferr := e.maybeFault(); ferr != nil {
			return false, ferr
		}
		return e.book.cancel(exchangeOrderID), nil
	})
	if err != nil {
		return translateFault(err)
	}
	return nil
}

func (e *Exchange) QueryOrder(ctx context.Context, exchangeOrderID string) (core.QueryResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return core.QueryResult{}, fmt.Errorf("%w: %w", apperrors.ErrExchangeTimeout, err)
	}
	result, err := e.queryPipeline.GetWithExecution(func(exec failsafe.Execution[core.QueryResult]) (core.QueryResult, error) {
		if ferr := e.maybeFault(); ferr != nil {
			return core.QueryResult{}, ferr
		}
		res, ok := e.book.query(exchangeOrderID)
		if !ok {
			return core.QueryResult{}, apperrors.ErrOrderNotFound
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			return core.QueryResult{}, err
		}
		return core.QueryResult{}, translateFault(err)
	}
	return result, nil
}

// TriggerStopLoss fills a resting stop-loss/reduce-only order immediately,
// simulating the venue's own trigger-price matching. ordermgr decides when
// the trigger condition is met; the paper venue only knows how to execute
// once told.
func (e *Exchange) TriggerStopLoss(exchangeOrderID string) bool {
	fill, ok := e.book.trigger(exchangeOrderID)
	if !ok {
		return false
	}
	e.server.broadcast(pushMessage{Kind: "fill", Fill: &fill})
	return true
}

func translateFault(err error) error {
	if errors.Is(err, errSimulatedFault) {
		return fmt.Errorf("%w: %w", apperrors.ErrExchangeUnavailable, err)
	}
	return err
}

var _ core.IExchange = (*Exchange)(nil)
