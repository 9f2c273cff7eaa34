// Package apperrors holds the sentinel errors for faults the admission
// pipeline does not model as observable outcomes (see core.RejectReason for
// those). Every fault error here belongs to one of four kinds: transient,
// protocol, safety, or fatal; the store/domain lookup errors at the end
// form a separate group.
package apperrors

import "errors"

// Transient faults: retried by reconciliation, never corrupt local state.
var (
	ErrExchangeTimeout     = errors.New("exchange call timed out")
	ErrExchangeUnavailable = errors.New("exchange unavailable")
)

// Protocol faults: no position change. An entry the exchange rejects is
// never persisted; an inconsistent fill is refused and raises an
// incident, and the order's status is left as it was.
var (
	ErrExchangeRejected = errors.New("exchange rejected order")
	ErrInconsistentFill = errors.New("fill exceeds requested quantity")
)

// Safety faults: trigger panic-close and an operator-visible incident.
var (
	ErrStopLossAttachFailed = errors.New("stop-loss order attach failed")
)

// Fatal faults: the execution loop halts after attempting a graceful
// shutdown of all open orders.
var (
	ErrStoreCorrupted   = errors.New("persistence store corrupted")
	ErrStoreUnreachable = errors.New("lost connection to persistence store")
)

// Store/domain lookup errors, used internally by internal/store and the
// packages that call it.
var (
	ErrVANotFound       = errors.New("virtual account not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrSymbolOwned      = errors.New("symbol already owned by another virtual account")
	ErrReconcileTimeout = errors.New("reconciliation timeout: exchange unreachable across multiple ticks")
)
