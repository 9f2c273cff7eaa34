package core

// RejectReason is an exhaustive enum of admission rejections. These are
// observable outcomes, never Go errors, so every gate in the pipeline
// returns one of these instead of an error value.
type RejectReason string

const (
	ReasonSymbolConflict      RejectReason = "SYMBOL_CONFLICT"
	ReasonInCooldown          RejectReason = "IN_COOLDOWN"
	ReasonKillSwitchEngaged   RejectReason = "KILL_SWITCH_ENGAGED"
	ReasonThrottled           RejectReason = "THROTTLED"
	ReasonSpreadTooWide       RejectReason = "SPREAD_TOO_WIDE"
	ReasonSlippageTooHigh     RejectReason = "SLIPPAGE_TOO_HIGH"
	ReasonLatencyTooHigh      RejectReason = "LATENCY_TOO_HIGH"
	ReasonOutsideTradingHours RejectReason = "OUTSIDE_TRADING_WINDOW"
	ReasonInvalidMarket       RejectReason = "INVALID_MARKET"
)

// RouteOutcome is the result of router.Router.Route.
type RouteOutcome struct {
	Accepted bool
	Reason   RejectReason // valid only when Accepted is false
}

// AdmitOutcome is the result of Governor.Admit.
type AdmitOutcome struct {
	Accepted bool
	Reason   RejectReason // valid only when Accepted is false
}

// FilterOutcome is the result of running a signal through the filter chain.
type FilterOutcome struct {
	Accepted bool
	Reason   RejectReason // valid only when Accepted is false
	Filter   string        // name of the filter that rejected, empty if accepted
}

// Accepted/Rejected constructors keep call sites terse and uniform.

func Accepted() RouteOutcome { return RouteOutcome{Accepted: true} }

func RouteRejected(reason RejectReason) RouteOutcome {
	return RouteOutcome{Accepted: false, Reason: reason}
}

func AdmitAccepted() AdmitOutcome { return AdmitOutcome{Accepted: true} }

func AdmitRejected(reason RejectReason) AdmitOutcome {
	return AdmitOutcome{Accepted: false, Reason: reason}
}

func FilterAccepted() FilterOutcome { return FilterOutcome{Accepted: true} }

func FilterRejected(filter string, reason RejectReason) FilterOutcome {
	return FilterOutcome{Accepted: false, Filter: filter, Reason: reason}
}
