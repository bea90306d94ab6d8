package protocol

// Reason codes carried by PAIR_FORMED and PAIR_DISSOLVED events and by
// ClearTarget effects.
const (
	// Pairing formed.
	ReasonMutualConsent  = "mutual_consent"
	ReasonGreedyFallback = "greedy_fallback"
	ReasonRandomMatch    = "random"
	ReasonCentralPlanner = "central_planner"

	// Pairing dissolved.
	ReasonNoFeasibleTrade   = "no_feasible_trade"
	ReasonResponderRejected = "responder_rejected"
	ReasonModeSwitch        = "mode_switch"
	ReasonMarketEntry       = "market_entry"
	ReasonPartnerMissing    = "partner_missing"

	// Targeting.
	ReasonNoCandidates = "no_candidates"
	ReasonNoPartner    = "no_partner"
)

var knownReasons = map[string]struct{}{
	ReasonMutualConsent:     {},
	ReasonGreedyFallback:    {},
	ReasonRandomMatch:       {},
	ReasonCentralPlanner:    {},
	ReasonNoFeasibleTrade:   {},
	ReasonResponderRejected: {},
	ReasonModeSwitch:        {},
	ReasonMarketEntry:       {},
	ReasonPartnerMissing:    {},
	ReasonNoCandidates:      {},
	ReasonNoPartner:         {},
}

func IsKnownReason(reason string) bool {
	if reason == "" {
		return true
	}
	_, ok := knownReasons[reason]
	return ok
}
