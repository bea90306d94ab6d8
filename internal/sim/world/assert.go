package world

import (
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/trade"
)

// guard snapshots the agents a protocol call can see and, with debug
// assertions on, panics if any of them changed during the call.
func (w *World) guard(tick uint64, what string, ids ...int) func() {
	if !w.cfg.DebugAssertions {
		return func() {}
	}
	before := make(map[int]string, len(ids))
	for _, id := range ids {
		if a, ok := w.byID[id]; ok {
			before[id] = agentDigest(a)
		}
	}
	return func() {
		for id, d := range before {
			if agentDigest(w.byID[id]) != d {
				trade.Violate(trade.InvMutation, tick, "%s mutated agent %d", what, id)
			}
		}
	}
}

// checkInvariants runs the end-of-tick structural checks.
func (w *World) checkInvariants(tick uint64) {
	for _, a := range w.agents {
		if !a.Inventory.NonNegative() {
			trade.Violate(trade.InvNonNegative, tick, "agent %d holds %s", a.ID, a.Inventory)
		}
		if a.Paired() {
			p, ok := w.byID[a.PartnerID]
			if !ok || p.PartnerID != a.ID {
				trade.Violate(trade.InvPairing, tick, "agent %d partner %d is not reciprocal", a.ID, a.PartnerID)
			}
		}
		if a.Claim != nil {
			r, ok := w.resources[*a.Claim]
			if !ok || r.ClaimedBy != a.ID {
				trade.Violate(trade.InvPairing, tick, "agent %d claim on %v not recorded", a.ID, *a.Claim)
			}
		}
		if w.idx.Position(a.ID) != a.Pos {
			trade.Violate(trade.InvSpatial, tick, "agent %d at %v indexed at %v", a.ID, a.Pos, w.idx.Position(a.ID))
		}
	}
	for _, p := range sortedPositions(w.resources) {
		r := w.resources[p]
		if r.ClaimedBy == model.NoAgent {
			continue
		}
		a, ok := w.byID[r.ClaimedBy]
		if !ok || a.Claim == nil || *a.Claim != p {
			trade.Violate(trade.InvPairing, tick, "resource %v claimed by %d without a matching agent claim", p, r.ClaimedBy)
		}
	}
	if w.cfg.DebugAssertions {
		if err := w.idx.Verify(); err != nil {
			trade.Violate(trade.InvSpatial, tick, "%v", err)
		}
	}
}
