package world

import (
	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/trade"
)

// applyEffects is the only place protocol intents touch world state.
// Effects are applied in the order given.
func (w *World) applyEffects(tick uint64, effects []protocols.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case protocols.SetTarget:
			a := w.mustAgent(tick, e.AgentID)
			if a.Claim != nil && (e.Target.Kind != model.TargetResource || e.Target.Pos != *a.Claim) {
				w.releaseClaim(a)
			}
			a.Target = e.Target
		case protocols.ClaimResource:
			a := w.mustAgent(tick, e.AgentID)
			if !w.claim(a, e.Pos) {
				// lost to an earlier claimant this tick
				a.Target = model.NoTarget()
			}
		case protocols.ClearTarget:
			a := w.mustAgent(tick, e.AgentID)
			w.releaseClaim(a)
			a.Target = model.NoTarget()
		case protocols.Pair:
			w.pair(tick, e.A, e.B, e.Reason)
		case protocols.Unpair:
			w.unpair(tick, e.A, e.B, e.Reason)
		case protocols.Trade:
			w.commitTrade(e.Trade)
		default:
			trade.Violate(trade.InvMutation, tick, "unknown effect %T", e)
		}
	}
}

func (w *World) mustAgent(tick uint64, id int) *model.Agent {
	a, ok := w.byID[id]
	if !ok {
		trade.Violate(trade.InvUnknownAgent, tick, "effect names agent %d", id)
	}
	return a
}

func (w *World) pair(tick uint64, x, y int, reason string) {
	a, b := w.mustAgent(tick, x), w.mustAgent(tick, y)
	if a == b || a.Paired() || b.Paired() {
		trade.Violate(trade.InvPairing, tick, "pair %d-%d: partners %d/%d", x, y, a.PartnerID, b.PartnerID)
	}
	a.PartnerID, b.PartnerID = b.ID, a.ID
	a.PairedTick, b.PairedTick = tick, tick
	w.releaseClaim(a)
	w.releaseClaim(b)
	a.Target = model.Target{Kind: model.TargetAgent, AgentID: b.ID, Pos: b.Pos}
	b.Target = model.Target{Kind: model.TargetAgent, AgentID: a.ID, Pos: a.Pos}
	w.stats.PairsFormed[reason]++
	w.emitEvent(protocol.Event{Tick: tick, Type: protocol.EventPairFormed, Agents: sortedPair(x, y), Reason: reason})
}

// unpair dissolves a pairing and puts both sides on cooldown with each other.
func (w *World) unpair(tick uint64, x, y int, reason string) {
	a, b := w.mustAgent(tick, x), w.mustAgent(tick, y)
	if a.PartnerID != b.ID || b.PartnerID != a.ID {
		trade.Violate(trade.InvPairing, tick, "unpair %d-%d: partners %d/%d", x, y, a.PartnerID, b.PartnerID)
	}
	a.PartnerID, b.PartnerID = model.NoAgent, model.NoAgent
	a.Target, b.Target = model.NoTarget(), model.NoTarget()
	if w.cfg.TradeCooldownTicks > 0 {
		until := tick + uint64(w.cfg.TradeCooldownTicks)
		a.Cooldowns[b.ID] = until
		b.Cooldowns[a.ID] = until
	}
	w.stats.PairsDissolved[reason]++
	w.emitEvent(protocol.Event{Tick: tick, Type: protocol.EventPairDissolved, Agents: sortedPair(x, y), Reason: reason})
}

func (w *World) commitTrade(t model.Trade) {
	t = w.exec.Apply(t)
	w.stats.recordTrade(t)
	w.emitEvent(tradeEvent(t))
}

func sortedPair(a, b int) []int {
	if a > b {
		a, b = b, a
	}
	return []int{a, b}
}
