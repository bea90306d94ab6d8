package world

import (
	"sort"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/trade"
)

// Step runs one tick:
//
//	schedule -> perceive -> markets -> search -> match -> move ->
//	bargain -> clear markets -> forage/regen -> housekeeping
//
// Randomness is drawn from the single seeded generator in this order only.
func (w *World) Step() {
	tick := w.tick
	w.events = nil

	w.phaseSchedule(tick)
	w.refreshQuotes(false)
	inMarket := w.phaseMarkets(tick)
	prefs := w.phaseSearch(tick, inMarket)
	w.phaseMatch(tick, prefs, inMarket)
	w.phaseMove()
	w.phaseBargain(tick)
	w.phaseClearMarkets(tick)
	w.phaseForage(tick)
	w.phaseRegen(tick)

	w.refreshQuotes(false)
	w.checkInvariants(tick)
	w.tick++
	w.stats.Ticks = w.tick
	w.lastDigest = w.StateDigest()

	events := w.events
	w.events = nil
	if w.sink != nil {
		if err := w.sink.WriteTick(w.tickMsg(tick, w.lastDigest, events)); err != nil {
			w.log.Warn("tick sink failed", "tick", tick, "err", err)
		}
	}
	if len(events) > 0 {
		w.log.Debug("tick", "tick", tick, "events", len(events), "mode", string(w.mode))
	}
}

func (w *World) scheduledMode(tick uint64) protocols.Mode {
	if !w.cfg.ScheduleActive() {
		return w.cfg.Mode
	}
	period := uint64(w.cfg.TradeTicks + w.cfg.ForageTicks)
	if tick%period < uint64(w.cfg.TradeTicks) {
		return protocols.ModeTrade
	}
	return protocols.ModeForage
}

// phaseSchedule applies the mode for this tick and expires cooldowns.
// Leaving trade dissolves every pairing; leaving forage drops every claim.
func (w *World) phaseSchedule(tick uint64) {
	for _, a := range w.agents {
		a.PruneCooldowns(tick)
	}
	next := w.scheduledMode(tick)
	if next == w.mode {
		return
	}
	w.log.Debug("mode switch", "tick", tick, "from", string(w.mode), "to", string(next))
	w.mode = next
	if !next.AllowsTrade() {
		for _, a := range w.agents {
			if a.Paired() && a.ID < a.PartnerID {
				w.unpair(tick, a.ID, a.PartnerID, protocol.ReasonModeSwitch)
			}
		}
	}
	if !next.AllowsForage() {
		for _, a := range w.agents {
			if a.Claim != nil || a.Target.Kind == model.TargetResource {
				w.releaseClaim(a)
				a.Target = model.NoTarget()
			}
		}
	}
}

// phaseMarkets refreshes market areas and pulls their participants out of
// bilateral exchange. It returns the participant set.
func (w *World) phaseMarkets(tick uint64) map[int]bool {
	in := map[int]bool{}
	if !w.cfg.MarketEnabled || !w.mode.AllowsTrade() {
		return in
	}
	formed, dissolved := w.markets.Update(tick, w.idx)
	for _, a := range dissolved {
		w.emitEvent(marketEvent(tick, protocol.EventMarketDissolved, a))
	}
	for _, a := range formed {
		w.stats.MarketsFormed++
		w.emitEvent(marketEvent(tick, protocol.EventMarketFormed, a))
	}
	for _, area := range w.markets.Areas() {
		for _, id := range area.Participants {
			in[id] = true
		}
	}
	for _, a := range w.agents {
		if !in[a.ID] {
			continue
		}
		if a.Paired() {
			w.unpair(tick, a.ID, a.PartnerID, protocol.ReasonMarketEntry)
		}
		w.releaseClaim(a)
		a.Target = model.NoTarget()
	}
	return in
}

// committed agents keep their current plan instead of searching.
func (w *World) committed(a *model.Agent) bool {
	return a.Paired() || (w.mode.AllowsForage() && w.liveClaim(a))
}

func (w *World) phaseSearch(tick uint64, inMarket map[int]bool) map[int][]protocols.Preference {
	prefs := map[int][]protocols.Preference{}
	intents := map[int][]protocols.Effect{}
	env := w.env(tick)
	for _, a := range w.agents {
		if inMarket[a.ID] || w.committed(a) {
			continue
		}
		view := w.worldView(a, env, inMarket)
		ids := make([]int, 0, len(view.Neighbors)+1)
		ids = append(ids, a.ID)
		for _, n := range view.Neighbors {
			ids = append(ids, n.ID)
		}
		check := w.guard(tick, w.protos.Search.Name(), ids...)
		prefs[a.ID] = w.protos.Search.BuildPreferences(view, w.rng)
		intents[a.ID] = w.protos.Search.SelectTarget(view, w.rng)
		check()
	}
	ids := make([]int, 0, len(prefs))
	for id := range prefs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		w.checkSearchEffects(tick, id, intents[id])
		w.applyEffects(tick, intents[id])
	}
	return prefs
}

// checkSearchEffects rejects anything but target intents for the searching
// agent itself.
func (w *World) checkSearchEffects(tick uint64, id int, effects []protocols.Effect) {
	for _, e := range effects {
		var owner int
		switch e := e.(type) {
		case protocols.SetTarget:
			owner = e.AgentID
		case protocols.ClaimResource:
			owner = e.AgentID
		case protocols.ClearTarget:
			owner = e.AgentID
		default:
			trade.Violate(trade.InvEffect, tick, "%s returned %T for agent %d", w.protos.Search.Name(), e, id)
		}
		if owner != id {
			trade.Violate(trade.InvEffect, tick, "%s targeted agent %d while searching for %d", w.protos.Search.Name(), owner, id)
		}
	}
}

func (w *World) phaseMatch(tick uint64, prefs map[int][]protocols.Preference, inMarket map[int]bool) {
	if len(prefs) == 0 || !w.mode.AllowsTrade() {
		return
	}
	paired := map[int]int{}
	for _, a := range w.agents {
		if a.Paired() {
			paired[a.ID] = a.PartnerID
		}
	}
	ctx := protocols.MatchContext{
		Env:      w.env(tick),
		Agents:   w.views(inMarket),
		Paired:   paired,
		Cooldown: func(a, b int) bool { return w.onCooldown(a, b, tick) },
		Rng:      w.rng,
	}
	check := w.guard(tick, w.protos.Matching.Name(), w.AgentIDs()...)
	effects := w.protos.Matching.FindMatches(prefs, ctx)
	check()
	w.applyEffects(tick, effects)
}

// phaseBargain negotiates every pair in range, lower id first.
func (w *World) phaseBargain(tick uint64) {
	if !w.mode.AllowsTrade() {
		return
	}
	env := w.env(tick)
	qp := w.quoteParams()
	for _, a := range w.agents {
		if !a.Paired() || a.ID > a.PartnerID {
			continue
		}
		b := w.byID[a.PartnerID]
		if model.Manhattan(a.Pos, b.Pos) > w.cfg.InteractionRadius {
			continue
		}
		for _, x := range []*model.Agent{a, b} {
			if x.QuotesStale {
				x.Quotes = model.ComputeQuotes(x.Utility, x.Lambda, x.Inventory, qp)
				x.QuotesStale = false
			}
		}
		ctx := protocols.NegotiationContext{Env: env, A: protocols.ViewOf(a), B: protocols.ViewOf(b), Rng: w.rng}
		check := w.guard(tick, w.protos.Bargaining.Name(), a.ID, b.ID)
		effects := w.protos.Bargaining.Negotiate(ctx)
		check()
		w.applyEffects(tick, effects)
	}
}

func (w *World) phaseClearMarkets(tick uint64) {
	if !w.cfg.MarketEnabled || !w.mode.AllowsTrade() {
		return
	}
	for _, area := range w.markets.Areas() {
		w.refreshQuotes(false)
		views := make(map[int]protocols.AgentView, len(area.Participants))
		for _, id := range area.Participants {
			if a, ok := w.byID[id]; ok {
				views[id] = protocols.ViewOf(a)
			}
		}
		results := w.markets.Clear(tick, area, views, w.cfg.Regime, w.exec)
		for _, r := range results {
			w.stats.MarketClears++
			if !r.Converged {
				w.stats.NotConverged++
			}
			w.emitEvent(clearEvent(tick, area, r))
			for _, t := range r.Trades {
				w.stats.recordTrade(t)
				w.emitEvent(tradeEvent(t))
			}
		}
	}
}
