package world

import (
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
)

func (w *World) env(tick uint64) protocols.Env {
	return protocols.Env{
		Tick:              tick,
		Beta:              w.cfg.Beta,
		Epsilon:           w.cfg.Epsilon,
		Regime:            w.cfg.Regime,
		Mode:              w.mode,
		VisionRadius:      w.cfg.VisionRadius,
		InteractionRadius: w.cfg.InteractionRadius,
		ForageRate:        w.cfg.ForageRate,
	}
}

func (w *World) quoteParams() model.QuoteParams {
	return model.QuoteParams{Spread: w.cfg.Spread, Epsilon: w.cfg.Epsilon, Regime: w.cfg.Regime}
}

// refreshQuotes recomputes stale quotes, or all of them when force is set.
func (w *World) refreshQuotes(force bool) {
	qp := w.quoteParams()
	for _, a := range w.agents {
		if force || a.QuotesStale {
			a.Quotes = model.ComputeQuotes(a.Utility, a.Lambda, a.Inventory, qp)
			a.QuotesStale = false
		}
	}
}

func (w *World) onCooldown(a, b int, tick uint64) bool {
	x, y := w.byID[a], w.byID[b]
	if x == nil || y == nil {
		return false
	}
	return x.OnCooldown(b, tick) || y.OnCooldown(a, tick)
}

// worldView is agent a's snapshot: visible agents outside markets and
// resources in vision range.
func (w *World) worldView(a *model.Agent, env protocols.Env, excluded map[int]bool) protocols.WorldView {
	view := protocols.WorldView{Env: env, Self: protocols.ViewOf(a)}
	for _, id := range w.idx.QueryRadius(a.Pos, w.cfg.VisionRadius, a.ID) {
		if excluded[id] {
			continue
		}
		n := w.byID[id]
		view.Neighbors = append(view.Neighbors, protocols.NeighborView{
			AgentView:  protocols.ViewOf(n),
			Distance:   model.Manhattan(a.Pos, n.Pos),
			OnCooldown: w.onCooldown(a.ID, id, env.Tick),
		})
	}
	if len(w.resources) == 0 {
		return view
	}
	for _, p := range sortedPositions(w.resources) {
		d := model.Manhattan(a.Pos, p)
		if d > w.cfg.VisionRadius {
			continue
		}
		r := w.resources[p]
		if !r.Amount.IsPositive() {
			continue
		}
		view.Resources = append(view.Resources, protocols.ResourceView{
			Pos:            p,
			Good:           r.Good,
			Amount:         r.Amount,
			Distance:       d,
			ClaimedByOther: r.ClaimedBy != model.NoAgent && r.ClaimedBy != a.ID,
		})
	}
	return view
}

// views returns protocol views of every agent not in excluded.
func (w *World) views(excluded map[int]bool) map[int]protocols.AgentView {
	out := make(map[int]protocols.AgentView, len(w.agents))
	for _, a := range w.agents {
		if !excluded[a.ID] {
			out[a.ID] = protocols.ViewOf(a)
		}
	}
	return out
}
