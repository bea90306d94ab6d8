package world

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/quant"
)

// Resource is a forageable cell holding one good.
type Resource struct {
	Pos    model.Pos
	Good   model.Good
	Amount decimal.Decimal
	// ClaimedBy is the agent holding the forage claim, or NoAgent.
	ClaimedBy int
	// LastHarvest is valid once Harvested is set.
	LastHarvest uint64
	Harvested   bool
}

// placeResources seeds cells row-major with probability ResourceDensity.
// The good alternates by a fair coin.
func (w *World) placeResources() {
	if w.cfg.ResourceDensity <= 0 || !w.cfg.ResourceMax.IsPositive() {
		return
	}
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			if w.rng.Float64() >= w.cfg.ResourceDensity {
				continue
			}
			g := model.GoodA
			if w.rng.Intn(2) == 1 {
				g = model.GoodB
			}
			p := model.Pos{X: x, Y: y}
			w.resources[p] = &Resource{Pos: p, Good: g, Amount: w.cfg.ResourceMax, ClaimedBy: model.NoAgent}
		}
	}
}

// Resources returns copies of every resource, row-major.
func (w *World) Resources() []Resource {
	out := make([]Resource, 0, len(w.resources))
	for _, p := range sortedPositions(w.resources) {
		out = append(out, *w.resources[p])
	}
	return out
}

func sortedPositions(m map[model.Pos]*Resource) []model.Pos {
	out := make([]model.Pos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (w *World) claim(a *model.Agent, p model.Pos) bool {
	r, ok := w.resources[p]
	if !ok || !r.Amount.IsPositive() {
		return false
	}
	if r.ClaimedBy != model.NoAgent && r.ClaimedBy != a.ID {
		return false
	}
	if a.Claim != nil && *a.Claim != p {
		w.releaseClaim(a)
	}
	r.ClaimedBy = a.ID
	cp := p
	a.Claim = &cp
	return true
}

func (w *World) releaseClaim(a *model.Agent) {
	if a.Claim == nil {
		return
	}
	if r, ok := w.resources[*a.Claim]; ok && r.ClaimedBy == a.ID {
		r.ClaimedBy = model.NoAgent
	}
	a.Claim = nil
}

// liveClaim reports whether a holds a claim on a cell that still has stock.
func (w *World) liveClaim(a *model.Agent) bool {
	if a.Claim == nil {
		return false
	}
	r, ok := w.resources[*a.Claim]
	return ok && r.ClaimedBy == a.ID && r.Amount.IsPositive()
}

// phaseForage harvests for every agent standing on its claimed cell.
func (w *World) phaseForage(tick uint64) {
	if !w.mode.AllowsForage() {
		return
	}
	for _, a := range w.agents {
		if a.Claim == nil || a.Pos != *a.Claim {
			continue
		}
		r, ok := w.resources[*a.Claim]
		if !ok || r.ClaimedBy != a.ID {
			w.releaseClaim(a)
			continue
		}
		take := quant.Q(decimal.Min(w.cfg.ForageRate, r.Amount))
		if take.IsPositive() {
			a.Inventory.Add(r.Good, take)
			a.QuotesStale = true
			r.Amount = r.Amount.Sub(take)
			r.LastHarvest = tick
			r.Harvested = true
			w.stats.Foraged[r.Good] = w.stats.Foraged[r.Good].Add(take)
			w.emitEvent(protocol.Event{
				Tick:   tick,
				Type:   protocol.EventForage,
				Agents: []int{a.ID},
				Forage: &protocol.ForageEvent{Pos: [2]int{r.Pos.X, r.Pos.Y}, Good: r.Good.String(), Amount: take.String()},
			})
		}
		if !r.Amount.IsPositive() {
			w.releaseClaim(a)
			a.Target = model.NoTarget()
		}
	}
}

// phaseRegen grows harvested cells back toward ResourceMax once the regen
// cooldown has passed since the last harvest.
func (w *World) phaseRegen(tick uint64) {
	if !w.cfg.ResourceRegenRate.IsPositive() {
		return
	}
	for _, p := range sortedPositions(w.resources) {
		r := w.resources[p]
		if !r.Harvested || !r.Amount.LessThan(w.cfg.ResourceMax) {
			continue
		}
		if tick < r.LastHarvest+uint64(w.cfg.ResourceRegenCooldown) {
			continue
		}
		r.Amount = decimal.Min(w.cfg.ResourceMax, r.Amount.Add(w.cfg.ResourceRegenRate))
	}
}
