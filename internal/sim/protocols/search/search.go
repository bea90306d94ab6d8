// Package search implements target-search protocols: given one agent's
// world view, rank trade partners and forage sites.
package search

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
)

const (
	NameDistanceDiscounted = "distance_discounted"
	NameMyopic             = "myopic"
	NameRandom             = "random"
)

// Discounted scores every visible candidate by raw surplus × β^distance.
// MaxDistance < 0 means no limit beyond the vision radius.
type Discounted struct {
	name        string
	MaxDistance int
}

func NewDistanceDiscounted(protocols.Params) (protocols.Search, error) {
	return &Discounted{name: NameDistanceDiscounted, MaxDistance: -1}, nil
}

func NewMyopic(protocols.Params) (protocols.Search, error) {
	return &Discounted{name: NameMyopic, MaxDistance: 1}, nil
}

func (s *Discounted) Name() string { return s.name }

func (s *Discounted) BuildPreferences(view protocols.WorldView, _ *rand.Rand) []protocols.Preference {
	var prefs []protocols.Preference
	for _, n := range eligibleNeighbors(view) {
		if s.MaxDistance >= 0 && n.Distance > s.MaxDistance {
			continue
		}
		surplus, pt, ok := BestSurplus(view.Self, n.AgentView, view.Regime)
		if !ok {
			continue
		}
		prefs = append(prefs, protocols.Preference{
			Target:   model.Target{Kind: model.TargetAgent, AgentID: n.ID, Pos: n.Pos},
			Score:    protocols.Discount(surplus, view.Beta, n.Distance),
			Raw:      surplus,
			Distance: n.Distance,
			PairType: pt,
		})
	}
	for _, r := range eligibleResources(view) {
		if s.MaxDistance >= 0 && r.Distance > s.MaxDistance {
			continue
		}
		gain := ForageGain(view.Self, r, view.ForageRate)
		if gain <= 0 {
			continue
		}
		prefs = append(prefs, protocols.Preference{
			Target:   model.Target{Kind: model.TargetResource, AgentID: model.NoAgent, Pos: r.Pos},
			Score:    protocols.Discount(gain, view.Beta, r.Distance),
			Raw:      gain,
			Distance: r.Distance,
		})
	}
	protocols.SortPreferences(prefs)
	return prefs
}

func (s *Discounted) SelectTarget(view protocols.WorldView, rng *rand.Rand) []protocols.Effect {
	return protocols.TargetEffects(view.Self, s.BuildPreferences(view, rng))
}

// Random shuffles the eligible candidates with the supplied generator and
// does no scoring.
type Random struct{}

func NewRandom(protocols.Params) (protocols.Search, error) { return Random{}, nil }

func (Random) Name() string { return NameRandom }

func (Random) BuildPreferences(view protocols.WorldView, rng *rand.Rand) []protocols.Preference {
	var prefs []protocols.Preference
	for _, n := range eligibleNeighbors(view) {
		_, pt, _ := BestSurplus(view.Self, n.AgentView, view.Regime)
		prefs = append(prefs, protocols.Preference{
			Target:   model.Target{Kind: model.TargetAgent, AgentID: n.ID, Pos: n.Pos},
			Distance: n.Distance,
			PairType: pt,
		})
	}
	for _, r := range eligibleResources(view) {
		prefs = append(prefs, protocols.Preference{
			Target:   model.Target{Kind: model.TargetResource, AgentID: model.NoAgent, Pos: r.Pos},
			Distance: r.Distance,
		})
	}
	if rng != nil {
		rng.Shuffle(len(prefs), func(i, j int) { prefs[i], prefs[j] = prefs[j], prefs[i] })
	}
	return prefs
}

func (r Random) SelectTarget(view protocols.WorldView, rng *rand.Rand) []protocols.Effect {
	return protocols.TargetEffects(view.Self, r.BuildPreferences(view, rng))
}

func eligibleNeighbors(view protocols.WorldView) []protocols.NeighborView {
	if !view.Mode.AllowsTrade() {
		return nil
	}
	out := make([]protocols.NeighborView, 0, len(view.Neighbors))
	for _, n := range view.Neighbors {
		if n.OnCooldown || n.PartnerID != model.NoAgent {
			continue
		}
		out = append(out, n)
	}
	return out
}

func eligibleResources(view protocols.WorldView) []protocols.ResourceView {
	if !view.Mode.AllowsForage() {
		return nil
	}
	out := make([]protocols.ResourceView, 0, len(view.Resources))
	for _, r := range view.Resources {
		if r.ClaimedByOther || !r.Amount.IsPositive() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// BestSurplus returns the largest positive quote overlap between self and
// other across open pairs and both directions.
func BestSurplus(self, other protocols.AgentView, regime model.Regime) (float64, model.PairType, bool) {
	best := 0.0
	bestPair := model.PairAB
	found := false
	for _, pt := range regime.PairTypes() {
		// self sells to other, then other sells to self
		for _, o := range []float64{
			model.Overlap(self.Quotes, other.Quotes, pt),
			model.Overlap(other.Quotes, self.Quotes, pt),
		} {
			if o > 0 && o > best {
				best, bestPair, found = o, pt, true
			}
		}
	}
	return best, bestPair, found
}

// ForageGain is the utility gained by harvesting one tick at r.
func ForageGain(self protocols.AgentView, r protocols.ResourceView, rate decimal.Decimal) float64 {
	take := decimal.Min(rate, r.Amount)
	if !take.IsPositive() {
		return 0
	}
	after := self.Inventory
	after.Add(r.Good, take)
	return self.TotalUtility(after) - self.TotalUtility(self.Inventory)
}
