package protocols

import (
	"math"
	"sort"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
)

// Preference is one ranked candidate target.
type Preference struct {
	Target model.Target
	// Score is the ranking key (discounted for scored protocols).
	Score float64
	// Raw is the undiscounted surplus or utility gain.
	Raw      float64
	Distance int
	// PairType is the best exchange pair for agent targets.
	PairType model.PairType
}

func (p Preference) IsAgent() bool    { return p.Target.Kind == model.TargetAgent }
func (p Preference) IsResource() bool { return p.Target.Kind == model.TargetResource }

// PreferenceLess orders by score descending, agents before resources, then
// target id (or position) ascending.
func PreferenceLess(a, b Preference) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Target.Kind != b.Target.Kind {
		return a.Target.Kind < b.Target.Kind
	}
	if a.Target.Kind == model.TargetAgent {
		return a.Target.AgentID < b.Target.AgentID
	}
	return a.Target.Pos.Less(b.Target.Pos)
}

// SortPreferences sorts prefs in place with PreferenceLess.
func SortPreferences(prefs []Preference) {
	sort.SliceStable(prefs, func(i, j int) bool { return PreferenceLess(prefs[i], prefs[j]) })
}

// AgentPreferences filters prefs to agent targets, preserving order.
func AgentPreferences(prefs []Preference) []Preference {
	var out []Preference
	for _, p := range prefs {
		if p.IsAgent() {
			out = append(out, p)
		}
	}
	return out
}

// BestResource returns the highest ranked resource preference.
func BestResource(prefs []Preference) (Preference, bool) {
	for _, p := range prefs {
		if p.IsResource() {
			return p, true
		}
	}
	return Preference{}, false
}

// Discount scales raw by beta^distance.
func Discount(raw, beta float64, distance int) float64 {
	return raw * math.Pow(beta, float64(distance))
}

// TargetEffects turns the top preference into target intents.
func TargetEffects(self AgentView, prefs []Preference) []Effect {
	if len(prefs) == 0 {
		return []Effect{ClearTarget{AgentID: self.ID, Reason: protocol.ReasonNoCandidates}}
	}
	top := prefs[0]
	effects := []Effect{SetTarget{AgentID: self.ID, Target: top.Target}}
	if top.IsResource() {
		effects = append(effects, ClaimResource{AgentID: self.ID, Pos: top.Target.Pos})
	}
	return effects
}
