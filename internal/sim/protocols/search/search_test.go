package search

import (
	"math/rand"
	"reflect"
	"testing"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/utility"
)

func agentView(t *testing.T, id int, pos model.Pos, a, b int64) protocols.AgentView {
	t.Helper()
	u, err := utility.New(utility.Spec{Type: "ces", Params: map[string]float64{"rho": -0.5}})
	if err != nil {
		t.Fatalf("utility: %v", err)
	}
	inv := model.NewInventory(quant.Int(a), quant.Int(b), quant.Zero)
	return protocols.AgentView{
		ID:        id,
		Pos:       pos,
		Inventory: inv,
		Utility:   u,
		PartnerID: model.NoAgent,
		Quotes:    model.ComputeQuotes(u, 0, inv, model.QuoteParams{Epsilon: 1e-9, Regime: model.RegimeBarter}),
	}
}

func neighbor(self, other protocols.AgentView) protocols.NeighborView {
	return protocols.NeighborView{AgentView: other, Distance: model.Manhattan(self.Pos, other.Pos)}
}

func baseView(self protocols.AgentView, mode protocols.Mode) protocols.WorldView {
	return protocols.WorldView{
		Env: protocols.Env{
			Beta:       0.9,
			Epsilon:    1e-9,
			Regime:     model.RegimeBarter,
			Mode:       mode,
			ForageRate: quant.Int(1),
		},
		Self: self,
	}
}

func TestDistanceDiscounted_RanksByDiscountedSurplus(t *testing.T) {
	self := agentView(t, 0, model.Pos{X: 0, Y: 0}, 8, 2)
	near := agentView(t, 5, model.Pos{X: 1, Y: 0}, 2, 8)
	far := agentView(t, 2, model.Pos{X: 4, Y: 0}, 2, 8)
	view := baseView(self, protocols.ModeTrade)
	view.Neighbors = []protocols.NeighborView{neighbor(self, far), neighbor(self, near)}

	s, _ := NewDistanceDiscounted(nil)
	prefs := s.BuildPreferences(view, nil)
	if len(prefs) != 2 {
		t.Fatalf("expected 2 prefs, got %d", len(prefs))
	}
	if prefs[0].Target.AgentID != 5 || prefs[1].Target.AgentID != 2 {
		t.Fatalf("expected near partner first, got %+v", prefs)
	}
	if prefs[0].Raw != prefs[1].Raw || prefs[0].Score <= prefs[1].Score {
		t.Fatalf("expected equal raw surplus and discounted scores, got %+v", prefs)
	}
}

func TestDistanceDiscounted_TieBreaksByID(t *testing.T) {
	self := agentView(t, 0, model.Pos{X: 2, Y: 2}, 8, 2)
	a := agentView(t, 9, model.Pos{X: 3, Y: 2}, 2, 8)
	b := agentView(t, 4, model.Pos{X: 1, Y: 2}, 2, 8)
	view := baseView(self, protocols.ModeTrade)
	view.Neighbors = []protocols.NeighborView{neighbor(self, a), neighbor(self, b)}

	s, _ := NewDistanceDiscounted(nil)
	prefs := s.BuildPreferences(view, nil)
	if len(prefs) != 2 || prefs[0].Target.AgentID != 4 {
		t.Fatalf("expected id 4 first on tie, got %+v", prefs)
	}
}

func TestMyopic_IgnoresDistantCandidates(t *testing.T) {
	self := agentView(t, 0, model.Pos{X: 0, Y: 0}, 8, 2)
	far := agentView(t, 1, model.Pos{X: 3, Y: 0}, 2, 8)
	view := baseView(self, protocols.ModeTrade)
	view.Neighbors = []protocols.NeighborView{neighbor(self, far)}

	s, _ := NewMyopic(nil)
	if prefs := s.BuildPreferences(view, nil); len(prefs) != 0 {
		t.Fatalf("expected no prefs, got %+v", prefs)
	}
	effects := s.SelectTarget(view, nil)
	if len(effects) != 1 {
		t.Fatalf("expected one effect, got %#v", effects)
	}
	if _, ok := effects[0].(protocols.ClearTarget); !ok {
		t.Fatalf("expected ClearTarget, got %#v", effects[0])
	}
}

func TestSearch_SkipsCooldownAndPaired(t *testing.T) {
	self := agentView(t, 0, model.Pos{}, 8, 2)
	cool := neighbor(self, agentView(t, 1, model.Pos{X: 1}, 2, 8))
	cool.OnCooldown = true
	paired := neighbor(self, agentView(t, 2, model.Pos{Y: 1}, 2, 8))
	paired.PartnerID = 7
	view := baseView(self, protocols.ModeBoth)
	view.Neighbors = []protocols.NeighborView{cool, paired}

	s, _ := NewDistanceDiscounted(nil)
	if prefs := s.BuildPreferences(view, nil); len(prefs) != 0 {
		t.Fatalf("expected no eligible partners, got %+v", prefs)
	}
}

func TestSearch_ForageTargetsClaimResource(t *testing.T) {
	self := agentView(t, 0, model.Pos{}, 8, 2)
	view := baseView(self, protocols.ModeForage)
	view.Neighbors = []protocols.NeighborView{neighbor(self, agentView(t, 1, model.Pos{X: 1}, 2, 8))}
	view.Resources = []protocols.ResourceView{
		{Pos: model.Pos{X: 0, Y: 2}, Good: model.GoodB, Amount: quant.Int(3), Distance: 2},
		{Pos: model.Pos{X: 1, Y: 0}, Good: model.GoodB, Amount: quant.Int(3), Distance: 1, ClaimedByOther: true},
	}
	s, _ := NewDistanceDiscounted(nil)
	effects := s.SelectTarget(view, nil)
	if len(effects) != 2 {
		t.Fatalf("expected target and claim, got %#v", effects)
	}
	set, ok := effects[0].(protocols.SetTarget)
	if !ok || set.Target.Kind != model.TargetResource || set.Target.Pos != (model.Pos{X: 0, Y: 2}) {
		t.Fatalf("unexpected target %#v", effects[0])
	}
	if claim, ok := effects[1].(protocols.ClaimResource); !ok || claim.Pos != set.Target.Pos {
		t.Fatalf("unexpected claim %#v", effects[1])
	}
}

func TestRandom_DeterministicForSeed(t *testing.T) {
	self := agentView(t, 0, model.Pos{}, 8, 2)
	view := baseView(self, protocols.ModeTrade)
	for i := 1; i <= 8; i++ {
		view.Neighbors = append(view.Neighbors, neighbor(self, agentView(t, i, model.Pos{X: i}, 2, 8)))
	}
	s, _ := NewRandom(nil)
	ids := func(seed int64) []int {
		var out []int
		for _, p := range s.BuildPreferences(view, rand.New(rand.NewSource(seed))) {
			out = append(out, p.Target.AgentID)
		}
		return out
	}
	a, b := ids(7), ids(7)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed differs: %v vs %v", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("expected all 8 candidates, got %v", a)
	}
}

func TestBestSurplus_NoOverlap(t *testing.T) {
	a := agentView(t, 0, model.Pos{}, 5, 5)
	b := agentView(t, 1, model.Pos{}, 5, 5)
	if _, _, ok := BestSurplus(a, b, model.RegimeBarter); ok {
		t.Fatalf("identical agents should have no overlap")
	}
}
