package matching

import (
	"math/rand"
	"reflect"
	"testing"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/utility"
)

func agentPref(id int, score float64) protocols.Preference {
	return protocols.Preference{Target: model.Target{Kind: model.TargetAgent, AgentID: id}, Score: score}
}

func resourcePref(p model.Pos, score float64) protocols.Preference {
	return protocols.Preference{Target: model.Target{Kind: model.TargetResource, AgentID: model.NoAgent, Pos: p}, Score: score}
}

func view(t *testing.T, id int, pos model.Pos, a, b int64) protocols.AgentView {
	t.Helper()
	u, err := utility.New(utility.Spec{Type: "ces", Params: map[string]float64{"rho": -0.5}})
	if err != nil {
		t.Fatalf("utility: %v", err)
	}
	inv := model.NewInventory(quant.Int(a), quant.Int(b), quant.Zero)
	return protocols.AgentView{
		ID: id, Pos: pos, Inventory: inv, Utility: u, PartnerID: model.NoAgent,
		Quotes: model.ComputeQuotes(u, 0, inv, model.QuoteParams{Epsilon: 1e-9, Regime: model.RegimeBarter}),
	}
}

func matchContext(agents map[int]protocols.AgentView, mode protocols.Mode) protocols.MatchContext {
	return protocols.MatchContext{
		Env:    protocols.Env{Beta: 0.9, Regime: model.RegimeBarter, Mode: mode},
		Agents: agents,
		Paired: map[int]int{},
		Rng:    rand.New(rand.NewSource(1)),
	}
}

func simpleAgents(ids ...int) map[int]protocols.AgentView {
	out := map[int]protocols.AgentView{}
	for _, id := range ids {
		out[id] = protocols.AgentView{ID: id, PartnerID: model.NoAgent}
	}
	return out
}

func pairsOf(t *testing.T, effects []protocols.Effect) []protocols.Pair {
	t.Helper()
	var out []protocols.Pair
	seen := map[int]bool{}
	for _, e := range effects {
		p, ok := e.(protocols.Pair)
		if !ok {
			continue
		}
		if p.A >= p.B {
			t.Fatalf("pair ids not ordered: %+v", p)
		}
		if seen[p.A] || seen[p.B] {
			t.Fatalf("agent booked twice: %+v in %#v", p, effects)
		}
		seen[p.A], seen[p.B] = true, true
		out = append(out, p)
	}
	return out
}

func TestThreePass_MutualThenGreedy(t *testing.T) {
	prefs := map[int][]protocols.Preference{
		0: {agentPref(1, 5)},
		1: {agentPref(0, 5)},
		2: {agentPref(1, 9), agentPref(3, 1)},
		3: {agentPref(2, 1)},
	}
	tp, _ := NewThreePass(nil)
	pairs := pairsOf(t, tp.FindMatches(prefs, matchContext(simpleAgents(0, 1, 2, 3), protocols.ModeTrade)))
	want := []protocols.Pair{
		{A: 0, B: 1, Reason: protocol.ReasonMutualConsent},
		{A: 2, B: 3, Reason: protocol.ReasonGreedyFallback},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs=%+v want %+v", pairs, want)
	}
}

func TestThreePass_ConsentRequiresAgentAtTop(t *testing.T) {
	site := model.Pos{X: 4, Y: 4}
	cases := []struct {
		name  string
		prefs map[int][]protocols.Preference
	}{
		{"lower seeks", map[int][]protocols.Preference{
			1: {agentPref(2, 5)},
			2: {resourcePref(site, 9), agentPref(1, 5)},
		}},
		{"higher seeks", map[int][]protocols.Preference{
			1: {resourcePref(site, 9), agentPref(2, 5)},
			2: {agentPref(1, 5)},
		}},
	}
	tp, _ := NewThreePass(nil)
	for _, tc := range cases {
		pairs := pairsOf(t, tp.FindMatches(tc.prefs, matchContext(simpleAgents(1, 2), protocols.ModeBoth)))
		want := []protocols.Pair{{A: 1, B: 2, Reason: protocol.ReasonGreedyFallback}}
		if !reflect.DeepEqual(pairs, want) {
			t.Fatalf("%s: pairs=%+v want %+v", tc.name, pairs, want)
		}
	}
}

func TestThreePass_NeverBooksPairedAgent(t *testing.T) {
	prefs := map[int][]protocols.Preference{
		0: {agentPref(5, 10), agentPref(1, 1)},
		1: {agentPref(0, 1)},
	}
	ctx := matchContext(simpleAgents(0, 1, 5, 6), protocols.ModeTrade)
	ctx.Paired = map[int]int{5: 6, 6: 5}
	tp, _ := NewThreePass(nil)
	pairs := pairsOf(t, tp.FindMatches(prefs, ctx))
	if len(pairs) != 1 || pairs[0].A != 0 || pairs[0].B != 1 {
		t.Fatalf("pairs=%+v", pairs)
	}
}

func TestThreePass_FallbackToForage(t *testing.T) {
	site := model.Pos{X: 2, Y: 2}
	prefs := map[int][]protocols.Preference{
		0: {agentPref(1, 5), resourcePref(site, 1)},
	}
	ctx := matchContext(simpleAgents(0, 1), protocols.ModeBoth)
	ctx.Cooldown = func(a, b int) bool { return true }
	tp, _ := NewThreePass(nil)
	effects := tp.FindMatches(prefs, ctx)
	if len(effects) != 2 {
		t.Fatalf("effects=%#v", effects)
	}
	if set, ok := effects[0].(protocols.SetTarget); !ok || set.Target.Pos != site {
		t.Fatalf("expected forage target, got %#v", effects[0])
	}
	if _, ok := effects[1].(protocols.ClaimResource); !ok {
		t.Fatalf("expected claim, got %#v", effects[1])
	}

	ctx.Mode = protocols.ModeTrade
	effects = tp.FindMatches(prefs, ctx)
	if len(effects) != 1 {
		t.Fatalf("effects=%#v", effects)
	}
	if clr, ok := effects[0].(protocols.ClearTarget); !ok || clr.Reason != protocol.ReasonNoPartner {
		t.Fatalf("expected ClearTarget no_partner, got %#v", effects[0])
	}
}

func TestRandom_PairsEachSeekerOnceDeterministically(t *testing.T) {
	prefs := map[int][]protocols.Preference{}
	ids := []int{0, 1, 2, 3, 4, 5, 6}
	for _, id := range ids {
		prefs[id] = []protocols.Preference{agentPref((id+1)%len(ids), 1)}
	}
	rm, _ := NewRandom(nil)
	run := func() []protocols.Pair {
		return pairsOf(t, rm.FindMatches(prefs, matchContext(simpleAgents(ids...), protocols.ModeTrade)))
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed differs: %+v vs %+v", a, b)
	}
	if len(a) != 3 {
		t.Fatalf("expected 3 pairs from 7 seekers, got %+v", a)
	}
}

func TestGreedySurplus_PairsComplements(t *testing.T) {
	agents := map[int]protocols.AgentView{
		0: view(t, 0, model.Pos{X: 0}, 8, 2),
		1: view(t, 1, model.Pos{X: 1}, 2, 8),
		2: view(t, 2, model.Pos{X: 5}, 8, 2),
		3: view(t, 3, model.Pos{X: 6}, 2, 8),
	}
	prefs := map[int][]protocols.Preference{
		0: {agentPref(1, 2), agentPref(3, 1)},
		1: {agentPref(0, 2), agentPref(2, 1)},
		2: {agentPref(3, 2), agentPref(1, 1)},
		3: {agentPref(2, 2), agentPref(0, 1)},
	}
	gs, _ := NewGreedySurplus(nil)
	pairs := pairsOf(t, gs.FindMatches(prefs, matchContext(agents, protocols.ModeTrade)))
	want := []protocols.Pair{
		{A: 0, B: 1, Reason: protocol.ReasonCentralPlanner},
		{A: 2, B: 3, Reason: protocol.ReasonCentralPlanner},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs=%+v want %+v", pairs, want)
	}
}

func TestTotalSurplus_IdenticalAgentsNotPositive(t *testing.T) {
	a := view(t, 0, model.Pos{}, 5, 5)
	b := view(t, 1, model.Pos{}, 5, 5)
	total, ok := TotalSurplus(a, b, model.RegimeBarter)
	if ok && total > 0 {
		t.Fatalf("identical convex agents should not gain, got %v", total)
	}
}
