package world

import (
	"math/rand"
	"testing"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/protocols/registry"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/trade"
)

func expectViolation(t *testing.T, invariant string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		v, ok := r.(trade.InvariantViolation)
		if !ok {
			t.Fatalf("expected InvariantViolation panic, got %#v", r)
		}
		if v.Invariant != invariant {
			t.Fatalf("expected %s, got %s (%s)", invariant, v.Invariant, v.Detail)
		}
	}()
	fn()
}

// skimming slips a unit of A to the lower id instead of returning effects.
type skimming struct{ w *World }

func (*skimming) Name() string { return "skimming" }

func (s *skimming) Negotiate(ctx protocols.NegotiationContext) []protocols.Effect {
	s.w.byID[ctx.A.ID].Inventory.Add(model.GoodA, quant.One)
	return nil
}

// waypoint ranks nothing and always heads for dest. owner, when set, names
// the agent the intent is issued for.
type waypoint struct {
	dest  model.Pos
	owner int
	calls int
}

func (*waypoint) Name() string { return "waypoint" }

func (*waypoint) BuildPreferences(protocols.WorldView, *rand.Rand) []protocols.Preference {
	return nil
}

func (p *waypoint) SelectTarget(view protocols.WorldView, _ *rand.Rand) []protocols.Effect {
	p.calls++
	id := view.Self.ID
	if p.owner != model.NoAgent {
		id = p.owner
	}
	return []protocols.Effect{protocols.SetTarget{
		AgentID: id,
		Target:  model.Target{Kind: model.TargetResource, AgentID: model.NoAgent, Pos: p.dest},
	}}
}

func skimmingWorld(t *testing.T, debug bool) *World {
	t.Helper()
	sk := &skimming{}
	r := registry.Default()
	if err := r.RegisterBargaining(registry.Metadata{Name: sk.Name()}, func(protocols.Params) (protocols.Bargaining, error) {
		return sk, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	cfg := twoAgentConfig(t)
	cfg.DebugAssertions = debug
	cfg.Protocols.Bargaining, cfg.Protocols.BargainingParams = sk.Name(), nil
	w, err := New(cfg, WithRegistry(r))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sk.w = w
	return w
}

func TestGuard_BargainingMutationPanics(t *testing.T) {
	w := skimmingWorld(t, true)
	expectViolation(t, trade.InvMutation, func() {
		for i := 0; i < 30; i++ {
			w.Step()
		}
	})
}

func TestGuard_OffWithoutDebugAssertions(t *testing.T) {
	w := skimmingWorld(t, false)
	before, _ := w.Agent(0)
	startA := before.Inventory.A
	for i := 0; i < 30; i++ {
		w.Step()
	}
	after, _ := w.Agent(0)
	if !after.Inventory.A.GreaterThan(startA) {
		t.Fatalf("negotiation never ran: A=%s", after.Inventory.A)
	}
}

func TestCheckInvariants_AsymmetricPairing(t *testing.T) {
	w := twoAgentWorld(t, &recordingSink{})
	w.byID[0].PartnerID = 1
	expectViolation(t, trade.InvPairing, func() { w.checkInvariants(0) })
}

func waypointWorld(t *testing.T, p *waypoint) *World {
	t.Helper()
	r := registry.Default()
	if err := r.RegisterSearch(registry.Metadata{Name: p.Name()}, func(protocols.Params) (protocols.Search, error) {
		return p, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	cfg := twoAgentConfig(t)
	cfg.Protocols.Search = p.Name()
	w, err := New(cfg, WithRegistry(r))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return w
}

func TestSearch_SelectTargetDrivesMovement(t *testing.T) {
	p := &waypoint{dest: model.Pos{X: 4, Y: 1}, owner: model.NoAgent}
	w := waypointWorld(t, p)
	w.Step()
	if p.calls != 2 {
		t.Fatalf("SelectTarget calls = %d, want one per searching agent", p.calls)
	}
	a, _ := w.Agent(0)
	if a.Target.Kind != model.TargetResource || a.Target.Pos != p.dest {
		t.Fatalf("target not applied: %+v", a.Target)
	}
	if a.Pos != (model.Pos{X: 2, Y: 1}) {
		t.Fatalf("agent 0 at %v, want one step toward %v", a.Pos, p.dest)
	}
}

func TestSearch_IntentForAnotherAgentPanics(t *testing.T) {
	w := waypointWorld(t, &waypoint{dest: model.Pos{X: 4, Y: 1}, owner: 1})
	expectViolation(t, trade.InvEffect, func() { w.Step() })
}
