package bargaining

import (
	"math/rand"
	"testing"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/utility"
)

func cesView(t *testing.T, id int, a, b int64, regime model.Regime) protocols.AgentView {
	t.Helper()
	u, err := utility.New(utility.Spec{Type: "ces", Params: map[string]float64{"rho": -0.5, "wA": 1, "wB": 1}})
	if err != nil {
		t.Fatalf("utility: %v", err)
	}
	inv := model.NewInventory(quant.Int(a), quant.Int(b), quant.Int(10))
	return protocols.AgentView{
		ID:        id,
		Inventory: inv,
		Utility:   u,
		Lambda:    0.1,
		PartnerID: model.NoAgent,
		Quotes:    model.ComputeQuotes(u, 0.1, inv, model.QuoteParams{Epsilon: 1e-9, Regime: regime}),
	}
}

func negotiation(a, b protocols.AgentView, eps float64, seed int64) protocols.NegotiationContext {
	return protocols.NegotiationContext{
		Env: protocols.Env{Tick: 3, Epsilon: eps, Regime: model.RegimeBarter, Mode: protocols.ModeTrade},
		A:   a,
		B:   b,
		Rng: rand.New(rand.NewSource(seed)),
	}
}

func onlyTrade(t *testing.T, effects []protocols.Effect) model.Trade {
	t.Helper()
	if len(effects) != 1 {
		t.Fatalf("expected one effect, got %d: %#v", len(effects), effects)
	}
	tr, ok := effects[0].(protocols.Trade)
	if !ok {
		t.Fatalf("expected trade, got %#v", effects[0])
	}
	return tr.Trade
}

func onlyUnpair(t *testing.T, effects []protocols.Effect) protocols.Unpair {
	t.Helper()
	if len(effects) != 1 {
		t.Fatalf("expected one effect, got %d: %#v", len(effects), effects)
	}
	u, ok := effects[0].(protocols.Unpair)
	if !ok {
		t.Fatalf("expected unpair, got %#v", effects[0])
	}
	return u
}

func allProtocols(t *testing.T) []protocols.Bargaining {
	t.Helper()
	cb, _ := NewCompensatingBlock(nil)
	es, _ := NewEqualSplit(nil)
	tl, err := NewTakeItOrLeaveIt(protocols.Params{"proposer": "random"})
	if err != nil {
		t.Fatalf("tioli: %v", err)
	}
	return []protocols.Bargaining{cb, es, tl}
}

func TestNegotiate_ComplementaryAgentsTrade(t *testing.T) {
	a := cesView(t, 0, 8, 2, model.RegimeBarter)
	b := cesView(t, 1, 2, 8, model.RegimeBarter)
	for _, p := range allProtocols(t) {
		tr := onlyTrade(t, p.Negotiate(negotiation(a, b, 1e-6, 1)))
		if tr.SellerID != 0 || tr.BuyerID != 1 || tr.PairType != model.PairAB {
			t.Fatalf("%s: unexpected orientation %+v", p.Name(), tr)
		}
		if !tr.Price.GreaterThan(a.Quotes[model.PairAB].Ask) || !tr.Price.LessThan(b.Quotes[model.PairAB].Bid) {
			t.Fatalf("%s: price %s outside (%s, %s)", p.Name(), tr.Price, a.Quotes[model.PairAB].Ask, b.Quotes[model.PairAB].Bid)
		}
		if tr.BuyerGain <= 1e-6 || tr.SellerGain <= 1e-6 {
			t.Fatalf("%s: gains not improving: %+v", p.Name(), tr)
		}
		if !tr.Conserves() {
			t.Fatalf("%s: trade does not conserve", p.Name())
		}
		if tr.Protocol != p.Name() || tr.Source != model.SourceBilateral {
			t.Fatalf("%s: bad provenance %+v", p.Name(), tr)
		}
	}
}

func TestEqualSplit_SymmetricAgentsSplitEvenly(t *testing.T) {
	a := cesView(t, 0, 8, 2, model.RegimeBarter)
	b := cesView(t, 1, 2, 8, model.RegimeBarter)
	es, _ := NewEqualSplit(nil)
	tr := onlyTrade(t, es.Negotiate(negotiation(a, b, 1e-6, 1)))
	if !tr.Quantity.Equal(quant.Int(1)) || !tr.Price.Equal(quant.Int(1)) {
		t.Fatalf("expected 1 A for 1 B, got qty=%s price=%s", tr.Quantity, tr.Price)
	}
	if tr.BuyerGain != tr.SellerGain {
		t.Fatalf("expected equal gains, got %v vs %v", tr.BuyerGain, tr.SellerGain)
	}
}

func TestTakeItOrLeaveIt_ProposerCapturesSurplus(t *testing.T) {
	a := cesView(t, 0, 8, 2, model.RegimeBarter)
	b := cesView(t, 1, 2, 8, model.RegimeBarter)
	es, _ := NewEqualSplit(nil)
	split := onlyTrade(t, es.Negotiate(negotiation(a, b, 1e-6, 1)))

	lower, err := NewTakeItOrLeaveIt(protocols.Params{"proposer": "lower_id"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr := onlyTrade(t, lower.Negotiate(negotiation(a, b, 1e-6, 1)))
	if tr.SellerGain < split.SellerGain {
		t.Fatalf("proposer 0 gained %v, less than equal split %v", tr.SellerGain, split.SellerGain)
	}

	higher, _ := NewTakeItOrLeaveIt(protocols.Params{"proposer": "higher_id"})
	tr = onlyTrade(t, higher.Negotiate(negotiation(a, b, 1e-6, 1)))
	if tr.BuyerGain < split.BuyerGain {
		t.Fatalf("proposer 1 gained %v, less than equal split %v", tr.BuyerGain, split.BuyerGain)
	}
}

func TestTakeItOrLeaveIt_UnknownRule(t *testing.T) {
	if _, err := NewTakeItOrLeaveIt(protocols.Params{"proposer": "loudest"}); err == nil {
		t.Fatalf("expected error for unknown proposer rule")
	}
}

func TestNegotiate_NoOverlapUnpairs(t *testing.T) {
	a := cesView(t, 3, 5, 5, model.RegimeBarter)
	b := cesView(t, 7, 5, 5, model.RegimeBarter)
	for _, p := range allProtocols(t) {
		u := onlyUnpair(t, p.Negotiate(negotiation(a, b, 1e-6, 1)))
		if u.Reason != protocol.ReasonNoFeasibleTrade || u.A != 3 || u.B != 7 {
			t.Fatalf("%s: unexpected unpair %+v", p.Name(), u)
		}
	}
}

func TestTakeItOrLeaveIt_ResponderRejects(t *testing.T) {
	a := cesView(t, 0, 8, 2, model.RegimeBarter)
	b := cesView(t, 1, 2, 8, model.RegimeBarter)
	tl, _ := NewTakeItOrLeaveIt(protocols.Params{"proposer": "lower_id"})
	u := onlyUnpair(t, tl.Negotiate(negotiation(a, b, 10, 1)))
	if u.Reason != protocol.ReasonResponderRejected {
		t.Fatalf("expected responder_rejected, got %q", u.Reason)
	}
}

func TestNegotiate_ImprovementAndConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 40; i++ {
		a := cesView(t, 0, 1+rng.Int63n(12), 1+rng.Int63n(12), model.RegimeBarter)
		b := cesView(t, 1, 1+rng.Int63n(12), 1+rng.Int63n(12), model.RegimeBarter)
		for _, p := range allProtocols(t) {
			for _, e := range p.Negotiate(negotiation(a, b, 1e-6, int64(i))) {
				tr, ok := e.(protocols.Trade)
				if !ok {
					continue
				}
				if tr.Trade.BuyerGain <= 1e-6 || tr.Trade.SellerGain <= 1e-6 {
					t.Fatalf("%s: non-improving trade %+v", p.Name(), tr.Trade)
				}
				if !tr.Trade.Conserves() {
					t.Fatalf("%s: trade does not conserve", p.Name())
				}
				seller, buyer := a, b
				if tr.Trade.SellerID == b.ID {
					seller, buyer = b, a
				}
				bd, sd := tr.Trade.Deltas()
				if !buyer.Inventory.Apply(bd).NonNegative() || !seller.Inventory.Apply(sd).NonNegative() {
					t.Fatalf("%s: trade overdraws", p.Name())
				}
			}
		}
	}
}

func TestGridPrices_IncludeWholeUnitPayments(t *testing.T) {
	g := Grid{PriceCandidates: 3, WholeUnitPrices: 32}
	d := Direction{Ask: quant.Must("0.5"), Bid: quant.Must("2.5")}
	prices := g.Prices(d, quant.Int(2))
	want := map[string]bool{"0.5": true, "1.5": true, "2.5": true, "1": true, "2": true}
	if len(prices) != len(want) {
		t.Fatalf("prices=%v", prices)
	}
	for i, p := range prices {
		if !want[p.String()] {
			t.Fatalf("unexpected price %s in %v", p, prices)
		}
		if i > 0 && !prices[i-1].LessThan(p) {
			t.Fatalf("prices not strictly ascending: %v", prices)
		}
	}
}

func TestDirections_EqualQuotesAreEnumerated(t *testing.T) {
	a := cesView(t, 0, 5, 5, model.RegimeBarter)
	b := cesView(t, 1, 5, 5, model.RegimeBarter)
	a.Quotes[model.PairAB] = model.Quote{Ask: quant.Must("1"), Bid: quant.Must("1")}
	b.Quotes[model.PairAB] = model.Quote{Ask: quant.Must("1"), Bid: quant.Must("1")}
	dirs := Directions(negotiation(a, b, 1e-9, 1))
	if len(dirs) != 2 {
		t.Fatalf("expected both orientations at ask == bid, got %+v", dirs)
	}
	for _, d := range dirs {
		if d.Overlap != 0 || !d.Ask.Equal(d.Bid) {
			t.Fatalf("unexpected direction %+v", d)
		}
	}

	b.Quotes[model.PairAB] = model.Quote{Ask: quant.Must("1.0001"), Bid: quant.Must("0.9999")}
	a.Quotes[model.PairAB] = b.Quotes[model.PairAB]
	if dirs := Directions(negotiation(a, b, 1e-9, 1)); len(dirs) != 0 {
		t.Fatalf("bid below ask must not be enumerated: %+v", dirs)
	}
}
