package market

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/spatial"
	"tradegrid.ai/internal/sim/trade"
	"tradegrid.ai/internal/sim/utility"
)

type fixture struct {
	agents map[int]*model.Agent
	idx    *spatial.Index
	exec   *trade.Executor
}

func newFixture() *fixture {
	f := &fixture{agents: map[int]*model.Agent{}, idx: spatial.New(2)}
	f.exec = trade.NewExecutor(func(id int) *model.Agent { return f.agents[id] })
	return f
}

func (f *fixture) add(t *testing.T, id int, pos model.Pos, a, b, m string, lambda float64) *model.Agent {
	t.Helper()
	u, err := utility.New(utility.Spec{Type: "ces", Params: map[string]float64{"rho": -0.5}})
	if err != nil {
		t.Fatalf("utility: %v", err)
	}
	ag := model.NewAgent(id, pos, model.NewInventory(quant.Must(a), quant.Must(b), quant.Must(m)), u, lambda)
	f.agents[id] = ag
	f.idx.AddOrUpdate(id, pos)
	return ag
}

func (f *fixture) views() map[int]protocols.AgentView {
	out := map[int]protocols.AgentView{}
	for id, a := range f.agents {
		out[id] = protocols.ViewOf(a)
	}
	return out
}

func (f *fixture) total(g model.Good) decimal.Decimal {
	sum := quant.Zero
	for _, a := range f.agents {
		sum = sum.Add(a.Inventory.Get(g))
	}
	return sum
}

func TestUpdate_FormsAndDissolves(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.add(t, i, model.Pos{X: 3 + i%2, Y: 3 + i/2}, "5", "5", "0", 0)
	}
	f.add(t, 9, model.Pos{X: 20, Y: 20}, "5", "5", "0", 0)
	cfg := DefaultConfig()
	cfg.PatienceTicks = 1
	m := NewManager(cfg, nil)

	formed, dissolved := m.Update(1, f.idx)
	if len(formed) != 1 || len(dissolved) != 0 {
		t.Fatalf("formed=%d dissolved=%d", len(formed), len(dissolved))
	}
	a := formed[0]
	if a.Center != (model.Pos{X: 3, Y: 3}) || len(a.Participants) != 5 || a.Has(9) {
		t.Fatalf("unexpected area %+v", a)
	}
	if got, ok := m.AreaOf(4); !ok || got.ID != a.ID {
		t.Fatalf("agent 4 should be in area %d", a.ID)
	}

	for i := 0; i < 3; i++ {
		f.idx.AddOrUpdate(i, model.Pos{X: 30 + i*5, Y: 0})
	}
	if _, dissolved = m.Update(2, f.idx); len(dissolved) != 0 {
		t.Fatalf("area dissolved before patience ran out")
	}
	if _, dissolved = m.Update(3, f.idx); len(dissolved) != 1 {
		t.Fatalf("expected area to dissolve, areas=%d", len(m.Areas()))
	}
	if len(m.Areas()) != 0 {
		t.Fatalf("areas left: %d", len(m.Areas()))
	}
}

func TestClear_ZeroExcessDemandIsStable(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.add(t, i, model.Pos{X: i}, "5", "5", "0", 0)
	}
	m := NewManager(DefaultConfig(), nil)
	area := &Area{ID: 0, Participants: []int{0, 1, 2, 3, 4}, Prices: map[model.PairType]decimal.Decimal{model.PairAB: quant.Int(1)}}

	results := m.Clear(1, area, f.views(), model.RegimeBarter, f.exec)
	if len(results) != 1 {
		t.Fatalf("results=%+v", results)
	}
	r := results[0]
	if !r.Converged || r.Iterations != 1 {
		t.Fatalf("expected convergence in 1 iteration, got %+v", r)
	}
	if !r.Price.Equal(quant.Int(1)) || len(r.Trades) != 0 {
		t.Fatalf("price moved or trades happened: %+v", r)
	}
}

func TestClear_BarterConservesAndTrades(t *testing.T) {
	f := newFixture()
	f.add(t, 0, model.Pos{X: 0}, "9", "1", "0", 0)
	f.add(t, 1, model.Pos{X: 1}, "9", "1", "0", 0)
	f.add(t, 2, model.Pos{X: 2}, "1", "9", "0", 0)
	f.add(t, 3, model.Pos{X: 3}, "1", "9", "0", 0)
	m := NewManager(DefaultConfig(), nil)
	area := &Area{ID: 4, Participants: []int{0, 1, 2, 3}, Prices: map[model.PairType]decimal.Decimal{}}
	beforeA, beforeB := f.total(model.GoodA), f.total(model.GoodB)

	results := m.Clear(1, area, f.views(), model.RegimeBarter, f.exec)
	if len(results) != 1 || len(results[0].Trades) == 0 {
		t.Fatalf("expected trades, got %+v", results)
	}
	for _, tr := range results[0].Trades {
		if tr.Source != model.SourceMarket || !tr.Conserves() {
			t.Fatalf("bad trade %+v", tr)
		}
		if tr.BuyerID < 2 || tr.SellerID > 1 {
			t.Fatalf("A should flow from A-rich to B-rich agents: %+v", tr)
		}
	}
	if !beforeA.Equal(f.total(model.GoodA)) || !beforeB.Equal(f.total(model.GoodB)) {
		t.Fatalf("totals changed")
	}
	if !area.Prices[model.PairAB].Equal(results[0].Price) || area.Trades != len(results[0].Trades) {
		t.Fatalf("area stats not updated: %+v", area)
	}
}

func TestClear_LedgerPreventsOverspendAcrossCommodities(t *testing.T) {
	f := newFixture()
	buyer := f.add(t, 0, model.Pos{}, "1", "1", "1", 0.01)
	for i := 1; i <= 4; i++ {
		f.add(t, i, model.Pos{X: i}, "20", "20", "50", 10)
	}
	m := NewManager(DefaultConfig(), nil)
	area := &Area{ID: 0, Participants: []int{0, 1, 2, 3, 4}, Prices: map[model.PairType]decimal.Decimal{}}
	beforeM := f.total(model.GoodM)

	results := m.Clear(1, area, f.views(), model.RegimeMoney, f.exec)
	if len(results) != 2 {
		t.Fatalf("expected A and B cleared, got %+v", results)
	}
	spent := quant.Zero
	for _, r := range results {
		for _, tr := range r.Trades {
			if tr.BuyerID == 0 {
				spent = spent.Add(tr.Payment)
			}
		}
	}
	if spent.GreaterThan(quant.Int(1)) || buyer.Inventory.M.IsNegative() {
		t.Fatalf("buyer overspent: spent=%s inventory=%s", spent, buyer.Inventory)
	}
	if !beforeM.Equal(f.total(model.GoodM)) {
		t.Fatalf("money not conserved")
	}
	for _, a := range f.agents {
		if !a.Inventory.NonNegative() {
			t.Fatalf("agent %d negative: %s", a.ID, a.Inventory)
		}
	}
}

func TestClear_EveryTradeImprovesBothSides(t *testing.T) {
	f := newFixture()
	holdings := [][3]string{{"9", "1", "4"}, {"1", "9", "4"}, {"8", "2", "1"}, {"2", "8", "1"}, {"7", "3", "9"}, {"3", "7", "0"}}
	for i, h := range holdings {
		f.add(t, i, model.Pos{X: i}, h[0], h[1], h[2], 0.2)
	}
	ids := []int{0, 1, 2, 3, 4, 5}
	start := map[int]float64{}
	for _, v := range f.views() {
		start[v.ID] = v.TotalUtility(v.Inventory)
	}
	cfg := DefaultConfig()
	m := NewManager(cfg, nil)

	traded := 0
	for tick := uint64(1); tick <= 10; tick++ {
		area := &Area{ID: 0, Participants: ids, Prices: map[model.PairType]decimal.Decimal{}}
		for _, r := range m.Clear(tick, area, f.views(), model.RegimeMixed, f.exec) {
			for _, tr := range r.Trades {
				traded++
				if tr.BuyerGain <= cfg.Epsilon || tr.SellerGain <= cfg.Epsilon {
					t.Fatalf("tick %d: trade does not improve both sides: %+v", tick, tr)
				}
			}
		}
	}
	if traded == 0 {
		t.Fatalf("expected market trades")
	}
	for _, v := range f.views() {
		if got := v.TotalUtility(v.Inventory); got < start[v.ID] {
			t.Fatalf("agent %d lost utility: %g -> %g", v.ID, start[v.ID], got)
		}
	}
}
