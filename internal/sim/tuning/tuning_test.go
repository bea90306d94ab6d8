package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ExampleConfigs(t *testing.T) {
	for _, name := range []string{"two_agent_barter.yaml", "money_market.yaml"} {
		tu, err := Load(filepath.Join("..", "..", "..", "configs", name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if tu.Run.ID == "" || tu.Grid.Width <= 0 {
			t.Fatalf("%s: incomplete %+v", name, tu.Run)
		}
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "run.yaml")
	raw := `
grid: {width: 8, height: 8}
params:
  interaction_radius: 0
  exchange_regime: mixed
protocols:
  bargaining: {name: take_it_or_leave_it, params: {proposer: lower_id}}
agents:
  - id: 3
    pos: [7, 0]
    inventory: {A: 1.5, B: 2}
    utility: {type: linear, params: {vA: 2, vB: 1}}
`
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := Defaults()
	if tu.Params.InteractionRadius != 0 {
		t.Fatalf("explicit zero overwritten: %d", tu.Params.InteractionRadius)
	}
	if tu.Params.VisionRadius != d.Params.VisionRadius || tu.Params.Beta != d.Params.Beta {
		t.Fatalf("defaults lost: %+v", tu.Params)
	}
	if tu.Protocols.Search.Name != "distance_discounted" || tu.Protocols.Bargaining.Params["proposer"] != "lower_id" {
		t.Fatalf("protocols: %+v", tu.Protocols)
	}
	if len(tu.Agents) != 1 || tu.Agents[0].Inventory.A != 1.5 || tu.Agents[0].Utility.Params["vA"] != 2 {
		t.Fatalf("agents: %+v", tu.Agents)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"regime": func(t *Tuning) { t.Params.ExchangeRegime = "gift" },
		"mode":   func(t *Tuning) { t.Params.Mode = "sleep" },
		"beta":   func(t *Tuning) { t.Params.Beta = 0 },
		"grid":   func(t *Tuning) { t.Grid.Width = 0 },
		"outside": func(t *Tuning) {
			t.Agents = []Agent{{ID: 1, Pos: [2]int{99, 0}, Utility: Defaults().Population.Utility}}
		},
		"duplicate": func(t *Tuning) {
			t.Agents = []Agent{{ID: 1, Utility: Defaults().Population.Utility}, {ID: 1, Utility: Defaults().Population.Utility}}
		},
		"market":   func(t *Tuning) { t.Market.Enabled = true; t.Market.DensityThreshold = 1 },
		"popRange": func(t *Tuning) { t.Population.A = [2]int{5, 1} },
	}
	for name, mutate := range cases {
		tu := Defaults()
		mutate(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
