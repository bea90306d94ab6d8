package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradegrid.ai/internal/sim/utility"
)

// Tuning is a run file: grid, economic parameters, protocol selection and
// the initial population.
type Tuning struct {
	Run       Run       `yaml:"run"`
	Grid      Grid      `yaml:"grid"`
	Params    Params    `yaml:"params"`
	Market    Market    `yaml:"market"`
	Protocols Protocols `yaml:"protocols"`

	// Agents lists explicit agents. When empty, Population generates them.
	Agents     []Agent    `yaml:"agents"`
	Population Population `yaml:"population"`
}

type Run struct {
	ID    string `yaml:"id"`
	Seed  int64  `yaml:"seed"`
	Ticks int    `yaml:"ticks"`
}

type Grid struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Params struct {
	VisionRadius       int     `yaml:"vision_radius"`
	InteractionRadius  int     `yaml:"interaction_radius"`
	MoveBudget         int     `yaml:"move_budget"`
	Beta               float64 `yaml:"beta"`
	Epsilon            float64 `yaml:"epsilon"`
	TradeCooldownTicks int     `yaml:"trade_cooldown_ticks"`
	Spread             float64 `yaml:"spread"`
	ExchangeRegime     string  `yaml:"exchange_regime"`
	MoneyLambda        float64 `yaml:"money_lambda"`

	Mode         string       `yaml:"mode"`
	ModeSchedule ModeSchedule `yaml:"mode_schedule"`

	ForageRate            float64 `yaml:"forage_rate"`
	ResourceDensity       float64 `yaml:"resource_density"`
	ResourceMax           float64 `yaml:"resource_max"`
	ResourceRegenRate     float64 `yaml:"resource_regen_rate"`
	ResourceRegenCooldown int     `yaml:"resource_regen_cooldown"`

	DebugAssertions bool `yaml:"debug_assertions"`
}

// ModeSchedule alternates trade and forage windows. Zero lengths disable it.
type ModeSchedule struct {
	TradeTicks  int `yaml:"trade_ticks"`
	ForageTicks int `yaml:"forage_ticks"`
}

type Market struct {
	Enabled          bool    `yaml:"enabled"`
	Radius           int     `yaml:"radius"`
	DensityThreshold int     `yaml:"density_threshold"`
	PatienceTicks    int     `yaml:"patience_ticks"`
	AdjustmentSpeed  float64 `yaml:"adjustment_speed"`
	Tolerance        float64 `yaml:"tolerance"`
	MaxIterations    int     `yaml:"max_iterations"`
	Responsiveness   float64 `yaml:"responsiveness"`
	MinPrice         float64 `yaml:"min_price"`
}

type Protocols struct {
	Search     ProtocolRef `yaml:"search"`
	Matching   ProtocolRef `yaml:"matching"`
	Bargaining ProtocolRef `yaml:"bargaining"`
}

type ProtocolRef struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

type Agent struct {
	ID        int          `yaml:"id"`
	Pos       [2]int       `yaml:"pos"`
	Inventory Inventory    `yaml:"inventory"`
	Utility   utility.Spec `yaml:"utility"`
	// Lambda overrides params.money_lambda when set.
	Lambda *float64 `yaml:"lambda"`
}

type Inventory struct {
	A float64 `yaml:"A"`
	B float64 `yaml:"B"`
	M float64 `yaml:"M"`
}

// Population generates Count agents at random free cells with integer
// holdings drawn uniformly from each inclusive range.
type Population struct {
	Count   int          `yaml:"count"`
	A       [2]int       `yaml:"A"`
	B       [2]int       `yaml:"B"`
	M       [2]int       `yaml:"M"`
	Utility utility.Spec `yaml:"utility"`
}

// Defaults returns a fully populated run file.
func Defaults() Tuning {
	return Tuning{
		Run:  Run{ID: "run", Seed: 42, Ticks: 100},
		Grid: Grid{Width: 32, Height: 32},
		Params: Params{
			VisionRadius:          5,
			InteractionRadius:     1,
			MoveBudget:            1,
			Beta:                  0.95,
			Epsilon:               1e-9,
			TradeCooldownTicks:    5,
			Spread:                0,
			ExchangeRegime:        "barter_only",
			MoneyLambda:           1,
			Mode:                  "both",
			ForageRate:            1,
			ResourceDensity:       0,
			ResourceMax:           5,
			ResourceRegenRate:     1,
			ResourceRegenCooldown: 5,
		},
		Market: Market{
			Enabled:          false,
			Radius:           2,
			DensityThreshold: 5,
			PatienceTicks:    3,
			AdjustmentSpeed:  0.05,
			Tolerance:        0.01,
			MaxIterations:    200,
			Responsiveness:   1,
			MinPrice:         0.0001,
		},
		Protocols: Protocols{
			Search:     ProtocolRef{Name: "distance_discounted"},
			Matching:   ProtocolRef{Name: "three_pass"},
			Bargaining: ProtocolRef{Name: "compensating_block"},
		},
		Population: Population{
			A:       [2]int{0, 10},
			B:       [2]int{0, 10},
			M:       [2]int{0, 0},
			Utility: utility.Spec{Type: "ces", Params: map[string]float64{"rho": -0.5, "wA": 1, "wB": 1}},
		},
	}
}

// Load reads a run file on top of Defaults and validates it.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate checks ranges and cross-field constraints.
func (t Tuning) Validate() error {
	if t.Grid.Width <= 0 || t.Grid.Height <= 0 {
		return fmt.Errorf("grid: width and height must be positive")
	}
	if t.Run.Ticks < 0 {
		return fmt.Errorf("run.ticks: must be >= 0")
	}
	p := t.Params
	switch {
	case p.VisionRadius < 0, p.InteractionRadius < 0:
		return fmt.Errorf("params: radii must be >= 0")
	case p.MoveBudget < 0:
		return fmt.Errorf("params.move_budget: must be >= 0")
	case p.Beta <= 0 || p.Beta > 1:
		return fmt.Errorf("params.beta: must be in (0, 1]")
	case p.Epsilon < 0:
		return fmt.Errorf("params.epsilon: must be >= 0")
	case p.Spread < 0 || p.Spread >= 1:
		return fmt.Errorf("params.spread: must be in [0, 1)")
	case p.TradeCooldownTicks < 0:
		return fmt.Errorf("params.trade_cooldown_ticks: must be >= 0")
	case p.ModeSchedule.TradeTicks < 0 || p.ModeSchedule.ForageTicks < 0:
		return fmt.Errorf("params.mode_schedule: lengths must be >= 0")
	case p.ResourceDensity < 0 || p.ResourceDensity > 1:
		return fmt.Errorf("params.resource_density: must be in [0, 1]")
	case p.ForageRate < 0 || p.ResourceMax < 0 || p.ResourceRegenRate < 0:
		return fmt.Errorf("params: resource amounts must be >= 0")
	}
	switch p.ExchangeRegime {
	case "barter_only", "money_only", "mixed":
	default:
		return fmt.Errorf("params.exchange_regime: unknown %q", p.ExchangeRegime)
	}
	switch p.Mode {
	case "trade", "forage", "both":
	default:
		return fmt.Errorf("params.mode: unknown %q", p.Mode)
	}
	if m := t.Market; m.Enabled {
		if m.Radius < 0 || m.DensityThreshold < 2 || m.MaxIterations < 1 || m.AdjustmentSpeed <= 0 || m.Tolerance <= 0 || m.MinPrice <= 0 {
			return fmt.Errorf("market: radius >= 0, density_threshold >= 2, max_iterations >= 1 and positive speed, tolerance, min_price required")
		}
	}
	seen := map[int]bool{}
	cells := map[[2]int]bool{}
	for _, a := range t.Agents {
		if seen[a.ID] {
			return fmt.Errorf("agents: duplicate id %d", a.ID)
		}
		seen[a.ID] = true
		if a.ID < 0 {
			return fmt.Errorf("agents: id %d must be >= 0", a.ID)
		}
		if a.Pos[0] < 0 || a.Pos[1] < 0 || a.Pos[0] >= t.Grid.Width || a.Pos[1] >= t.Grid.Height {
			return fmt.Errorf("agents: id %d position %v outside grid", a.ID, a.Pos)
		}
		cells[a.Pos] = true
		if a.Inventory.A < 0 || a.Inventory.B < 0 || a.Inventory.M < 0 {
			return fmt.Errorf("agents: id %d has negative inventory", a.ID)
		}
		if _, err := utility.New(a.Utility); err != nil {
			return fmt.Errorf("agents: id %d: %w", a.ID, err)
		}
	}
	if len(t.Agents) == 0 {
		pop := t.Population
		if pop.Count < 0 || pop.Count > t.Grid.Width*t.Grid.Height {
			return fmt.Errorf("population.count: must fit the grid")
		}
		for name, r := range map[string][2]int{"A": pop.A, "B": pop.B, "M": pop.M} {
			if r[0] < 0 || r[1] < r[0] {
				return fmt.Errorf("population.%s: bad range %v", name, r)
			}
		}
		if pop.Count > 0 {
			if _, err := utility.New(pop.Utility); err != nil {
				return fmt.Errorf("population.utility: %w", err)
			}
		}
	}
	return nil
}
