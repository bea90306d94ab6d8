package world

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/market"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/protocols/registry"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/tuning"
	"tradegrid.ai/internal/sim/utility"
)

type Config struct {
	ID     string
	Seed   int64
	Width  int
	Height int

	VisionRadius       int
	InteractionRadius  int
	MoveBudget         int
	Beta               float64
	Epsilon            float64
	TradeCooldownTicks int
	Spread             float64
	Regime             model.Regime
	MoneyLambda        float64

	Mode        protocols.Mode
	TradeTicks  int
	ForageTicks int

	ForageRate            decimal.Decimal
	ResourceDensity       float64
	ResourceMax           decimal.Decimal
	ResourceRegenRate     decimal.Decimal
	ResourceRegenCooldown int

	MarketEnabled bool
	Market        market.Config

	Protocols registry.Selection

	Agents []AgentInit
	// Population is used when Agents is empty.
	Population PopulationInit

	DebugAssertions bool
}

type AgentInit struct {
	ID        int
	Pos       model.Pos
	Inventory model.Inventory
	Utility   utility.Spec
	Lambda    float64
}

type PopulationInit struct {
	Count   int
	A, B, M [2]int
	Utility utility.Spec
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "run"
	}
	if c.Width <= 0 {
		c.Width = 32
	}
	if c.Height <= 0 {
		c.Height = 32
	}
	if c.VisionRadius < 0 {
		c.VisionRadius = 0
	}
	if c.InteractionRadius < 0 {
		c.InteractionRadius = 0
	}
	if c.MoveBudget < 0 {
		c.MoveBudget = 0
	}
	if c.Beta <= 0 || c.Beta > 1 {
		c.Beta = 0.95
	}
	if c.Regime == "" {
		c.Regime = model.RegimeBarter
	}
	if c.Mode == "" {
		c.Mode = protocols.ModeBoth
	}
	if c.Protocols.Search == "" {
		c.Protocols.Search = "distance_discounted"
	}
	if c.Protocols.Matching == "" {
		c.Protocols.Matching = "three_pass"
	}
	if c.Protocols.Bargaining == "" {
		c.Protocols.Bargaining = "compensating_block"
	}
	if c.MarketEnabled && c.Market.MaxIterations <= 0 {
		c.Market = market.DefaultConfig()
	}
	c.Market.Epsilon = c.Epsilon
}

// BucketSize is the spatial bucket edge: the largest radius the tick
// queries.
func (c Config) BucketSize() int {
	b := c.VisionRadius
	if c.InteractionRadius > b {
		b = c.InteractionRadius
	}
	if c.MarketEnabled && c.Market.Radius > b {
		b = c.Market.Radius
	}
	if b < 1 {
		b = 1
	}
	return b
}

// ScheduleActive reports whether trade and forage windows alternate.
func (c Config) ScheduleActive() bool { return c.TradeTicks > 0 && c.ForageTicks > 0 }

// FromTuning converts a validated run file into a world configuration.
func FromTuning(t tuning.Tuning) (Config, error) {
	if err := t.Validate(); err != nil {
		return Config{}, err
	}
	p := t.Params
	cfg := Config{
		ID:                    t.Run.ID,
		Seed:                  t.Run.Seed,
		Width:                 t.Grid.Width,
		Height:                t.Grid.Height,
		VisionRadius:          p.VisionRadius,
		InteractionRadius:     p.InteractionRadius,
		MoveBudget:            p.MoveBudget,
		Beta:                  p.Beta,
		Epsilon:               p.Epsilon,
		TradeCooldownTicks:    p.TradeCooldownTicks,
		Spread:                p.Spread,
		Regime:                model.Regime(p.ExchangeRegime),
		MoneyLambda:           p.MoneyLambda,
		Mode:                  protocols.Mode(p.Mode),
		TradeTicks:            p.ModeSchedule.TradeTicks,
		ForageTicks:           p.ModeSchedule.ForageTicks,
		ForageRate:            quant.FromFloat(p.ForageRate),
		ResourceDensity:       p.ResourceDensity,
		ResourceMax:           quant.FromFloat(p.ResourceMax),
		ResourceRegenRate:     quant.FromFloat(p.ResourceRegenRate),
		ResourceRegenCooldown: p.ResourceRegenCooldown,
		MarketEnabled:         t.Market.Enabled,
		Market: market.Config{
			Radius:           t.Market.Radius,
			DensityThreshold: t.Market.DensityThreshold,
			PatienceTicks:    t.Market.PatienceTicks,
			AdjustmentSpeed:  t.Market.AdjustmentSpeed,
			Tolerance:        t.Market.Tolerance,
			MaxIterations:    t.Market.MaxIterations,
			Responsiveness:   t.Market.Responsiveness,
			MinPrice:         t.Market.MinPrice,
		},
		Protocols: registry.Selection{
			Search:           t.Protocols.Search.Name,
			SearchParams:     t.Protocols.Search.Params,
			Matching:         t.Protocols.Matching.Name,
			MatchingParams:   t.Protocols.Matching.Params,
			Bargaining:       t.Protocols.Bargaining.Name,
			BargainingParams: t.Protocols.Bargaining.Params,
		},
		Population: PopulationInit{
			Count:   t.Population.Count,
			A:       t.Population.A,
			B:       t.Population.B,
			M:       t.Population.M,
			Utility: t.Population.Utility,
		},
		DebugAssertions: p.DebugAssertions,
	}
	for _, a := range t.Agents {
		lambda := p.MoneyLambda
		if a.Lambda != nil {
			lambda = *a.Lambda
		}
		cfg.Agents = append(cfg.Agents, AgentInit{
			ID:  a.ID,
			Pos: model.Pos{X: a.Pos[0], Y: a.Pos[1]},
			Inventory: model.NewInventory(
				quant.FromFloat(a.Inventory.A),
				quant.FromFloat(a.Inventory.B),
				quant.FromFloat(a.Inventory.M),
			),
			Utility: a.Utility,
			Lambda:  lambda,
		})
	}
	if !cfg.Regime.Valid() {
		return Config{}, fmt.Errorf("unknown exchange regime %q", cfg.Regime)
	}
	return cfg, nil
}
