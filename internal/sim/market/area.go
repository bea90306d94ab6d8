// Package market implements centralized Walrasian clearing for dense
// clusters of agents. Areas form where local density crosses a threshold,
// clear every tick by tatonnement, and dissolve once density stays low.
package market

import (
	"io"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/spatial"
)

type Config struct {
	Radius           int
	DensityThreshold int
	// PatienceTicks is how long an area may stay below the threshold
	// before it dissolves.
	PatienceTicks   int
	AdjustmentSpeed float64
	Tolerance       float64
	MaxIterations   int
	Responsiveness  float64
	MinPrice        float64
	Epsilon         float64
}

func DefaultConfig() Config {
	return Config{
		Radius:           2,
		DensityThreshold: 5,
		PatienceTicks:    3,
		AdjustmentSpeed:  0.05,
		Tolerance:        0.01,
		MaxIterations:    200,
		Responsiveness:   1,
		MinPrice:         0.0001,
		Epsilon:          1e-9,
	}
}

// Area is one active market.
type Area struct {
	ID     int
	Center model.Pos
	// Participants is ascending by id.
	Participants []int
	FormedTick   uint64
	// BelowTicks counts consecutive ticks under the density threshold.
	BelowTicks int

	// Prices holds the last clearing price per exchange pair.
	Prices map[model.PairType]decimal.Decimal
	Volume decimal.Decimal
	Trades int
	Clears int
}

func (a *Area) Has(id int) bool {
	i := sort.SearchInts(a.Participants, id)
	return i < len(a.Participants) && a.Participants[i] == id
}

// Manager tracks active areas across ticks.
type Manager struct {
	cfg    Config
	log    *slog.Logger
	areas  []*Area
	nextID int
}

func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{cfg: cfg, log: logger}
}

func (m *Manager) Config() Config { return m.cfg }

// Areas returns active areas ordered by id.
func (m *Manager) Areas() []*Area { return m.areas }

// AreaOf returns the area agent id participates in.
func (m *Manager) AreaOf(id int) (*Area, bool) {
	for _, a := range m.areas {
		if a.Has(id) {
			return a, true
		}
	}
	return nil, false
}

// Update refreshes membership of existing areas, dissolves those that
// stayed sparse past their patience, and forms new areas around unassigned
// agents whose neighborhood is dense enough. Seeds are visited by id.
func (m *Manager) Update(tick uint64, idx *spatial.Index) (formed, dissolved []*Area) {
	assigned := map[int]bool{}
	kept := m.areas[:0]
	for _, a := range m.areas {
		near := unassigned(idx.QueryRadius(a.Center, m.cfg.Radius, model.NoAgent), assigned)
		if len(near) < m.cfg.DensityThreshold {
			a.BelowTicks++
		} else {
			a.BelowTicks = 0
		}
		if a.BelowTicks > m.cfg.PatienceTicks {
			dissolved = append(dissolved, a)
			m.log.Debug("market dissolved", "tick", tick, "market", a.ID, "trades", a.Trades)
			continue
		}
		a.Participants = near
		for _, id := range near {
			assigned[id] = true
		}
		kept = append(kept, a)
	}
	m.areas = kept

	for _, id := range idx.IDs() {
		if assigned[id] {
			continue
		}
		center := idx.Position(id)
		near := unassigned(idx.QueryRadius(center, m.cfg.Radius, model.NoAgent), assigned)
		if len(near) < m.cfg.DensityThreshold {
			continue
		}
		a := &Area{
			ID:           m.nextID,
			Center:       center,
			Participants: near,
			FormedTick:   tick,
			Prices:       map[model.PairType]decimal.Decimal{},
		}
		m.nextID++
		for _, p := range near {
			assigned[p] = true
		}
		m.areas = append(m.areas, a)
		formed = append(formed, a)
		m.log.Debug("market formed", "tick", tick, "market", a.ID, "center", center, "participants", len(near))
	}
	return formed, dissolved
}

// Restore replaces the active areas, used when resuming from a snapshot.
func (m *Manager) Restore(areas []*Area, nextID int) {
	sort.Slice(areas, func(i, j int) bool { return areas[i].ID < areas[j].ID })
	m.areas = areas
	m.nextID = nextID
}

// NextID is the id the next formed area will receive.
func (m *Manager) NextID() int { return m.nextID }

func unassigned(ids []int, assigned map[int]bool) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !assigned[id] {
			out = append(out, id)
		}
	}
	return out
}
