package world

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/market"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/protocols/registry"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/spatial"
	"tradegrid.ai/internal/sim/trade"
	"tradegrid.ai/internal/sim/utility"
)

// TickSink receives one entry per completed tick. Implemented in
// internal/persistence/* and internal/transport/*.
type TickSink interface {
	WriteTick(entry protocol.TickMsg) error
}

// World is a single-threaded deterministic simulation. All state must be
// accessed only from the goroutine that calls Step or Run.
type World struct {
	cfg Config
	log *slog.Logger

	runID string
	tick  uint64
	mode  protocols.Mode

	src *countingSource
	rng *rand.Rand

	agents []*model.Agent
	byID   map[int]*model.Agent
	idx    *spatial.Index

	resources map[model.Pos]*Resource

	reg     *registry.Registry
	protos  registry.Set
	markets *market.Manager
	exec    *trade.Executor

	sink   TickSink
	events []protocol.Event
	stats  Stats

	lastDigest string
}

type Option func(*World)

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

// WithSink sets the per-tick sink.
func WithSink(s TickSink) Option { return func(w *World) { w.sink = s } }

// WithRunID labels tick entries.
func WithRunID(id string) Option { return func(w *World) { w.runID = id } }

// WithRegistry overrides the protocol registry used to resolve cfg.Protocols.
func WithRegistry(r *registry.Registry) Option {
	return func(w *World) { w.reg = r }
}

// New builds a world from cfg, resolving protocols through the default
// registry unless WithRegistry is given.
func New(cfg Config, opts ...Option) (*World, error) {
	cfg.applyDefaults()
	w := &World{
		cfg:       cfg,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		runID:     cfg.ID,
		mode:      cfg.Mode,
		byID:      map[int]*model.Agent{},
		idx:       spatial.New(cfg.BucketSize()),
		resources: map[model.Pos]*Resource{},
		stats:     newStats(),
	}
	for _, o := range opts {
		o(w)
	}
	reg := w.reg
	if reg == nil {
		reg = registry.Default()
	}
	set, err := reg.Build(cfg.Protocols)
	if err != nil {
		return nil, err
	}
	w.protos = set
	w.src = newCountingSource(cfg.Seed)
	w.rng = rand.New(w.src)
	w.markets = market.NewManager(cfg.Market, w.log)
	w.exec = trade.NewExecutor(func(id int) *model.Agent { return w.byID[id] })

	if len(cfg.Agents) > 0 {
		for _, ai := range cfg.Agents {
			if err := w.addAgent(ai); err != nil {
				return nil, err
			}
		}
	} else if err := w.populate(cfg.Population); err != nil {
		return nil, err
	}
	w.placeResources()
	w.mode = w.scheduledMode(0)
	w.refreshQuotes(true)
	if err := w.idx.Verify(); err != nil {
		return nil, fmt.Errorf("spatial index: %w", err)
	}
	return w, nil
}

func (w *World) addAgent(ai AgentInit) error {
	if _, dup := w.byID[ai.ID]; dup {
		return fmt.Errorf("duplicate agent id %d", ai.ID)
	}
	if !w.inBounds(ai.Pos) {
		return fmt.Errorf("agent %d position %+v outside %dx%d grid", ai.ID, ai.Pos, w.cfg.Width, w.cfg.Height)
	}
	if !ai.Inventory.NonNegative() {
		return fmt.Errorf("agent %d has negative inventory %s", ai.ID, ai.Inventory)
	}
	u, err := utility.New(ai.Utility)
	if err != nil {
		return fmt.Errorf("agent %d: %w", ai.ID, err)
	}
	a := model.NewAgent(ai.ID, ai.Pos, ai.Inventory, u, ai.Lambda)
	w.agents = append(w.agents, a)
	model.SortAgents(w.agents)
	w.byID[a.ID] = a
	w.idx.AddOrUpdate(a.ID, a.Pos)
	return nil
}

// populate places Count agents on distinct random cells. Holdings are drawn
// uniformly from each inclusive range.
func (w *World) populate(p PopulationInit) error {
	if p.Count <= 0 {
		return nil
	}
	if p.Count > w.cfg.Width*w.cfg.Height {
		return fmt.Errorf("population %d does not fit %dx%d grid", p.Count, w.cfg.Width, w.cfg.Height)
	}
	draw := func(r [2]int) int64 {
		if r[1] <= r[0] {
			return int64(r[0])
		}
		return int64(r[0] + w.rng.Intn(r[1]-r[0]+1))
	}
	used := map[model.Pos]bool{}
	for id := 0; id < p.Count; id++ {
		var pos model.Pos
		for {
			pos = model.Pos{X: w.rng.Intn(w.cfg.Width), Y: w.rng.Intn(w.cfg.Height)}
			if !used[pos] {
				break
			}
		}
		used[pos] = true
		inv := model.NewInventory(quant.Int(draw(p.A)), quant.Int(draw(p.B)), quant.Int(draw(p.M)))
		if err := w.addAgent(AgentInit{ID: id, Pos: pos, Inventory: inv, Utility: p.Utility, Lambda: w.cfg.MoneyLambda}); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) inBounds(p model.Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < w.cfg.Width && p.Y < w.cfg.Height
}

func (w *World) Config() Config { return w.cfg }
func (w *World) RunID() string  { return w.runID }
func (w *World) Tick() uint64   { return w.tick }

func (w *World) Mode() protocols.Mode { return w.mode }

// Agent returns a copy of agent id's state.
func (w *World) Agent(id int) (model.Agent, bool) {
	a, ok := w.byID[id]
	if !ok {
		return model.Agent{}, false
	}
	return *a, true
}

// AgentIDs returns all agent ids ascending.
func (w *World) AgentIDs() []int {
	out := make([]int, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a.ID)
	}
	return out
}

// Markets returns the active market areas.
func (w *World) Markets() []*market.Area { return w.markets.Areas() }

// Digest is the state digest computed at the end of the last tick.
func (w *World) Digest() string { return w.lastDigest }

// Run steps the world until ticks have elapsed (0 means until ctx ends).
// A positive tickRate paces steps with a ticker; otherwise it runs flat out.
func (w *World) Run(ctx context.Context, ticks int, tickRateHz int) error {
	var ticker *time.Ticker
	if tickRateHz > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(tickRateHz))
		defer ticker.Stop()
	}
	for n := 0; ticks == 0 || n < ticks; n++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		w.Step()
	}
	return nil
}

// StepOnce advances one tick and returns the tick that ran and the digest of
// the resulting state. It is primarily intended for deterministic tests.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick
	w.Step()
	return tick, w.lastDigest
}

// countingSource wraps the seeded source and counts draws so a snapshot can
// restore the generator position by replaying them.
type countingSource struct {
	src   rand.Source64
	draws uint64
}

func newCountingSource(seed int64) *countingSource {
	return &countingSource{src: rand.NewSource(seed).(rand.Source64)}
}

func (s *countingSource) Int63() int64 {
	s.draws++
	return s.src.Int63()
}

func (s *countingSource) Uint64() uint64 {
	s.draws++
	return s.src.Uint64()
}

func (s *countingSource) Seed(seed int64) {
	s.src.Seed(seed)
	s.draws = 0
}

func (s *countingSource) skip(n uint64) {
	for s.draws < n {
		s.Uint64()
	}
}
