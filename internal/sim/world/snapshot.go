package world

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/persistence/snapshot"
	"tradegrid.ai/internal/sim/market"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/utility"
)

// ExportSnapshot captures the state at the current tick boundary.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   w.runID,
			Tick:    w.tick,
			Digest:  w.StateDigest(),
		},
		Seed:         w.cfg.Seed,
		RngDraws:     w.src.draws,
		Mode:         string(w.mode),
		NextMarketID: w.markets.NextID(),
	}
	for _, a := range w.agents {
		spec := a.Utility.Spec()
		av := snapshot.AgentV1{
			ID:        a.ID,
			Pos:       [2]int{a.Pos.X, a.Pos.Y},
			Inventory: [3]string{a.Inventory.A.String(), a.Inventory.B.String(), a.Inventory.M.String()},
			Utility:   snapshot.UtilityV1{Type: spec.Type, Params: spec.Params},
			Lambda:    a.Lambda,
			PartnerID: a.PartnerID,
			PairedAt:  a.PairedTick,
			Target: snapshot.TargetV1{
				Kind:    uint8(a.Target.Kind),
				AgentID: a.Target.AgentID,
				Pos:     [2]int{a.Target.Pos.X, a.Target.Pos.Y},
			},
		}
		if len(a.Cooldowns) > 0 {
			av.Cooldowns = copyMap(a.Cooldowns)
		}
		if a.Claim != nil {
			c := [2]int{a.Claim.X, a.Claim.Y}
			av.Claim = &c
		}
		snap.Agents = append(snap.Agents, av)
	}
	for _, p := range sortedPositions(w.resources) {
		r := w.resources[p]
		snap.Resources = append(snap.Resources, snapshot.ResourceV1{
			Pos:         [2]int{p.X, p.Y},
			Good:        uint8(r.Good),
			Amount:      r.Amount.String(),
			ClaimedBy:   r.ClaimedBy,
			LastHarvest: r.LastHarvest,
			Harvested:   r.Harvested,
		})
	}
	for _, a := range w.markets.Areas() {
		mv := snapshot.MarketV1{
			ID:           a.ID,
			Center:       [2]int{a.Center.X, a.Center.Y},
			Participants: append([]int(nil), a.Participants...),
			FormedTick:   a.FormedTick,
			BelowTicks:   a.BelowTicks,
			Prices:       map[string]string{},
			Volume:       a.Volume.String(),
			Trades:       a.Trades,
			Clears:       a.Clears,
		}
		for pt, p := range a.Prices {
			mv.Prices[pt.String()] = p.String()
		}
		snap.Markets = append(snap.Markets, mv)
	}
	snap.Stats = snapshot.StatsV1{
		Ticks:           w.stats.Ticks,
		BilateralTrades: w.stats.BilateralTrades,
		MarketTrades:    w.stats.MarketTrades,
		Volume:          map[string]string{},
		PairsFormed:     copyMap(w.stats.PairsFormed),
		PairsDissolved:  copyMap(w.stats.PairsDissolved),
		MarketsFormed:   w.stats.MarketsFormed,
		MarketClears:    w.stats.MarketClears,
		NotConverged:    w.stats.NotConverged,
		Foraged:         map[string]string{},
	}
	for pt, v := range w.stats.Volume {
		snap.Stats.Volume[pt.String()] = v.String()
	}
	for g, v := range w.stats.Foraged {
		snap.Stats.Foraged[g.String()] = v.String()
	}
	return snap
}

// Restore rebuilds a world from cfg and replaces its state with snap. The
// generator is re-seeded and advanced past the draws already consumed, so
// the resumed run continues exactly where the exporting run stopped.
func Restore(cfg Config, snap snapshot.SnapshotV1, opts ...Option) (*World, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	if snap.Seed != cfg.Seed {
		return nil, fmt.Errorf("snapshot seed %d does not match config seed %d", snap.Seed, cfg.Seed)
	}
	bare := cfg
	bare.Agents = nil
	bare.Population = PopulationInit{}
	bare.ResourceDensity = 0
	w, err := New(bare, opts...)
	if err != nil {
		return nil, err
	}
	w.cfg.Agents = cfg.Agents
	w.cfg.Population = cfg.Population
	w.cfg.ResourceDensity = cfg.ResourceDensity
	if snap.Header.RunID != "" {
		w.runID = snap.Header.RunID
	}

	for _, av := range snap.Agents {
		inv, err := parseInventory(av.Inventory)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", av.ID, err)
		}
		u, err := utility.New(utility.Spec{Type: av.Utility.Type, Params: av.Utility.Params})
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", av.ID, err)
		}
		a := model.NewAgent(av.ID, model.Pos{X: av.Pos[0], Y: av.Pos[1]}, inv, u, av.Lambda)
		a.PartnerID = av.PartnerID
		a.PairedTick = av.PairedAt
		for id, until := range av.Cooldowns {
			a.Cooldowns[id] = until
		}
		a.Target = model.Target{
			Kind:    model.TargetKind(av.Target.Kind),
			AgentID: av.Target.AgentID,
			Pos:     model.Pos{X: av.Target.Pos[0], Y: av.Target.Pos[1]},
		}
		if av.Claim != nil {
			a.Claim = &model.Pos{X: av.Claim[0], Y: av.Claim[1]}
		}
		if _, dup := w.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %d", a.ID)
		}
		w.agents = append(w.agents, a)
		w.byID[a.ID] = a
		w.idx.AddOrUpdate(a.ID, a.Pos)
	}
	model.SortAgents(w.agents)

	for _, rv := range snap.Resources {
		amt, err := quant.Parse(rv.Amount)
		if err != nil {
			return nil, fmt.Errorf("resource %v: %w", rv.Pos, err)
		}
		p := model.Pos{X: rv.Pos[0], Y: rv.Pos[1]}
		w.resources[p] = &Resource{
			Pos:         p,
			Good:        model.Good(rv.Good),
			Amount:      amt,
			ClaimedBy:   rv.ClaimedBy,
			LastHarvest: rv.LastHarvest,
			Harvested:   rv.Harvested,
		}
	}

	areas := make([]*market.Area, 0, len(snap.Markets))
	for _, mv := range snap.Markets {
		a := &market.Area{
			ID:           mv.ID,
			Center:       model.Pos{X: mv.Center[0], Y: mv.Center[1]},
			Participants: append([]int(nil), mv.Participants...),
			FormedTick:   mv.FormedTick,
			BelowTicks:   mv.BelowTicks,
			Prices:       map[model.PairType]decimal.Decimal{},
			Trades:       mv.Trades,
			Clears:       mv.Clears,
		}
		if a.Volume, err = quant.Parse(mv.Volume); err != nil {
			return nil, fmt.Errorf("market %d volume: %w", mv.ID, err)
		}
		for k, v := range mv.Prices {
			var pt model.PairType
			if err := pt.UnmarshalText([]byte(k)); err != nil {
				return nil, fmt.Errorf("market %d: %w", mv.ID, err)
			}
			if a.Prices[pt], err = quant.ParsePrice(v); err != nil {
				return nil, fmt.Errorf("market %d price: %w", mv.ID, err)
			}
		}
		areas = append(areas, a)
	}
	w.markets.Restore(areas, snap.NextMarketID)

	if err := w.restoreStats(snap.Stats); err != nil {
		return nil, err
	}
	w.tick = snap.Header.Tick
	w.mode = protocols.Mode(snap.Mode)
	w.src.Seed(cfg.Seed)
	w.rng = rand.New(w.src)
	w.src.skip(snap.RngDraws)
	w.refreshQuotes(true)
	w.checkInvariants(w.tick)

	w.lastDigest = w.StateDigest()
	if snap.Header.Digest != "" && snap.Header.Digest != w.lastDigest {
		return nil, fmt.Errorf("snapshot digest mismatch at tick %d: stored %s, rebuilt %s", w.tick, snap.Header.Digest, w.lastDigest)
	}
	return w, nil
}

func (w *World) restoreStats(s snapshot.StatsV1) error {
	st := newStats()
	st.Ticks = s.Ticks
	st.BilateralTrades = s.BilateralTrades
	st.MarketTrades = s.MarketTrades
	st.MarketsFormed = s.MarketsFormed
	st.MarketClears = s.MarketClears
	st.NotConverged = s.NotConverged
	for k, v := range s.PairsFormed {
		st.PairsFormed[k] = v
	}
	for k, v := range s.PairsDissolved {
		st.PairsDissolved[k] = v
	}
	for k, v := range s.Volume {
		var pt model.PairType
		if err := pt.UnmarshalText([]byte(k)); err != nil {
			return err
		}
		d, err := quant.Parse(v)
		if err != nil {
			return err
		}
		st.Volume[pt] = d
	}
	for k, v := range s.Foraged {
		d, err := quant.Parse(v)
		if err != nil {
			return err
		}
		for _, g := range model.AllGoods {
			if g.String() == k {
				st.Foraged[g] = d
			}
		}
	}
	w.stats = st
	return nil
}

func parseInventory(s [3]string) (model.Inventory, error) {
	var vals [3]decimal.Decimal
	for i, v := range s {
		d, err := quant.Parse(v)
		if err != nil {
			return model.Inventory{}, err
		}
		vals[i] = d
	}
	return model.NewInventory(vals[0], vals[1], vals[2]), nil
}
