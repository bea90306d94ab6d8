package world

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
)

// Stats accumulates run totals. It is updated as effects are applied.
type Stats struct {
	Ticks           uint64
	BilateralTrades int
	MarketTrades    int
	// Volume is the traded quantity of the good per exchange pair.
	Volume         map[model.PairType]decimal.Decimal
	PairsFormed    map[string]int
	PairsDissolved map[string]int
	MarketsFormed  int
	MarketClears   int
	NotConverged   int
	Foraged        map[model.Good]decimal.Decimal
}

func newStats() Stats {
	return Stats{
		Volume:         map[model.PairType]decimal.Decimal{},
		PairsFormed:    map[string]int{},
		PairsDissolved: map[string]int{},
		Foraged:        map[model.Good]decimal.Decimal{},
	}
}

func (s *Stats) recordTrade(t model.Trade) {
	if t.Source == model.SourceMarket {
		s.MarketTrades++
	} else {
		s.BilateralTrades++
	}
	s.Volume[t.PairType] = s.Volume[t.PairType].Add(t.Quantity)
}

// Trades is the total number of committed trades.
func (s Stats) Trades() int { return s.BilateralTrades + s.MarketTrades }

// Stats returns a copy of the run totals.
func (w *World) Stats() Stats {
	out := w.stats
	out.Volume = copyMap(w.stats.Volume)
	out.PairsFormed = copyMap(w.stats.PairsFormed)
	out.PairsDissolved = copyMap(w.stats.PairsDissolved)
	out.Foraged = copyMap(w.stats.Foraged)
	return out
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LogValue renders the summary as a structured log group.
func (s Stats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("ticks", s.Ticks),
		slog.Int("trades_bilateral", s.BilateralTrades),
		slog.Int("trades_market", s.MarketTrades),
		slog.Int("markets_formed", s.MarketsFormed),
		slog.Int("market_clears", s.MarketClears),
		slog.Int("market_not_converged", s.NotConverged),
	}
	for _, pt := range []model.PairType{model.PairAB, model.PairAM, model.PairBM} {
		if v, ok := s.Volume[pt]; ok {
			attrs = append(attrs, slog.String("volume_"+pt.String(), v.String()))
		}
	}
	for _, k := range sortedKeys(s.PairsFormed) {
		attrs = append(attrs, slog.Int("paired_"+k, s.PairsFormed[k]))
	}
	for _, k := range sortedKeys(s.PairsDissolved) {
		attrs = append(attrs, slog.Int("unpaired_"+k, s.PairsDissolved[k]))
	}
	for _, g := range []model.Good{model.GoodA, model.GoodB} {
		if v, ok := s.Foraged[g]; ok {
			attrs = append(attrs, slog.String("foraged_"+g.String(), v.String()))
		}
	}
	return slog.GroupValue(attrs...)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
