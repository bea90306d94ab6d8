// Package matching implements pairing protocols that turn every agent's
// ranked preferences into a conflict-free set of bilateral pairings.
package matching

import (
	"sort"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
)

const (
	NameThreePass     = "three_pass"
	NameRandom        = "random"
	NameGreedySurplus = "greedy_surplus"
)

// round tracks who is taken while one FindMatches call runs.
type round struct {
	ctx     protocols.MatchContext
	prefs   map[int][]protocols.Preference
	taken   map[int]bool
	effects []protocols.Effect
}

func newRound(prefs map[int][]protocols.Preference, ctx protocols.MatchContext) *round {
	return &round{ctx: ctx, prefs: prefs, taken: map[int]bool{}}
}

// free reports whether id exists, is not paired from earlier ticks, and has
// not been matched in this round.
func (r *round) free(id int) bool {
	if _, ok := r.ctx.Agents[id]; !ok {
		return false
	}
	if _, paired := r.ctx.Paired[id]; paired {
		return false
	}
	return !r.taken[id]
}

func (r *round) canPair(a, b int) bool {
	if a == b || !r.free(a) || !r.free(b) {
		return false
	}
	return r.ctx.Cooldown == nil || !r.ctx.Cooldown(a, b)
}

func (r *round) pair(a, b int, reason string) {
	r.taken[a] = true
	r.taken[b] = true
	r.effects = append(r.effects, protocols.NewPair(a, b, reason))
}

// seekers returns unpaired agents whose top preference is a trade partner,
// ascending by id.
func (r *round) seekers() []int {
	var ids []int
	for id, prefs := range r.prefs {
		if len(prefs) == 0 || !prefs[0].IsAgent() {
			continue
		}
		if _, paired := r.ctx.Paired[id]; paired {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// fallback sends seekers left without a partner to their best forage site,
// or leaves them idle.
func (r *round) fallback(seekers []int) {
	for _, id := range seekers {
		if r.taken[id] {
			continue
		}
		if r.ctx.Mode.AllowsForage() {
			if best, ok := protocols.BestResource(r.prefs[id]); ok {
				r.effects = append(r.effects,
					protocols.SetTarget{AgentID: id, Target: best.Target},
					protocols.ClaimResource{AgentID: id, Pos: best.Target.Pos},
				)
				continue
			}
		}
		r.effects = append(r.effects, protocols.ClearTarget{AgentID: id, Reason: protocol.ReasonNoPartner})
	}
}

func topAgent(prefs []protocols.Preference) (int, bool) {
	for _, p := range prefs {
		if p.IsAgent() {
			return p.Target.AgentID, true
		}
	}
	return model.NoAgent, false
}

// ThreePass pairs mutual top choices, then greedily by score, then sends the
// rest to a fallback activity.
type ThreePass struct{}

func NewThreePass(protocols.Params) (protocols.Matching, error) { return ThreePass{}, nil }

func (ThreePass) Name() string { return NameThreePass }

func (ThreePass) FindMatches(prefs map[int][]protocols.Preference, ctx protocols.MatchContext) []protocols.Effect {
	r := newRound(prefs, ctx)
	seekers := r.seekers()

	// Pass 1: mutual consent, handled once by the lower id.
	for _, id := range seekers {
		if !r.free(id) {
			continue
		}
		top, ok := topAgent(prefs[id])
		if !ok || top < id {
			continue
		}
		// consent needs id at the very top of the other list, ahead of any
		// forage site
		back := prefs[top]
		if len(back) > 0 && back[0].IsAgent() && back[0].Target.AgentID == id && r.canPair(id, top) {
			r.pair(id, top, protocol.ReasonMutualConsent)
		}
	}

	// Pass 2: greedy over every remaining (agent, candidate, score).
	type triple struct {
		agent, candidate int
		score            float64
	}
	var triples []triple
	for _, id := range seekers {
		if !r.free(id) {
			continue
		}
		for _, p := range prefs[id] {
			if p.IsAgent() && r.free(p.Target.AgentID) {
				triples = append(triples, triple{agent: id, candidate: p.Target.AgentID, score: p.Score})
			}
		}
	}
	sort.SliceStable(triples, func(i, j int) bool {
		a, b := triples[i], triples[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.agent != b.agent {
			return a.agent < b.agent
		}
		return a.candidate < b.candidate
	})
	for _, t := range triples {
		if r.canPair(t.agent, t.candidate) {
			r.pair(t.agent, t.candidate, protocol.ReasonGreedyFallback)
		}
	}

	// Pass 3: cleanup.
	r.fallback(seekers)
	return r.effects
}

// Random shuffles trade seekers with the context generator and pairs them
// sequentially.
type Random struct{}

func NewRandom(protocols.Params) (protocols.Matching, error) { return Random{}, nil }

func (Random) Name() string { return NameRandom }

func (Random) FindMatches(prefs map[int][]protocols.Preference, ctx protocols.MatchContext) []protocols.Effect {
	r := newRound(prefs, ctx)
	seekers := r.seekers()
	order := append([]int(nil), seekers...)
	if ctx.Rng != nil {
		ctx.Rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	for i := 0; i+1 < len(order); i += 2 {
		if r.canPair(order[i], order[i+1]) {
			r.pair(order[i], order[i+1], protocol.ReasonRandomMatch)
		}
	}
	r.fallback(seekers)
	return r.effects
}

// GreedySurplus is a central planner: it ranks every candidate pair by
// distance-discounted total surplus and assigns greedily without asking
// either side. One side may lose utility.
type GreedySurplus struct{}

func NewGreedySurplus(protocols.Params) (protocols.Matching, error) { return GreedySurplus{}, nil }

func (GreedySurplus) Name() string { return NameGreedySurplus }

type candidatePair struct {
	lo, hi int
	total  float64
}

func (GreedySurplus) FindMatches(prefs map[int][]protocols.Preference, ctx protocols.MatchContext) []protocols.Effect {
	r := newRound(prefs, ctx)
	seekers := r.seekers()

	seen := map[[2]int]bool{}
	var cands []candidatePair
	for _, id := range seekers {
		for _, p := range prefs[id] {
			if !p.IsAgent() {
				continue
			}
			lo, hi := id, p.Target.AgentID
			if lo > hi {
				lo, hi = hi, lo
			}
			key := [2]int{lo, hi}
			if seen[key] || !r.canPair(lo, hi) {
				continue
			}
			seen[key] = true
			total, ok := TotalSurplus(ctx.Agents[lo], ctx.Agents[hi], ctx.Regime)
			if !ok {
				continue
			}
			d := model.Manhattan(ctx.Agents[lo].Pos, ctx.Agents[hi].Pos)
			cands = append(cands, candidatePair{lo: lo, hi: hi, total: protocols.Discount(total, ctx.Beta, d)})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.total != b.total {
			return a.total > b.total
		}
		if a.lo != b.lo {
			return a.lo < b.lo
		}
		return a.hi < b.hi
	})
	for _, c := range cands {
		if c.total > 0 && r.canPair(c.lo, c.hi) {
			r.pair(c.lo, c.hi, protocol.ReasonCentralPlanner)
		}
	}
	r.fallback(seekers)
	return r.effects
}

// TotalSurplus is the best summed utility change of a one-unit trial trade
// between a and b over open pairs and both directions.
func TotalSurplus(a, b protocols.AgentView, regime model.Regime) (float64, bool) {
	best := 0.0
	found := false
	for _, pt := range regime.PairTypes() {
		for _, dir := range [2][2]protocols.AgentView{{a, b}, {b, a}} {
			out, ok := protocols.UnitTrial(dir[0], dir[1], pt)
			if !ok {
				continue
			}
			total := out.BuyerGain + out.SellerGain
			if !found || total > best {
				best, found = total, true
			}
		}
	}
	return best, found
}
