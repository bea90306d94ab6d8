// Package protocols defines the three behavioral protocol families the
// decision pipeline dispatches to (search, matching, bargaining), the
// read-only views they receive, and the effects they return.
//
// Protocols never mutate simulation state. Every intent is expressed as an
// Effect and applied by the world between phases.
package protocols

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/utility"
)

type Category string

const (
	CategorySearch     Category = "search"
	CategoryMatching   Category = "matching"
	CategoryBargaining Category = "bargaining"
)

// Search ranks an agent's candidate targets.
type Search interface {
	Name() string
	// BuildPreferences returns candidates ordered by SortPreferences.
	BuildPreferences(view WorldView, rng *rand.Rand) []Preference
	// SelectTarget returns the target intent for the agent's top preference.
	SelectTarget(view WorldView, rng *rand.Rand) []Effect
}

// Matching resolves preference lists into conflict-free pairings.
type Matching interface {
	Name() string
	FindMatches(prefs map[int][]Preference, ctx MatchContext) []Effect
}

// Bargaining negotiates a trade for one pair or dissolves it.
type Bargaining interface {
	Name() string
	// Negotiate returns exactly one Trade, exactly one Unpair, or nothing.
	Negotiate(ctx NegotiationContext) []Effect
}

// Mode selects which activities agents pursue this tick.
type Mode string

const (
	ModeTrade  Mode = "trade"
	ModeForage Mode = "forage"
	ModeBoth   Mode = "both"
)

func (m Mode) AllowsTrade() bool  { return m == ModeTrade || m == ModeBoth }
func (m Mode) AllowsForage() bool { return m == ModeForage || m == ModeBoth }

// Env carries the run parameters every protocol may read.
type Env struct {
	Tick              uint64
	Beta              float64
	Epsilon           float64
	Regime            model.Regime
	Mode              Mode
	VisionRadius      int
	InteractionRadius int
	ForageRate        decimal.Decimal
}

// AgentView is a read-only copy of the fields protocols may inspect.
type AgentView struct {
	ID        int
	Pos       model.Pos
	Inventory model.Inventory
	Quotes    model.Quotes
	Utility   utility.Utility
	Lambda    float64
	PartnerID int
}

// TotalUtility evaluates the agent's utility at inventory inv.
func (v AgentView) TotalUtility(inv model.Inventory) float64 {
	return model.TotalUtility(v.Utility, v.Lambda, inv)
}

type NeighborView struct {
	AgentView
	Distance   int
	OnCooldown bool
}

type ResourceView struct {
	Pos      model.Pos
	Good     model.Good
	Amount   decimal.Decimal
	Distance int
	// ClaimedByOther is set when another agent holds the forage claim.
	ClaimedByOther bool
}

// WorldView is one agent's immutable snapshot of its surroundings.
// Neighbors are ascending by id; Resources are row-major by position.
type WorldView struct {
	Env
	Self      AgentView
	Neighbors []NeighborView
	Resources []ResourceView
}

// MatchContext gives matching protocols the pairing state they must respect.
type MatchContext struct {
	Env
	// Agents holds every agent, keyed by id.
	Agents map[int]AgentView
	// Paired maps each already-paired agent to its partner.
	Paired map[int]int
	// Cooldown reports whether a and b may not pair this tick.
	Cooldown func(a, b int) bool
	Rng      *rand.Rand
}

// NegotiationContext is the typed input to a bargaining protocol. A.ID < B.ID.
type NegotiationContext struct {
	Env
	A   AgentView
	B   AgentView
	Rng *rand.Rand
}

// ViewOf copies the protocol-visible fields of a.
func ViewOf(a *model.Agent) AgentView {
	return AgentView{
		ID:        a.ID,
		Pos:       a.Pos,
		Inventory: a.Inventory,
		Quotes:    a.Quotes,
		Utility:   a.Utility,
		Lambda:    a.Lambda,
		PartnerID: a.PartnerID,
	}
}
