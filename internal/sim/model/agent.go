// Package model holds the simulation's agent, inventory and trade records.
package model

import (
	"sort"

	"tradegrid.ai/internal/sim/utility"
)

// NoAgent marks an absent agent reference (no partner, no target agent).
const NoAgent = -1

// Pos is an integer grid coordinate.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Manhattan returns |dx| + |dy|.
func Manhattan(a, b Pos) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

// Less orders positions row-major (y, then x).
func (p Pos) Less(o Pos) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.X < o.X
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetAgent
	TargetResource
)

func (k TargetKind) String() string {
	switch k {
	case TargetAgent:
		return "agent"
	case TargetResource:
		return "resource"
	}
	return "none"
}

// Target is what an agent is currently moving toward.
type Target struct {
	Kind    TargetKind `json:"kind"`
	AgentID int        `json:"agent_id"`
	Pos     Pos        `json:"pos"`
}

func NoTarget() Target { return Target{Kind: TargetNone, AgentID: NoAgent} }

type Agent struct {
	ID  int
	Pos Pos

	Inventory Inventory
	Utility   utility.Utility
	// Lambda is the marginal utility of money.
	Lambda float64

	Quotes      Quotes
	QuotesStale bool

	PartnerID int
	// PairedTick is the tick the current pairing formed.
	PairedTick uint64
	// Cooldowns maps former partner id to the first tick re-pairing is allowed.
	Cooldowns map[int]uint64

	Target Target
	// Claim is the resource cell this agent holds a forage claim on.
	Claim *Pos
}

func NewAgent(id int, pos Pos, inv Inventory, u utility.Utility, lambda float64) *Agent {
	return &Agent{
		ID:          id,
		Pos:         pos,
		Inventory:   inv,
		Utility:     u,
		Lambda:      lambda,
		QuotesStale: true,
		PartnerID:   NoAgent,
		Cooldowns:   map[int]uint64{},
		Target:      NoTarget(),
	}
}

func (a *Agent) Paired() bool { return a.PartnerID != NoAgent }

// OnCooldown reports whether pairing with other is blocked at nowTick.
func (a *Agent) OnCooldown(other int, nowTick uint64) bool {
	until, ok := a.Cooldowns[other]
	return ok && nowTick < until
}

// PruneCooldowns drops expired cooldown entries.
func (a *Agent) PruneCooldowns(nowTick uint64) {
	for id, until := range a.Cooldowns {
		if nowTick >= until {
			delete(a.Cooldowns, id)
		}
	}
}

// CooldownIDs returns partner ids with cooldown entries, ascending.
func (a *Agent) CooldownIDs() []int {
	ids := make([]int, 0, len(a.Cooldowns))
	for id := range a.Cooldowns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TotalUtility is U(A,B) + λ·M.
func TotalUtility(u utility.Utility, lambda float64, inv Inventory) float64 {
	a, b, m := inv.Floats()
	return u.Value(a, b) + lambda*m
}

// SortAgents orders agents by id ascending in place.
func SortAgents(agents []*Agent) {
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
}
