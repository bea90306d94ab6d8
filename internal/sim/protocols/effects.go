package protocols

import "tradegrid.ai/internal/sim/model"

// Effect is a declarative intent returned by a protocol. The set is closed.
type Effect interface{ isEffect() }

// SetTarget points an agent at an agent or resource.
type SetTarget struct {
	AgentID int
	Target  model.Target
}

// ClaimResource reserves a resource cell for foraging. First claim wins.
type ClaimResource struct {
	AgentID int
	Pos     model.Pos
}

// ClearTarget drops an agent's current target and leaves it idle.
type ClearTarget struct {
	AgentID int
	Reason  string
}

// Pair forms a symmetric pairing between A and B.
type Pair struct {
	A      int
	B      int
	Reason string
}

// Unpair dissolves the pairing between A and B.
type Unpair struct {
	A      int
	B      int
	Reason string
}

// Trade proposes a trade for the executor to commit.
type Trade struct {
	Trade model.Trade
}

func (SetTarget) isEffect()     {}
func (ClaimResource) isEffect() {}
func (ClearTarget) isEffect()   {}
func (Pair) isEffect()          {}
func (Unpair) isEffect()        {}
func (Trade) isEffect()         {}

// NewPair orders the ids so A < B.
func NewPair(a, b int, reason string) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b, Reason: reason}
}

// NewUnpair orders the ids so A < B.
func NewUnpair(a, b int, reason string) Unpair {
	if a > b {
		a, b = b, a
	}
	return Unpair{A: a, B: b, Reason: reason}
}
