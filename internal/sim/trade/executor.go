// Package trade commits trades to agent inventories. It is the only code
// path that moves goods between agents.
package trade

import (
	"fmt"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/quant"
)

// Invariant names carried by InvariantViolation.
const (
	InvUnknownAgent = "unknown_agent"
	InvSelfTrade    = "self_trade"
	InvQuantity     = "quantity"
	InvInsufficient = "insufficient_inventory"
	InvConservation = "conservation"
	InvNonNegative  = "non_negative"
	InvPairing      = "pairing"
	InvMutation     = "protocol_mutation"
	InvSpatial      = "spatial_index"
	InvEffect       = "effect_contract"
)

// InvariantViolation is the panic value raised when a simulation invariant
// is breached. It signals a bug, never a recoverable outcome.
type InvariantViolation struct {
	Invariant string
	Tick      uint64
	Detail    string
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated at tick %d: %s", v.Invariant, v.Tick, v.Detail)
}

// Violate panics with an InvariantViolation.
func Violate(invariant string, tick uint64, format string, args ...any) {
	panic(InvariantViolation{Invariant: invariant, Tick: tick, Detail: fmt.Sprintf(format, args...)})
}

// Lookup resolves an agent id; nil means unknown.
type Lookup func(id int) *model.Agent

// Executor validates and commits trades.
type Executor struct {
	lookup Lookup
	count  int
}

func NewExecutor(lookup Lookup) *Executor {
	return &Executor{lookup: lookup}
}

// Count is the number of trades committed so far.
func (e *Executor) Count() int { return e.count }

// Apply commits t and returns it. Any breach of sufficiency, conservation
// or non-negativity panics with an InvariantViolation before inventories
// change. Both agents' quotes are marked stale.
func (e *Executor) Apply(t model.Trade) model.Trade {
	buyer, seller := e.lookup(t.BuyerID), e.lookup(t.SellerID)
	if buyer == nil || seller == nil {
		Violate(InvUnknownAgent, t.Tick, "buyer=%d seller=%d", t.BuyerID, t.SellerID)
	}
	if buyer == seller {
		Violate(InvSelfTrade, t.Tick, "agent %d trades with itself", t.BuyerID)
	}
	if !t.Quantity.IsPositive() || t.Payment.IsNegative() {
		Violate(InvQuantity, t.Tick, "quantity=%s payment=%s", t.Quantity, t.Payment)
	}
	if !t.Quantity.Equal(quant.Q(t.Quantity)) || !t.Payment.Equal(quant.Q(t.Payment)) {
		Violate(InvQuantity, t.Tick, "unquantized quantity=%s payment=%s", t.Quantity, t.Payment)
	}
	g, n := t.PairType.Good(), t.PairType.Numeraire()
	if seller.Inventory.Get(g).LessThan(t.Quantity) {
		Violate(InvInsufficient, t.Tick, "seller %d has %s %s, owes %s", seller.ID, seller.Inventory.Get(g), g, t.Quantity)
	}
	if buyer.Inventory.Get(n).LessThan(t.Payment) {
		Violate(InvInsufficient, t.Tick, "buyer %d has %s %s, owes %s", buyer.ID, buyer.Inventory.Get(n), n, t.Payment)
	}
	if !t.Conserves() {
		Violate(InvConservation, t.Tick, "trade %+v", t)
	}
	bd, sd := t.Deltas()
	nb, ns := buyer.Inventory.Apply(bd), seller.Inventory.Apply(sd)
	if !nb.NonNegative() || !ns.NonNegative() {
		Violate(InvNonNegative, t.Tick, "buyer=%s seller=%s", nb, ns)
	}
	before := buyer.Inventory.Get(g).Add(seller.Inventory.Get(g))
	if !before.Equal(nb.Get(g).Add(ns.Get(g))) {
		Violate(InvConservation, t.Tick, "good %s total changed", g)
	}

	buyer.Inventory, seller.Inventory = nb, ns
	buyer.QuotesStale, seller.QuotesStale = true, true
	e.count++
	return t
}
