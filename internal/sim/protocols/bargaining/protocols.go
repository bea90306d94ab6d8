package bargaining

import (
	"fmt"
	"math"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/protocols"
)

// CompensatingBlock takes the first mutually improving (quantity, price) in
// enumeration order: largest overlap first, smallest quantity, lowest price.
type CompensatingBlock struct {
	Grid Grid
}

func NewCompensatingBlock(p protocols.Params) (protocols.Bargaining, error) {
	return &CompensatingBlock{Grid: gridFromParams(p)}, nil
}

func (*CompensatingBlock) Name() string { return NameCompensatingBlock }

func (b *CompensatingBlock) Negotiate(ctx protocols.NegotiationContext) []protocols.Effect {
	dirs := Directions(ctx)
	if len(dirs) == 0 {
		return noFeasibleTrade(ctx)
	}
	var found *Candidate
	b.Grid.Each(dirs, func(c Candidate) bool {
		if c.Feasible(ctx.Epsilon) {
			found = &c
			return false
		}
		return true
	})
	if found == nil {
		return noFeasibleTrade(ctx)
	}
	return tradeEffect(ctx, *found, NameCompensatingBlock)
}

// EqualSplit picks, among all mutually improving candidates, the one whose
// surplus division is closest to half each.
type EqualSplit struct {
	Grid Grid
}

func NewEqualSplit(p protocols.Params) (protocols.Bargaining, error) {
	return &EqualSplit{Grid: gridFromParams(p)}, nil
}

func (*EqualSplit) Name() string { return NameEqualSplit }

func (b *EqualSplit) Negotiate(ctx protocols.NegotiationContext) []protocols.Effect {
	dirs := Directions(ctx)
	if len(dirs) == 0 {
		return noFeasibleTrade(ctx)
	}
	var best *Candidate
	bestDev := math.Inf(1)
	b.Grid.Each(dirs, func(c Candidate) bool {
		if !c.Feasible(ctx.Epsilon) {
			return true
		}
		total := c.Outcome.BuyerGain + c.Outcome.SellerGain
		dev := math.Abs(c.Outcome.BuyerGain/total - 0.5)
		if dev < bestDev {
			bestDev = dev
			cc := c
			best = &cc
		}
		return true
	})
	if best == nil {
		return noFeasibleTrade(ctx)
	}
	return tradeEffect(ctx, *best, NameEqualSplit)
}

// ProposerRule selects which side of the pair makes the offer.
type ProposerRule string

const (
	ProposerRandom   ProposerRule = "random"
	ProposerLowerID  ProposerRule = "lower_id"
	ProposerHigherID ProposerRule = "higher_id"
)

// TakeItOrLeaveIt lets one side offer the trade that maximizes its own gain
// among trades the responder strictly accepts.
type TakeItOrLeaveIt struct {
	Grid     Grid
	Proposer ProposerRule
}

func NewTakeItOrLeaveIt(p protocols.Params) (protocols.Bargaining, error) {
	rule := ProposerRule(p.String("proposer", string(ProposerRandom)))
	switch rule {
	case ProposerRandom, ProposerLowerID, ProposerHigherID:
	default:
		return nil, fmt.Errorf("take_it_or_leave_it: unknown proposer rule %q", rule)
	}
	return &TakeItOrLeaveIt{Grid: gridFromParams(p), Proposer: rule}, nil
}

func (*TakeItOrLeaveIt) Name() string { return NameTakeItOrLeaveIt }

// proposer returns the proposing agent id. Only the random rule draws from
// the generator.
func (b *TakeItOrLeaveIt) proposer(ctx protocols.NegotiationContext) int {
	switch b.Proposer {
	case ProposerLowerID:
		return ctx.A.ID
	case ProposerHigherID:
		return ctx.B.ID
	}
	if ctx.Rng != nil && ctx.Rng.Intn(2) == 1 {
		return ctx.B.ID
	}
	return ctx.A.ID
}

func (b *TakeItOrLeaveIt) Negotiate(ctx protocols.NegotiationContext) []protocols.Effect {
	dirs := Directions(ctx)
	if len(dirs) == 0 {
		return noFeasibleTrade(ctx)
	}
	prop := b.proposer(ctx)
	resp := ctx.A.ID
	if prop == ctx.A.ID {
		resp = ctx.B.ID
	}
	var best *Candidate
	bestGain := math.Inf(-1)
	b.Grid.Each(dirs, func(c Candidate) bool {
		if !c.Feasible(ctx.Epsilon) || c.GainOf(resp) <= ctx.Epsilon {
			return true
		}
		if g := c.GainOf(prop); g > bestGain {
			bestGain = g
			cc := c
			best = &cc
		}
		return true
	})
	if best == nil {
		// touching quotes leave the proposer nothing to offer
		if dirs[0].Overlap <= 0 {
			return noFeasibleTrade(ctx)
		}
		return unpair(ctx, protocol.ReasonResponderRejected)
	}
	return tradeEffect(ctx, *best, NameTakeItOrLeaveIt)
}
