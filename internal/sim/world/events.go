package world

import (
	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/market"
	"tradegrid.ai/internal/sim/model"
)

func (w *World) emitEvent(e protocol.Event) {
	w.events = append(w.events, e)
}

func tradeEvent(t model.Trade) protocol.Event {
	return protocol.Event{
		Tick:   t.Tick,
		Type:   protocol.EventTrade,
		Agents: sortedPair(t.BuyerID, t.SellerID),
		Trade: &protocol.TradeEvent{
			BuyerID:    t.BuyerID,
			SellerID:   t.SellerID,
			PairType:   t.PairType.String(),
			Good:       t.PairType.Good().String(),
			Numeraire:  t.PairType.Numeraire().String(),
			Quantity:   t.Quantity.String(),
			Payment:    t.Payment.String(),
			Price:      t.Price.String(),
			BuyerGain:  t.BuyerGain,
			SellerGain: t.SellerGain,
			Source:     string(t.Source),
			Protocol:   t.Protocol,
		},
	}
}

func marketEvent(tick uint64, typ string, a *market.Area) protocol.Event {
	return protocol.Event{
		Tick:   tick,
		Type:   typ,
		Agents: append([]int(nil), a.Participants...),
		Market: &protocol.MarketEvent{
			MarketID:     a.ID,
			Center:       [2]int{a.Center.X, a.Center.Y},
			Participants: len(a.Participants),
		},
	}
}

func clearEvent(tick uint64, a *market.Area, r market.Result) protocol.Event {
	e := marketEvent(tick, protocol.EventMarketClear, a)
	e.Market.Commodity = r.PairType.Good().String()
	e.Market.Numeraire = r.PairType.Numeraire().String()
	e.Market.Price = r.Price.String()
	e.Market.Quantity = r.Quantity.String()
	e.Market.Converged = r.Converged
	e.Market.Iterations = r.Iterations
	return e
}

// AgentStates renders every agent as a TICK row, ascending by id.
func (w *World) AgentStates() []protocol.AgentState {
	out := make([]protocol.AgentState, 0, len(w.agents))
	for _, a := range w.agents {
		s := protocol.AgentState{
			ID:        a.ID,
			Pos:       [2]int{a.Pos.X, a.Pos.Y},
			A:         a.Inventory.A.String(),
			B:         a.Inventory.B.String(),
			M:         a.Inventory.M.String(),
			PartnerID: a.PartnerID,
		}
		if a.Target.Kind != model.TargetNone {
			s.Target = a.Target.Kind.String()
		}
		out = append(out, s)
	}
	return out
}

func (w *World) tickMsg(tick uint64, digest string, events []protocol.Event) protocol.TickMsg {
	if events == nil {
		events = []protocol.Event{}
	}
	return protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		RunID:           w.runID,
		Tick:            tick,
		Digest:          digest,
		Events:          events,
		Agents:          w.AgentStates(),
	}
}
