// Package bargaining implements negotiation protocols for a single paired
// couple of agents. Each protocol proposes at most one trade per tick.
package bargaining

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/protocol"
	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
)

const (
	NameCompensatingBlock = "compensating_block"
	NameEqualSplit        = "equal_split"
	NameTakeItOrLeaveIt   = "take_it_or_leave_it"
)

const (
	defaultPriceCandidates = 5
	defaultWholeUnitPrices = 32
	defaultMaxQuantity     = 0
)

// Grid controls how (quantity, price) candidates are enumerated.
type Grid struct {
	// PriceCandidates is the number of evenly spaced prices over [ask, bid],
	// endpoints included.
	PriceCandidates int
	// WholeUnitPrices caps, per quantity, the prices added because they make
	// the payment a whole number of numeraire units.
	WholeUnitPrices int
	// MaxQuantity caps the quantity tried; 0 means the seller's whole
	// integer holding.
	MaxQuantity int
}

func gridFromParams(p protocols.Params) Grid {
	g := Grid{
		PriceCandidates: p.Int("price_candidates", defaultPriceCandidates),
		WholeUnitPrices: p.Int("whole_unit_prices", defaultWholeUnitPrices),
		MaxQuantity:     p.Int("max_quantity", defaultMaxQuantity),
	}
	if g.PriceCandidates < 1 {
		g.PriceCandidates = 1
	}
	if g.WholeUnitPrices < 0 {
		g.WholeUnitPrices = 0
	}
	return g
}

// Direction is one (seller, buyer, pair) orientation where bid >= ask.
type Direction struct {
	Seller   protocols.AgentView
	Buyer    protocols.AgentView
	PairType model.PairType
	Ask      decimal.Decimal
	Bid      decimal.Decimal
	Overlap  float64
}

// Candidate is a fully evaluated hypothetical trade.
type Candidate struct {
	Direction
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Payment  decimal.Decimal
	Outcome  protocols.Outcome
}

// Feasible reports whether both sides gain strictly more than eps.
func (c Candidate) Feasible(eps float64) bool {
	return c.Outcome.BuyerGain > eps && c.Outcome.SellerGain > eps
}

// GainOf returns the utility gain of agent id in this candidate.
func (c Candidate) GainOf(id int) float64 {
	if id == c.Buyer.ID {
		return c.Outcome.BuyerGain
	}
	return c.Outcome.SellerGain
}

// Trade converts the candidate into a trade proposal.
func (c Candidate) Trade(tick uint64, protocolName string) model.Trade {
	return model.Trade{
		Tick:       tick,
		BuyerID:    c.Buyer.ID,
		SellerID:   c.Seller.ID,
		PairType:   c.PairType,
		Quantity:   c.Quantity,
		Payment:    c.Payment,
		Price:      c.Price,
		BuyerGain:  c.Outcome.BuyerGain,
		SellerGain: c.Outcome.SellerGain,
		Source:     model.SourceBilateral,
		Protocol:   protocolName,
	}
}

// Directions lists every orientation whose bid reaches the ask, ordered
// by overlap descending, then canonical pair order, then the lower id
// selling first.
func Directions(ctx protocols.NegotiationContext) []Direction {
	var out []Direction
	for _, pt := range ctx.Regime.PairTypes() {
		for _, d := range [2][2]protocols.AgentView{{ctx.A, ctx.B}, {ctx.B, ctx.A}} {
			seller, buyer := d[0], d[1]
			ask, bid := seller.Quotes[pt].Ask, buyer.Quotes[pt].Bid
			if bid.LessThan(ask) {
				continue
			}
			out = append(out, Direction{
				Seller:   seller,
				Buyer:    buyer,
				PairType: pt,
				Ask:      ask,
				Bid:      bid,
				Overlap:  quant.Float(bid.Sub(ask)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Overlap > out[j].Overlap })
	return out
}

// Quantities returns the integer quantities the seller can deliver,
// ascending.
func (g Grid) Quantities(d Direction) []decimal.Decimal {
	avail := d.Seller.Inventory.Get(d.PairType.Good()).IntPart()
	if g.MaxQuantity > 0 && avail > int64(g.MaxQuantity) {
		avail = int64(g.MaxQuantity)
	}
	out := make([]decimal.Decimal, 0, avail)
	for q := int64(1); q <= avail; q++ {
		out = append(out, quant.Int(q))
	}
	return out
}

// Prices returns the candidate prices for quantity q, ascending and
// deduplicated: an even grid over [ask, bid] plus prices whose payment is a
// whole number of numeraire units.
func (g Grid) Prices(d Direction, q decimal.Decimal) []decimal.Decimal {
	var out []decimal.Decimal
	if g.PriceCandidates == 1 {
		out = append(out, quant.Price(d.Ask.Add(d.Bid).Div(decimal.NewFromInt(2))))
	} else {
		step := d.Bid.Sub(d.Ask).Div(decimal.NewFromInt(int64(g.PriceCandidates - 1)))
		for i := 0; i < g.PriceCandidates; i++ {
			out = append(out, quant.Price(d.Ask.Add(step.Mul(decimal.NewFromInt(int64(i))))))
		}
	}
	lo := d.Ask.Mul(q).Ceil().IntPart()
	hi := d.Bid.Mul(q).Floor().IntPart()
	for n, added := lo, 0; n <= hi && added < g.WholeUnitPrices; n, added = n+1, added+1 {
		if n <= 0 {
			continue
		}
		out = append(out, quant.Price(decimal.NewFromInt(n).Div(q)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	uniq := out[:0]
	for i, p := range out {
		if i == 0 || !p.Equal(uniq[len(uniq)-1]) {
			uniq = append(uniq, p)
		}
	}
	return uniq
}

// Each visits every evaluable candidate in enumeration order: directions as
// returned by Directions, quantity ascending, price ascending. Visiting stops
// when fn returns false.
func (g Grid) Each(dirs []Direction, fn func(Candidate) bool) {
	for _, d := range dirs {
		for _, q := range g.Quantities(d) {
			for _, p := range g.Prices(d, q) {
				pay := quant.Payment(q, p)
				out, ok := protocols.Evaluate(d.Buyer, d.Seller, d.PairType, q, pay)
				if !ok {
					continue
				}
				if !fn(Candidate{Direction: d, Quantity: q, Price: p, Payment: pay, Outcome: out}) {
					return
				}
			}
		}
	}
}

func tradeEffect(ctx protocols.NegotiationContext, c Candidate, name string) []protocols.Effect {
	return []protocols.Effect{protocols.Trade{Trade: c.Trade(ctx.Tick, name)}}
}

func unpair(ctx protocols.NegotiationContext, reason string) []protocols.Effect {
	return []protocols.Effect{protocols.NewUnpair(ctx.A.ID, ctx.B.ID, reason)}
}

func noFeasibleTrade(ctx protocols.NegotiationContext) []protocols.Effect {
	return unpair(ctx, protocol.ReasonNoFeasibleTrade)
}
