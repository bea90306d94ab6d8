package market

import (
	"math"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/protocols"
	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/trade"
)

// Commodities returns the pairs cleared in a market under regime r: both
// goods against money when money is open, otherwise A against B.
func Commodities(r model.Regime) []model.PairType {
	if r == model.RegimeBarter {
		return []model.PairType{model.PairAB}
	}
	return []model.PairType{model.PairAM, model.PairBM}
}

// Result summarizes one commodity's clearing.
type Result struct {
	MarketID   int
	PairType   model.PairType
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Converged  bool
	Iterations int
	Trades     []model.Trade
}

// ledger tracks what each participant has already committed in this pass
// so that clearing a later commodity cannot spend the same holdings. net
// holds every leg's effect, receipts included, for valuing later legs.
type ledger struct {
	spent map[int]model.Inventory
	net   map[int]model.Inventory
}

func newLedger() ledger {
	return ledger{spent: map[int]model.Inventory{}, net: map[int]model.Inventory{}}
}

func (l ledger) available(v protocols.AgentView, g model.Good) decimal.Decimal {
	c := l.spent[v.ID]
	return v.Inventory.Get(g).Sub(c.Get(g))
}

// current is v with every leg booked so far applied to its inventory.
func (l ledger) current(v protocols.AgentView) protocols.AgentView {
	v.Inventory = v.Inventory.Apply(l.net[v.ID])
	return v
}

func (l ledger) book(t model.Trade) {
	g, n := t.PairType.Good(), t.PairType.Numeraire()
	l.move(t.BuyerID, n, t.Payment, g, t.Quantity)
	l.move(t.SellerID, g, t.Quantity, n, t.Payment)
}

func (l ledger) move(id int, out model.Good, outAmt decimal.Decimal, in model.Good, inAmt decimal.Decimal) {
	s := l.spent[id]
	s.Add(out, outAmt)
	l.spent[id] = s
	d := l.net[id]
	d.Add(out, outAmt.Neg())
	d.Add(in, inAmt)
	l.net[id] = d
}

type participant struct {
	view protocols.AgentView
	// r is the reservation price of the good in numeraire.
	r float64
}

// Clear runs tatonnement for every commodity open under regime in area a and
// commits the resulting trades through exec. views holds the current state
// of every participant.
func (m *Manager) Clear(tick uint64, a *Area, views map[int]protocols.AgentView, regime model.Regime, exec *trade.Executor) []Result {
	var parts []participant
	book := newLedger()
	var results []Result
	for _, pt := range Commodities(regime) {
		parts = parts[:0]
		for _, id := range a.Participants {
			v, ok := views[id]
			if !ok {
				continue
			}
			q := model.ComputeQuotes(v.Utility, v.Lambda, v.Inventory, model.QuoteParams{Epsilon: m.cfg.Epsilon, Regime: regime})
			parts = append(parts, participant{view: v, r: quant.Float(q[pt].Ask)})
		}
		if len(parts) < 2 {
			continue
		}
		results = append(results, m.clearOne(tick, a, pt, parts, book))
	}

	for i := range results {
		for j, t := range results[i].Trades {
			results[i].Trades[j] = exec.Apply(t)
		}
		a.Prices[results[i].PairType] = results[i].Price
		a.Volume = a.Volume.Add(results[i].Quantity)
		a.Trades += len(results[i].Trades)
	}
	if len(results) > 0 {
		a.Clears++
	}
	return results
}

func (m *Manager) warmPrice(a *Area, pt model.PairType, parts []participant) float64 {
	if p, ok := a.Prices[pt]; ok && p.IsPositive() {
		return quant.Float(p)
	}
	sum, n := 0.0, 0
	for _, p := range parts {
		if p.r > 0 {
			sum += p.r
			n++
		}
	}
	if n == 0 {
		return math.Max(1, m.cfg.MinPrice)
	}
	return math.Max(sum/float64(n), m.cfg.MinPrice)
}

// demand is the signed quantity of the good participant p wants at price:
// positive to buy, negative to sell, clamped by what the ledger leaves.
func (m *Manager) demand(p participant, pt model.PairType, price float64, book ledger) float64 {
	d := m.cfg.Responsiveness * (p.r - price) / price
	if d > 0 {
		budget := quant.Float(book.available(p.view, pt.Numeraire())) / price
		return math.Max(0, math.Min(d, budget))
	}
	stock := quant.Float(book.available(p.view, pt.Good()))
	return -math.Max(0, math.Min(-d, stock))
}

func (m *Manager) excess(pt model.PairType, price float64, parts []participant, book ledger) float64 {
	z := 0.0
	for _, p := range parts {
		z += m.demand(p, pt, price, book)
	}
	return z
}

func (m *Manager) clearOne(tick uint64, a *Area, pt model.PairType, parts []participant, book ledger) Result {
	price := m.warmPrice(a, pt, parts)
	res := Result{MarketID: a.ID, PairType: pt}
	maxIter := m.cfg.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}
	for k := 1; k <= maxIter; k++ {
		res.Iterations = k
		z := m.excess(pt, price, parts, book)
		if math.Abs(z) < m.cfg.Tolerance {
			res.Converged = true
			break
		}
		price = math.Max(m.cfg.MinPrice, price+m.cfg.AdjustmentSpeed*z)
	}
	if !res.Converged {
		m.log.Warn("market did not converge", "tick", tick, "market", a.ID, "pair", pt.String(), "iterations", res.Iterations, "price", price)
	}
	res.Price = quant.PriceFromFloat(price)
	if !res.Price.IsPositive() {
		res.Price = decimal.New(1, -quant.PriceScale)
	}
	res.Trades = m.allocate(tick, pt, res.Price, parts, book)
	for _, t := range res.Trades {
		res.Quantity = res.Quantity.Add(t.Quantity)
	}
	return res
}

type order struct {
	view protocols.AgentView
	qty  decimal.Decimal
}

// allocate rations the short side proportionally and pairs buyers with
// sellers in id order, committing each leg to the ledger.
func (m *Manager) allocate(tick uint64, pt model.PairType, price decimal.Decimal, parts []participant, book ledger) []model.Trade {
	pf := quant.Float(price)
	var buys, sells []order
	var totalB, totalS float64
	for _, p := range parts {
		d := m.demand(p, pt, pf, book)
		switch {
		case d > 0:
			buys = append(buys, order{view: p.view, qty: quant.FromFloat(d)})
			totalB += d
		case d < 0:
			sells = append(sells, order{view: p.view, qty: quant.FromFloat(-d)})
			totalS += -d
		}
	}
	volume := math.Min(totalB, totalS)
	if volume <= 0 {
		return nil
	}
	ration := func(os []order, total float64) {
		for i := range os {
			share := quant.Float(os[i].qty) / total * volume
			q := quant.Floor(decimal.NewFromFloat(share))
			if q.GreaterThan(os[i].qty) {
				q = os[i].qty
			}
			os[i].qty = q
		}
	}
	ration(buys, totalB)
	ration(sells, totalS)

	// buyers must be able to pay for their allocation after rounding
	for i := range buys {
		avail := book.available(buys[i].view, pt.Numeraire())
		for buys[i].qty.IsPositive() && quant.Payment(buys[i].qty, price).GreaterThan(avail) {
			buys[i].qty = buys[i].qty.Sub(quant.Quantum)
		}
	}
	for i := range sells {
		avail := book.available(sells[i].view, pt.Good())
		if sells[i].qty.GreaterThan(avail) {
			sells[i].qty = quant.Floor(avail)
		}
	}

	var trades []model.Trade
	bi, si := 0, 0
	for bi < len(buys) && si < len(sells) {
		b, s := &buys[bi], &sells[si]
		if !b.qty.IsPositive() {
			bi++
			continue
		}
		if !s.qty.IsPositive() {
			si++
			continue
		}
		q := decimal.Min(b.qty, s.qty)
		pay := quant.Payment(q, price)
		budget := book.available(b.view, pt.Numeraire())
		for q.IsPositive() && pay.GreaterThan(budget) {
			q = q.Sub(quant.Quantum)
			pay = quant.Payment(q, price)
		}
		if !pay.IsPositive() {
			// dust leg below one payment quantum
			if b.qty.LessThanOrEqual(s.qty) {
				bi++
			} else {
				si++
			}
			continue
		}
		buyer, seller := book.current(b.view), book.current(s.view)
		out, ok := m.improving(buyer, seller, pt, q, price)
		for !ok && q.GreaterThan(quant.Quantum) {
			// gains are concave in q: a smaller leg may still improve both
			q = quant.Floor(q.Div(decimal.NewFromInt(2)))
			out, ok = m.improving(buyer, seller, pt, q, price)
		}
		if !ok {
			if out.BuyerGain <= m.cfg.Epsilon {
				bi++
			} else {
				si++
			}
			continue
		}
		t := model.Trade{
			Tick:       tick,
			BuyerID:    b.view.ID,
			SellerID:   s.view.ID,
			PairType:   pt,
			Quantity:   q,
			Payment:    quant.Payment(q, price),
			Price:      price,
			BuyerGain:  out.BuyerGain,
			SellerGain: out.SellerGain,
			Source:     model.SourceMarket,
			Protocol:   "walrasian",
		}
		book.book(t)
		trades = append(trades, t)
		b.qty = b.qty.Sub(q)
		s.qty = s.qty.Sub(q)
	}
	return trades
}

// improving evaluates a leg of q at price against both sides' current
// holdings. ok requires both gains to exceed epsilon and a positive payment.
func (m *Manager) improving(buyer, seller protocols.AgentView, pt model.PairType, q, price decimal.Decimal) (protocols.Outcome, bool) {
	pay := quant.Payment(q, price)
	if !q.IsPositive() || !pay.IsPositive() {
		return protocols.Outcome{}, false
	}
	out, ok := protocols.Evaluate(buyer, seller, pt, q, pay)
	if !ok {
		return out, false
	}
	return out, out.BuyerGain > m.cfg.Epsilon && out.SellerGain > m.cfg.Epsilon
}
