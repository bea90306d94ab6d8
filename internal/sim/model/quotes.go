package model

import (
	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/quant"
	"tradegrid.ai/internal/sim/utility"
)

// Quote is an agent's ask (lowest price it sells at) and bid (highest price
// it buys at) for one exchange pair, in numeraire per unit of good.
type Quote struct {
	Ask decimal.Decimal `json:"ask"`
	Bid decimal.Decimal `json:"bid"`
}

// Quotes holds one quote per exchange pair.
type Quotes [3]Quote

func (q Quotes) For(p PairType) Quote { return q[p] }

// QuoteParams controls how quotes are derived from reservation prices.
type QuoteParams struct {
	Spread  float64
	Epsilon float64
	Regime  Regime
}

// ComputeQuotes derives quotes for every pair open under the regime from the
// agent's reservation prices at inventory inv. Closed pairs get zero quotes.
func ComputeQuotes(u utility.Utility, lambda float64, inv Inventory, qp QuoteParams) Quotes {
	var out Quotes
	a, b, _ := inv.Floats()
	for _, p := range qp.Regime.PairTypes() {
		var lo, hi float64
		switch p {
		case PairAB:
			lo, hi = u.ReservationBounds(a, b, qp.Epsilon)
		case PairAM, PairBM:
			muA, muB := u.MarginalValue(a+qp.Epsilon, b+qp.Epsilon)
			mu := muA
			if p == PairBM {
				mu = muB
			}
			r := moneyPrice(mu, lambda)
			lo, hi = r, r
		}
		out[p] = Quote{
			Ask: quant.PriceFromFloat(lo * (1 + qp.Spread)),
			Bid: quant.PriceFromFloat(hi * (1 - qp.Spread)),
		}
	}
	return out
}

func moneyPrice(mu, lambda float64) float64 {
	if mu <= 0 {
		return 0
	}
	if lambda <= 1e-12 {
		return utility.MaxReservationPrice
	}
	p := mu / lambda
	if p > utility.MaxReservationPrice {
		return utility.MaxReservationPrice
	}
	return p
}

// Overlap returns bid(buyer) - ask(seller) for pair p, in float numeraire.
// Positive means a mutually acceptable price exists.
func Overlap(seller, buyer Quotes, p PairType) float64 {
	return quant.Float(buyer[p].Bid.Sub(seller[p].Ask))
}
