package protocols

import (
	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/model"
	"tradegrid.ai/internal/sim/quant"
)

// Outcome is the hypothetical effect of a trade on both parties.
type Outcome struct {
	BuyerAfter  model.Inventory
	SellerAfter model.Inventory
	BuyerGain   float64
	SellerGain  float64
}

// Evaluate computes post-trade inventories and utility gains for buyer
// receiving qty of pt.Good() for payment of pt.Numeraire(). ok is false when
// either side would go negative.
func Evaluate(buyer, seller AgentView, pt model.PairType, qty, payment decimal.Decimal) (Outcome, bool) {
	g, n := pt.Good(), pt.Numeraire()
	if qty.GreaterThan(seller.Inventory.Get(g)) || payment.GreaterThan(buyer.Inventory.Get(n)) {
		return Outcome{}, false
	}
	out := Outcome{BuyerAfter: buyer.Inventory, SellerAfter: seller.Inventory}
	out.BuyerAfter.Add(g, qty)
	out.BuyerAfter.Add(n, payment.Neg())
	out.SellerAfter.Add(g, qty.Neg())
	out.SellerAfter.Add(n, payment)
	out.BuyerGain = buyer.TotalUtility(out.BuyerAfter) - buyer.TotalUtility(buyer.Inventory)
	out.SellerGain = seller.TotalUtility(out.SellerAfter) - seller.TotalUtility(seller.Inventory)
	return out, true
}

// UnitTrial evaluates a one-unit trade (or the seller's whole holding when
// below one unit) at the midpoint of the seller's ask and the buyer's bid.
// It is used for ranking, not for execution.
func UnitTrial(buyer, seller AgentView, pt model.PairType) (Outcome, bool) {
	qty := decimal.Min(quant.One, seller.Inventory.Get(pt.Good()))
	if !qty.IsPositive() {
		return Outcome{}, false
	}
	mid := quant.Price(seller.Quotes[pt].Ask.Add(buyer.Quotes[pt].Bid).Div(decimal.NewFromInt(2)))
	return Evaluate(buyer, seller, pt, qty, quant.Payment(qty, mid))
}
