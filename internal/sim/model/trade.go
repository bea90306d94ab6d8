package model

import (
	"github.com/shopspring/decimal"
)

// TradeSource records which mechanism produced a trade.
type TradeSource string

const (
	SourceBilateral TradeSource = "bilateral"
	SourceMarket    TradeSource = "market"
)

// Trade is an executed (or proposed) exchange: the seller delivers Quantity
// of PairType.Good() and the buyer pays Payment of PairType.Numeraire().
type Trade struct {
	Tick     uint64          `json:"tick"`
	BuyerID  int             `json:"buyer_id"`
	SellerID int             `json:"seller_id"`
	PairType PairType        `json:"pair_type"`
	Quantity decimal.Decimal `json:"quantity"`
	Payment  decimal.Decimal `json:"payment"`
	Price    decimal.Decimal `json:"price"`

	BuyerGain  float64     `json:"buyer_gain"`
	SellerGain float64     `json:"seller_gain"`
	Source     TradeSource `json:"source"`
	// Protocol is the bargaining protocol or market id that produced the trade.
	Protocol string `json:"protocol,omitempty"`
}

// Deltas returns the signed inventory changes for buyer and seller.
func (t Trade) Deltas() (buyer, seller Inventory) {
	g, n := t.PairType.Good(), t.PairType.Numeraire()
	buyer.Add(g, t.Quantity)
	buyer.Add(n, t.Payment.Neg())
	seller.Add(g, t.Quantity.Neg())
	seller.Add(n, t.Payment)
	return buyer, seller
}

// Conserves reports whether per-good deltas sum to zero across both parties.
func (t Trade) Conserves() bool {
	b, s := t.Deltas()
	for _, g := range AllGoods {
		if !b.Get(g).Add(s.Get(g)).IsZero() {
			return false
		}
	}
	return true
}

// Apply returns inv after adding delta.
func (inv Inventory) Apply(delta Inventory) Inventory {
	return Inventory{A: inv.A.Add(delta.A), B: inv.B.Add(delta.B), M: inv.M.Add(delta.M)}
}
