package model

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradegrid.ai/internal/sim/quant"
)

// Good identifies a commodity held in inventories.
type Good uint8

const (
	GoodA Good = iota
	GoodB
	GoodM // money
)

var goodNames = [...]string{"A", "B", "M"}

func (g Good) String() string {
	if int(g) < len(goodNames) {
		return goodNames[g]
	}
	return fmt.Sprintf("Good(%d)", g)
}

// AllGoods lists goods in canonical order.
var AllGoods = [...]Good{GoodA, GoodB, GoodM}

// Inventory holds quantized, non-negative holdings.
type Inventory struct {
	A decimal.Decimal `json:"A"`
	B decimal.Decimal `json:"B"`
	M decimal.Decimal `json:"M"`
}

func NewInventory(a, b, m decimal.Decimal) Inventory {
	return Inventory{A: quant.Q(a), B: quant.Q(b), M: quant.Q(m)}
}

func (inv Inventory) Get(g Good) decimal.Decimal {
	switch g {
	case GoodA:
		return inv.A
	case GoodB:
		return inv.B
	case GoodM:
		return inv.M
	}
	panic(fmt.Sprintf("model: unknown good %d", g))
}

func (inv *Inventory) Set(g Good, v decimal.Decimal) {
	switch g {
	case GoodA:
		inv.A = v
	case GoodB:
		inv.B = v
	case GoodM:
		inv.M = v
	default:
		panic(fmt.Sprintf("model: unknown good %d", g))
	}
}

// Add adds a signed delta to good g.
func (inv *Inventory) Add(g Good, delta decimal.Decimal) {
	inv.Set(g, inv.Get(g).Add(delta))
}

// Sub returns inv - other per good.
func (inv Inventory) Sub(other Inventory) Inventory {
	return Inventory{A: inv.A.Sub(other.A), B: inv.B.Sub(other.B), M: inv.M.Sub(other.M)}
}

// NonNegative reports whether every holding is >= 0.
func (inv Inventory) NonNegative() bool {
	return !inv.A.IsNegative() && !inv.B.IsNegative() && !inv.M.IsNegative()
}

func (inv Inventory) String() string {
	return fmt.Sprintf("A=%s B=%s M=%s", inv.A, inv.B, inv.M)
}

// Floats returns holdings as floats for utility evaluation.
func (inv Inventory) Floats() (a, b, m float64) {
	return quant.Float(inv.A), quant.Float(inv.B), quant.Float(inv.M)
}

// PairType is an exchange pair: Good is delivered by the seller, Numeraire
// is paid by the buyer.
type PairType uint8

const (
	PairAB PairType = iota // A for B
	PairAM                 // A for money
	PairBM                 // B for money
)

var pairNames = [...]string{"A<->B", "A<->M", "B<->M"}

func (p PairType) String() string {
	if int(p) < len(pairNames) {
		return pairNames[p]
	}
	return fmt.Sprintf("PairType(%d)", p)
}

func (p PairType) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PairType) UnmarshalText(b []byte) error {
	for i, n := range pairNames {
		if n == string(b) {
			*p = PairType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown pair type %q", string(b))
}

// Good returns the traded good for p.
func (p PairType) Good() Good {
	if p == PairBM {
		return GoodB
	}
	return GoodA
}

// Numeraire returns the good used for payment under p.
func (p PairType) Numeraire() Good {
	if p == PairAB {
		return GoodB
	}
	return GoodM
}

// Regime selects which exchange pairs are open.
type Regime string

const (
	RegimeBarter Regime = "barter_only"
	RegimeMoney  Regime = "money_only"
	RegimeMixed  Regime = "mixed"
)

// PairTypes returns the open pairs for the regime in canonical order.
func (r Regime) PairTypes() []PairType {
	switch r {
	case RegimeMoney:
		return []PairType{PairAM, PairBM}
	case RegimeMixed:
		return []PairType{PairAB, PairAM, PairBM}
	default:
		return []PairType{PairAB}
	}
}

func (r Regime) Valid() bool {
	return r == RegimeBarter || r == RegimeMoney || r == RegimeMixed
}
