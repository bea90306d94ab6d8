// Package utility provides the preference functions agents evaluate trades
// with. The simulation core only sees the Utility capability.
package utility

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// MaxReservationPrice caps reservation prices when the numeraire has no
// marginal value.
const MaxReservationPrice = 1e6

// Utility is the narrow capability the core consumes.
type Utility interface {
	// Value is U(a, b).
	Value(a, b float64) float64
	// MarginalValue returns (dU/dA, dU/dB).
	MarginalValue(a, b float64) (float64, float64)
	// ReservationBounds returns the price of A in units of B below which the
	// agent would sell A and above which it would buy. Inventories are
	// shifted by eps so zero holdings stay finite.
	ReservationBounds(a, b, eps float64) (float64, float64)
	// Spec returns the parameters that rebuild this function.
	Spec() Spec
}

// Spec is the serializable description of a utility function.
type Spec struct {
	Type   string             `json:"type" yaml:"type"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

func (s Spec) String() string {
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, s.Params[k]))
	}
	return s.Type + "(" + strings.Join(parts, ",") + ")"
}

func (s Spec) param(name string, def float64) float64 {
	if v, ok := s.Params[name]; ok {
		return v
	}
	return def
}

// New builds the utility function described by spec.
func New(spec Spec) (Utility, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case "ces":
		rho := spec.param("rho", -0.5)
		wA := spec.param("wA", 1)
		wB := spec.param("wB", 1)
		if rho == 0 || rho >= 1 {
			return nil, fmt.Errorf("ces: rho must be < 1 and non-zero, got %g", rho)
		}
		if wA <= 0 || wB <= 0 {
			return nil, fmt.Errorf("ces: weights must be positive")
		}
		return CES{Rho: rho, WA: wA, WB: wB}, nil
	case "linear":
		vA := spec.param("vA", 1)
		vB := spec.param("vB", 1)
		if vA <= 0 || vB <= 0 {
			return nil, fmt.Errorf("linear: values must be positive")
		}
		return Linear{VA: vA, VB: vB}, nil
	case "quadratic":
		q := Quadratic{
			BlissA: spec.param("A_star", 10),
			BlissB: spec.param("B_star", 10),
			SA:     spec.param("sigma_A", 1),
			SB:     spec.param("sigma_B", 1),
		}
		if q.SA <= 0 || q.SB <= 0 {
			return nil, fmt.Errorf("quadratic: curvature must be positive")
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown utility type %q (valid: ces, linear, quadratic)", spec.Type)
	}
}

// ratio turns marginal utilities into a reservation price of A in B.
func ratio(muA, muB float64) float64 {
	if muA <= 0 {
		return 0
	}
	if muB <= 1e-12 {
		return MaxReservationPrice
	}
	p := muA / muB
	if p > MaxReservationPrice || math.IsInf(p, 1) || math.IsNaN(p) {
		return MaxReservationPrice
	}
	return p
}

// CES is U = (wA·A^ρ + wB·B^ρ)^(1/ρ).
type CES struct {
	Rho float64
	WA  float64
	WB  float64
}

func (u CES) Value(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		if u.Rho < 0 {
			return 0
		}
		a, b = math.Max(a, 0), math.Max(b, 0)
	}
	s := u.WA*math.Pow(a, u.Rho) + u.WB*math.Pow(b, u.Rho)
	return math.Pow(s, 1/u.Rho)
}

func (u CES) MarginalValue(a, b float64) (float64, float64) {
	if a <= 0 || b <= 0 {
		return u.marginal(math.Max(a, 1e-9), math.Max(b, 1e-9))
	}
	return u.marginal(a, b)
}

func (u CES) marginal(a, b float64) (float64, float64) {
	s := u.WA*math.Pow(a, u.Rho) + u.WB*math.Pow(b, u.Rho)
	outer := math.Pow(s, 1/u.Rho-1)
	return u.WA * math.Pow(a, u.Rho-1) * outer, u.WB * math.Pow(b, u.Rho-1) * outer
}

func (u CES) ReservationBounds(a, b, eps float64) (float64, float64) {
	// MRS is (wA/wB)·(A/B)^(ρ-1); no need for the outer factor.
	a, b = a+eps, b+eps
	p := ratio(u.WA*math.Pow(a, u.Rho-1), u.WB*math.Pow(b, u.Rho-1))
	return p, p
}

func (u CES) Spec() Spec {
	return Spec{Type: "ces", Params: map[string]float64{"rho": u.Rho, "wA": u.WA, "wB": u.WB}}
}

// Linear is U = vA·A + vB·B.
type Linear struct {
	VA float64
	VB float64
}

func (u Linear) Value(a, b float64) float64 { return u.VA*a + u.VB*b }

func (u Linear) MarginalValue(a, b float64) (float64, float64) { return u.VA, u.VB }

func (u Linear) ReservationBounds(a, b, eps float64) (float64, float64) {
	p := ratio(u.VA, u.VB)
	return p, p
}

func (u Linear) Spec() Spec {
	return Spec{Type: "linear", Params: map[string]float64{"vA": u.VA, "vB": u.VB}}
}

// Quadratic is U = -σA·(A-A*)² - σB·(B-B*)², peaking at the bliss point.
type Quadratic struct {
	BlissA float64
	BlissB float64
	SA     float64
	SB     float64
}

func (u Quadratic) Value(a, b float64) float64 {
	da := a - u.BlissA
	db := b - u.BlissB
	return -u.SA*da*da - u.SB*db*db
}

func (u Quadratic) MarginalValue(a, b float64) (float64, float64) {
	return -2 * u.SA * (a - u.BlissA), -2 * u.SB * (b - u.BlissB)
}

func (u Quadratic) ReservationBounds(a, b, eps float64) (float64, float64) {
	muA, muB := u.MarginalValue(a, b)
	p := ratio(muA, muB)
	return p, p
}

func (u Quadratic) Spec() Spec {
	return Spec{Type: "quadratic", Params: map[string]float64{
		"A_star": u.BlissA, "B_star": u.BlissB, "sigma_A": u.SA, "sigma_B": u.SB,
	}}
}
