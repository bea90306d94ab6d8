package utility

import (
	"math"
	"testing"
)

func TestCESReservationPriceMatchesMRS(t *testing.T) {
	u, err := New(Spec{Type: "ces", Params: map[string]float64{"rho": -0.5, "wA": 1, "wB": 1}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lo, hi := u.ReservationBounds(8, 2, 0)
	if lo != hi {
		t.Fatalf("smooth utility should have a single reservation price: %v %v", lo, hi)
	}
	// (A/B)^(rho-1) = 4^-1.5 = 0.125
	if math.Abs(lo-0.125) > 1e-12 {
		t.Fatalf("reservation price=%v want 0.125", lo)
	}
	muA, muB := u.MarginalValue(8, 2)
	if math.Abs(muA/muB-lo) > 1e-9 {
		t.Fatalf("MRS %v does not match reservation price %v", muA/muB, lo)
	}
}

func TestCESImprovesTowardBalance(t *testing.T) {
	u := CES{Rho: -0.5, WA: 1, WB: 1}
	if !(u.Value(7, 3) > u.Value(8, 2)) {
		t.Fatalf("expected (7,3) preferred to (8,2)")
	}
}

func TestQuadraticPastBlissHasZeroReservation(t *testing.T) {
	u := Quadratic{BlissA: 5, BlissB: 5, SA: 1, SB: 1}
	p, _ := u.ReservationBounds(9, 2, 0)
	if p != 0 {
		t.Fatalf("agent satiated in A should value it at 0, got %v", p)
	}
	p, _ = u.ReservationBounds(2, 9, 0)
	if p != MaxReservationPrice {
		t.Fatalf("agent satiated in B should cap price, got %v", p)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(Spec{Type: "cobb"}); err == nil {
		t.Fatalf("expected error for unknown utility type")
	}
}

func TestSpecRoundTrip(t *testing.T) {
	for _, u := range []Utility{
		CES{Rho: -0.5, WA: 1, WB: 2},
		Linear{VA: 1, VB: 3},
		Quadratic{BlissA: 4, BlissB: 6, SA: 1, SB: 0.5},
	} {
		u2, err := New(u.Spec())
		if err != nil {
			t.Fatalf("New(%s): %v", u.Spec(), err)
		}
		if u2.Value(3, 4) != u.Value(3, 4) {
			t.Fatalf("rebuilt %s differs", u.Spec())
		}
	}
}
