package quant

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQRoundsHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.00005", "1.0001"},
		{"1.00004", "1"},
		{"2.99995", "3"},
		{"0.12345", "0.1235"},
	}
	for _, c := range cases {
		got := Q(decimal.RequireFromString(c.in))
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Fatalf("Q(%s)=%s want %s", c.in, got, c.want)
		}
	}
}

func TestPaymentQuantized(t *testing.T) {
	got := Payment(Int(3), decimal.RequireFromString("0.333335"))
	if !got.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("payment=%s want 1", got)
	}
}

func TestFloorNeverRoundsUp(t *testing.T) {
	got := Floor(decimal.RequireFromString("1.99999"))
	if !got.Equal(decimal.RequireFromString("1.9999")) {
		t.Fatalf("floor=%s", got)
	}
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	if !FromFloat(0.0 / zero()).IsZero() {
		t.Fatalf("expected NaN to map to zero")
	}
}

func zero() float64 { return 0 }
