package sale

import (
	"math/big"
	"testing"
)

func TestPriceAtMatchesReferenceTable(t *testing.T) {
	const start = 500
	curve, err := NewRateCurve(start, start+30_720, big.NewInt(1000), big.NewInt(900))
	if err != nil {
		t.Fatalf("new curve: %v", err)
	}
	cases := []struct {
		elapsed uint64
		want    int64
	}{
		{0, 1000},
		{1, 999},
		{2, 999},
		{9, 999},
		{19, 999},
		{99, 999},
		{308, 998},
		{15_360, 950},
		{30_719, 900},
		{30_720, 900},
	}
	for _, tc := range cases {
		got := curve.PriceAt(start + tc.elapsed)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("elapsed %d: expected %d, got %s", tc.elapsed, tc.want, got)
		}
	}
}

func TestPriceAtIsMonotonicAndClamped(t *testing.T) {
	curve, err := NewRateCurve(10, 110, big.NewInt(50), big.NewInt(7))
	if err != nil {
		t.Fatalf("new curve: %v", err)
	}
	prev := curve.PriceAt(0)
	if prev.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("height before window must clamp to start rate, got %s", prev)
	}
	for h := uint64(10); h <= 200; h++ {
		price := curve.PriceAt(h)
		if price.Cmp(prev) > 0 {
			t.Fatalf("price increased at height %d: %s > %s", h, price, prev)
		}
		if price.Cmp(big.NewInt(7)) < 0 {
			t.Fatalf("price below end rate at height %d: %s", h, price)
		}
		prev = price
	}
	if prev.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected end rate after window, got %s", prev)
	}
}

func TestRisingCurveHitsEndpoints(t *testing.T) {
	curve, err := NewRateCurve(0, 3, big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("new curve: %v", err)
	}
	want := []int64{1, 1, 1, 2}
	for h, expected := range want {
		if got := curve.PriceAt(uint64(h)); got.Cmp(big.NewInt(expected)) != 0 {
			t.Fatalf("height %d: expected %d, got %s", h, expected, got)
		}
	}
}

func TestNewRateCurveRejectsEmptyWindow(t *testing.T) {
	if _, err := NewRateCurve(5, 5, big.NewInt(1), big.NewInt(1)); err == nil {
		t.Fatalf("expected empty window rejection")
	}
}
