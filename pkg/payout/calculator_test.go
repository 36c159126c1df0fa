package payout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShare_RoundHalfUp(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		bp     int64
		want   int64
	}{
		{"standard plan", 2999, 7000, 2099},
		{"quick plan", 999, 7000, 699},
		{"exact half rounds up", 5, 7000, 4},
		{"one cent", 1, 7000, 1},
		{"zero price", 0, 7000, 0},
		{"zero share", 2999, 0, 0},
		{"full share", 2999, 10000, 2999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Share(tt.amount, tt.bp))
		})
	}
}

func TestCalculator_Earnings(t *testing.T) {
	c := NewCalculator(PriceTable{"standard": 2999, "free": 0}, 0.70)

	assert.Equal(t, int64(2099), c.Earnings("standard", true))
	assert.Equal(t, int64(0), c.Earnings("standard", false), "no mechanic, no earnings")
	assert.Equal(t, int64(0), c.Earnings("free", true))
	assert.Equal(t, int64(0), c.Earnings("unknown", true))
	assert.Equal(t, 70.0, c.SharePercent())
	assert.Equal(t, int64(2999), c.Price("standard"))
}

func TestCalculator_ShareIsConfigurable(t *testing.T) {
	c := NewCalculator(PriceTable{"standard": 2999}, 0.65)
	// 2999 * 0.65 = 1949.35
	assert.Equal(t, int64(1949), c.Earnings("standard", true))
}

func TestCalculator_EveryPriceMatchesFormula(t *testing.T) {
	c := NewCalculator(PriceTable{}, 0.70)
	for price := int64(0); price <= 10000; price++ {
		want := (price*7 + 5) / 10
		if got := Share(price, c.shareBasisPts); got != want {
			t.Fatalf("price %d: got %d want %d", price, got, want)
		}
	}
}
