// Package payout holds the pure money rules of session settlement: how much a
// mechanic earns for a plan and which account receives it.
package payout

import "math"

// PriceTable maps plan identifiers to prices in minor currency units.
type PriceTable map[string]int64

// Calculator derives gross mechanic earnings from a plan price.
type Calculator struct {
	prices        PriceTable
	shareBasisPts int64
}

// NewCalculator takes the mechanic share as a fraction (0.70 for 70%).
func NewCalculator(prices PriceTable, mechanicShare float64) *Calculator {
	return &Calculator{
		prices:        prices,
		shareBasisPts: int64(math.Round(mechanicShare * 10000)),
	}
}

// Price returns the plan price, zero for unknown plans.
func (c *Calculator) Price(plan string) int64 {
	return c.prices[plan]
}

// SharePercent is the configured mechanic share as a percentage.
func (c *Calculator) SharePercent() float64 {
	return float64(c.shareBasisPts) / 100
}

// Earnings is the mechanic's cut of the plan price, rounded half up. It is
// zero when the plan is unknown or no mechanic took the session.
func (c *Calculator) Earnings(plan string, mechanicPresent bool) int64 {
	if !mechanicPresent {
		return 0
	}
	return Share(c.Price(plan), c.shareBasisPts)
}

// Share applies a basis-point share to amount, rounding half up.
func Share(amount, basisPts int64) int64 {
	if amount <= 0 || basisPts <= 0 {
		return 0
	}
	return (amount*basisPts + 5000) / 10000
}
