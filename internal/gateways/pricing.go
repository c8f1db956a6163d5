package gateways

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateTablePricing prices insurance cover as a flat per-product rate applied
// to the coverage amount. Products without a configured rate use the default
// rate.
type RateTablePricing struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
}

// NewRateTablePricing creates a pricing adapter from a product rate table.
func NewRateTablePricing(rates map[string]decimal.Decimal, defaultRate decimal.Decimal) *RateTablePricing {
	return &RateTablePricing{rates: rates, defaultRate: defaultRate}
}

// Premium computes the annual premium for the requested cover, rounded to
// two decimal places.
func (p *RateTablePricing) Premium(ctx context.Context, productCode string, coverage decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, ok := p.rates[productCode]
	if !ok {
		rate = p.defaultRate
	}
	return coverage.Mul(rate).Round(2), nil
}
