package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRateSet_IdentityPairIsExactlyOne(t *testing.T) {
	// An empty set must still resolve identity pairs: no lookup happens.
	rates := RateSet{}

	rate, ok := rates.Rate("EUR", "EUR")
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestRateSet_LookupIsDirectional(t *testing.T) {
	rates := RateSet{
		{Domestic: "EUR", Foreign: "GBP"}: decimal.RequireFromString("0.85"),
	}

	rate, ok := rates.Rate("EUR", "GBP")
	assert.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.85")))

	// The reverse direction is a different pair.
	_, ok = rates.Rate("GBP", "EUR")
	assert.False(t, ok)
}

func TestRateSet_RatesSortedByPair(t *testing.T) {
	rates := RateSet{
		{Domestic: "USD", Foreign: "GBP"}: decimal.RequireFromString("0.79"),
		{Domestic: "EUR", Foreign: "GBP"}: decimal.RequireFromString("0.85"),
		{Domestic: "EUR", Foreign: "CHF"}: decimal.RequireFromString("0.94"),
	}

	sorted := rates.Rates()
	assert.Len(t, sorted, 3)
	assert.Equal(t, "EUR/CHF", sorted[0].String())
	assert.Equal(t, "EUR/GBP", sorted[1].String())
	assert.Equal(t, "USD/GBP", sorted[2].String())
}
