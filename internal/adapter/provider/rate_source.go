package provider

import (
	"context"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// StaticRateSource serves rates from a fixed table. Pairs absent from the
// table are simply omitted from the reply, per the RateSource contract.
// Deployments wire a real market-data client in its place.
type StaticRateSource struct {
	rates domain.RateSet
}

// NewStaticRateSource creates a source over the given table. A nil table is
// an empty source.
func NewStaticRateSource(rates domain.RateSet) *StaticRateSource {
	if rates == nil {
		rates = domain.RateSet{}
	}
	return &StaticRateSource{rates: rates}
}

// ResolveRates implements domain.RateSource.
func (s *StaticRateSource) ResolveRates(_ context.Context, pairs []domain.XccyPair) (domain.RateSet, error) {
	out := domain.RateSet{}
	for _, pair := range pairs {
		if rate, ok := s.rates[pair]; ok {
			out[pair] = rate
		}
	}
	return out, nil
}
