package fxrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// Service resolves the batch of conversion rates a snapshot needs.
type Service struct {
	Source domain.RateSource
	Log    zerolog.Logger
}

// NewService creates a new Service instance
func NewService(source domain.RateSource, log zerolog.Logger) *Service {
	return &Service{Source: source, Log: log}
}

// Resolve resolves every required pair.
// Logic:
//  1. Deduplicate by exact (domestic, foreign) pair; direction matters
//  2. Drop identity pairs; consumers treat them as rate 1.0
//  3. Call the external source once with the remaining set
//  4. If any pair stays unresolved, fail with ALL missing pairs listed
//
// A missing pair is a fatal configuration error: the valuation workflow must
// not proceed with partial FX coverage.
func (s *Service) Resolve(ctx context.Context, pairs []domain.XccyPair) (domain.RateSet, error) {
	needed := dedupe(pairs)
	if len(needed) == 0 {
		return domain.RateSet{}, nil
	}

	rates, err := s.Source.ResolveRates(ctx, needed)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve exchange rates: %w", err)
	}

	var missing []domain.XccyPair
	for _, pair := range needed {
		if _, ok := rates[pair]; !ok {
			missing = append(missing, pair)
		}
	}
	if len(missing) > 0 {
		s.Log.Error().
			Int("requested", len(needed)).
			Int("missing", len(missing)).
			Msg("exchange rate coverage incomplete")
		return nil, &domain.MissingRatesError{Pairs: missing}
	}

	s.Log.Debug().Int("pairs", len(needed)).Msg("exchange rates resolved")
	return rates, nil
}

// dedupe removes identity pairs and exact duplicates, keeping a stable
// sorted order so the source call and error listings are deterministic.
func dedupe(pairs []domain.XccyPair) []domain.XccyPair {
	seen := make(map[domain.XccyPair]struct{}, len(pairs))
	out := make([]domain.XccyPair, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Identity() {
			continue
		}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domestic != out[j].Domestic {
			return out[i].Domestic < out[j].Domestic
		}
		return out[i].Foreign < out[j].Foreign
	})
	return out
}
