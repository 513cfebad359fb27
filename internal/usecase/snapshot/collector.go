package snapshot

import (
	"sort"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// PairCollector records every (sub-account currency, target currency) pair
// actually present in the fetch results. Identity pairs are excluded: their
// rate is implicitly 1.0 and must never reach the resolver.
type PairCollector struct {
	Target string

	pairs map[domain.XccyPair]struct{}
}

// NewPairCollector creates a collector for the given target currency.
func NewPairCollector(target string) *PairCollector {
	return &PairCollector{Target: target, pairs: make(map[domain.XccyPair]struct{})}
}

// VisitLinkedAccount implements Visitor. Nothing to collect at this level.
func (c *PairCollector) VisitLinkedAccount(domain.LinkedAccountResult) error { return nil }

// VisitSubAccount implements Visitor. Every item is valued in its
// sub-account's currency, so collecting here covers all conversions.
func (c *PairCollector) VisitSubAccount(_ int64, balance domain.BalanceEntry) error {
	pair := domain.XccyPair{Domestic: balance.Currency, Foreign: c.Target}
	if pair.Identity() {
		return nil
	}
	c.pairs[pair] = struct{}{}
	return nil
}

// VisitItem implements Visitor.
func (c *PairCollector) VisitItem(int64, domain.ProviderItem) error { return nil }

// Pairs returns the collected pairs in sorted order.
func (c *PairCollector) Pairs() []domain.XccyPair {
	out := make([]domain.XccyPair, 0, len(c.pairs))
	for pair := range c.pairs {
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
