package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// XccyPair is an ordered currency pair. Rates are quoted as units of the
// foreign currency per one unit of the domestic currency, so a value in the
// domestic currency converts by multiplication.
type XccyPair struct {
	Domestic string
	Foreign  string
}

// Identity reports whether both sides of the pair are the same currency.
// Identity pairs are never resolved or stored; their rate is implicitly 1.0.
func (p XccyPair) Identity() bool { return p.Domestic == p.Foreign }

// String renders the pair as "EUR/GBP".
func (p XccyPair) String() string { return p.Domestic + "/" + p.Foreign }

// XccyRate is one resolved conversion rate.
type XccyRate struct {
	XccyPair
	Rate decimal.Decimal
}

// RateSet maps resolved pairs to their rates.
type RateSet map[XccyPair]decimal.Decimal

// Rate returns the conversion rate from domestic to foreign. Identity pairs
// resolve to exactly 1.0 without consulting the set.
func (rs RateSet) Rate(domestic, foreign string) (decimal.Decimal, bool) {
	if domestic == foreign {
		return decimal.NewFromInt(1), true
	}
	rate, ok := rs[XccyPair{Domestic: domestic, Foreign: foreign}]
	return rate, ok
}

// Rates returns the set's entries ordered by pair for deterministic
// persistence and logging.
func (rs RateSet) Rates() []XccyRate {
	out := make([]XccyRate, 0, len(rs))
	for pair, rate := range rs {
		out = append(out, XccyRate{XccyPair: pair, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domestic != out[j].Domestic {
			return out[i].Domestic < out[j].Domestic
		}
		return out[i].Foreign < out[j].Foreign
	})
	return out
}
