// Package snapshot normalizes raw per-account fetch results into a populated
// snapshot tree via a traversal protocol. Two consumers share the same
// traversal: a currency-pair collector feeding FX resolution, and a builder
// materializing the entry tree with conversion applied.
package snapshot

import (
	"github.com/patrimo/valuation-backend/internal/domain"
)

// Visitor is the traversal protocol. Any consumer implementing these three
// capabilities can ride the traversal without changing the driver.
type Visitor interface {
	// VisitLinkedAccount is called first for every result, success or not.
	VisitLinkedAccount(res domain.LinkedAccountResult) error

	// VisitSubAccount is called for every balance entry of a successful
	// result, before any of the account's items.
	VisitSubAccount(linkedAccountID int64, balance domain.BalanceEntry) error

	// VisitItem is called for every asset and liability entry, in
	// provider-reported order within each line item.
	VisitItem(linkedAccountID int64, item domain.ProviderItem) error
}

// Traverse drives a visitor over the fetch results.
// Order per linked account: the account itself first; a failed account's
// contents are skipped entirely; balances before assets before liabilities,
// so a sub-account always exists before any item references it.
func Traverse(results []domain.LinkedAccountResult, v Visitor) error {
	for _, res := range results {
		if err := v.VisitLinkedAccount(res); err != nil {
			return err
		}
		if !res.Success() {
			continue
		}

		id := res.Request.LinkedAccountID
		for _, balance := range res.Payload.Balances {
			if err := v.VisitSubAccount(id, balance); err != nil {
				return err
			}
		}
		for _, asset := range res.Payload.Assets {
			if err := v.VisitItem(id, asset); err != nil {
				return err
			}
		}
		for _, liability := range res.Payload.Liabilities {
			if err := v.VisitItem(id, liability); err != nil {
				return err
			}
		}
	}
	return nil
}
