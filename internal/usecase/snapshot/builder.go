package snapshot

import (
	"github.com/patrimo/valuation-backend/internal/domain"
)

// Summary counts the per-linked-account outcomes of one build.
type Summary struct {
	Total    int
	Failures int
}

// Builder materializes the snapshot entry tree from the traversal. Items are
// converted into the snapshot currency using the resolved rates; sub-accounts
// come into existence only through balance visits, so an item referencing an
// unseen sub-account is a protocol violation, not a user-facing error.
type Builder struct {
	snapshot *domain.Snapshot
	rates    domain.RateSet
	summary  Summary

	// (linked_account_id, sub_account_id) → index into the entry's
	// SubAccounts slice; enforces creation-before-reference and uniqueness.
	index map[int64]map[string]int
}

// NewBuilder creates a builder that populates the given snapshot shell.
func NewBuilder(snap *domain.Snapshot, rates domain.RateSet) *Builder {
	return &Builder{
		snapshot: snap,
		rates:    rates,
		index:    make(map[int64]map[string]int),
	}
}

// Summary returns the results counter of the build.
func (b *Builder) Summary() Summary { return b.summary }

// VisitLinkedAccount implements Visitor: it appends the account's entry,
// recording success or structured failure, and counts the outcome.
func (b *Builder) VisitLinkedAccount(res domain.LinkedAccountResult) error {
	entry := domain.LinkedAccountSnapshotEntry{
		LinkedAccountID: res.Request.LinkedAccountID,
		Success:         res.Success(),
		Failure:         res.Failure,
	}
	if res.Success() {
		entry.LineErrors = res.Payload.LineErrors
	}

	if _, exists := b.index[entry.LinkedAccountID]; exists {
		return &domain.ProtocolViolationError{
			LinkedAccountID: entry.LinkedAccountID,
			Reason:          "duplicate linked account entry",
		}
	}

	b.summary.Total++
	if !res.Success() {
		b.summary.Failures++
	}

	b.snapshot.Entries = append(b.snapshot.Entries, entry)
	b.index[entry.LinkedAccountID] = make(map[string]int)
	return nil
}

// VisitSubAccount implements Visitor: it creates the sub-account row.
func (b *Builder) VisitSubAccount(linkedAccountID int64, balance domain.BalanceEntry) error {
	subAccounts, ok := b.index[linkedAccountID]
	if !ok {
		return &domain.ProtocolViolationError{
			LinkedAccountID: linkedAccountID,
			SubAccountID:    balance.SubAccountID,
			Reason:          "balance visited before its linked account",
		}
	}
	if _, exists := subAccounts[balance.SubAccountID]; exists {
		return &domain.ProtocolViolationError{
			LinkedAccountID: linkedAccountID,
			SubAccountID:    balance.SubAccountID,
			Reason:          "duplicate sub-account id",
		}
	}

	entry := b.snapshot.EntryFor(linkedAccountID)
	entry.SubAccounts = append(entry.SubAccounts, domain.SubAccountEntry{
		SubAccount: domain.SubAccount{
			ID:          balance.SubAccountID,
			Currency:    balance.Currency,
			Description: balance.Description,
			Type:        balance.Type,
		},
	})
	subAccounts[balance.SubAccountID] = len(entry.SubAccounts) - 1
	return nil
}

// VisitItem implements Visitor: it converts and appends the item under its
// already-created sub-account, preserving provider order.
func (b *Builder) VisitItem(linkedAccountID int64, item domain.ProviderItem) error {
	subAccounts, ok := b.index[linkedAccountID]
	if !ok {
		return &domain.ProtocolViolationError{
			LinkedAccountID: linkedAccountID,
			SubAccountID:    item.OwnerSubAccountID(),
			Reason:          "item visited before its linked account",
		}
	}
	idx, ok := subAccounts[item.OwnerSubAccountID()]
	if !ok {
		return &domain.ProtocolViolationError{
			LinkedAccountID: linkedAccountID,
			SubAccountID:    item.OwnerSubAccountID(),
			Reason:          "item references a sub-account no balance entry created",
		}
	}

	entry := b.snapshot.EntryFor(linkedAccountID)
	sub := &entry.SubAccounts[idx]

	rate, ok := b.rates.Rate(sub.SubAccount.Currency, b.snapshot.Currency)
	if !ok {
		pair := domain.XccyPair{Domestic: sub.SubAccount.Currency, Foreign: b.snapshot.Currency}
		return &domain.MissingRatesError{Pairs: []domain.XccyPair{pair}}
	}

	var row domain.Item
	switch it := item.(type) {
	case domain.AssetEntry:
		row = domain.Item{
			Kind:          domain.ItemKindAsset,
			Name:          it.Name,
			Subtype:       it.Type,
			AssetClass:    it.AssetClass,
			Units:         it.Units,
			Value:         it.Value,
			SnapshotValue: it.Value.Mul(rate),
			Raw:           it.Raw,
		}
	case domain.LiabilityEntry:
		row = domain.Item{
			Kind:          domain.ItemKindLiability,
			Name:          it.Name,
			Subtype:       it.Type,
			Value:         it.Value,
			SnapshotValue: it.Value.Mul(rate),
			Raw:           it.Raw,
		}
	default:
		return &domain.ProtocolViolationError{
			LinkedAccountID: linkedAccountID,
			SubAccountID:    item.OwnerSubAccountID(),
			Reason:          "unknown item variant",
		}
	}

	sub.Items = append(sub.Items, row)
	return nil
}
