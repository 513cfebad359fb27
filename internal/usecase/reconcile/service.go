// Package reconcile merges the latest snapshot with prior successful
// per-account data into a single coherent view, masking partial provider
// failures. Reconciliation is a pure function of the stored snapshot chain:
// re-running it against unchanged data yields identical output.
package reconcile

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// Row is one reconciled line. Item is nil for an empty-sub-account marker:
// a sub-account with zero items at time T is a meaningful fact (a closed or
// drained account), distinct from "no data".
type Row struct {
	LinkedAccountID  int64
	SourceSnapshotID uuid.UUID
	SourceTime       time.Time
	SubAccount       domain.SubAccount
	Item             *domain.Item
}

// Empty reports whether the row is an empty-sub-account marker.
func (r Row) Empty() bool { return r.Item == nil }

// View is the consistent, gap-filled valuation input derived from the chain.
type View struct {
	SnapshotID    uuid.UUID
	UserAccountID int64
	Currency      string
	EffectiveAt   time.Time
	Rows          []Row
}

// Reconcile builds the consistent view for the latest snapshot. For each
// linked account in it:
//   - a successful entry contributes its sub-accounts and items as-is;
//   - a failed entry is replaced by the account's most recent successful
//     entry from the prior snapshots (which the caller supplies ordered by
//     end time descending, id descending as the tie-break);
//   - with no prior success, the account contributes nothing.
//
// Rows are in total deterministic order: source snapshot time ascending (so
// carried-forward data precedes the latest snapshot's), then linked account
// id, sub-account id and item name.
func Reconcile(latest *domain.Snapshot, prior []*domain.Snapshot) (*View, error) {
	view := &View{
		SnapshotID:    latest.ID,
		UserAccountID: latest.UserAccountID,
		Currency:      latest.Currency,
		EffectiveAt:   latest.EffectiveTime(),
	}

	for _, entry := range latest.Entries {
		source := latest
		chosen := entry
		if !entry.Success {
			found := false
			for _, snap := range prior {
				prev := snap.EntryFor(entry.LinkedAccountID)
				if prev != nil && prev.Success {
					source = snap
					chosen = *prev
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}

		view.Rows = append(view.Rows, entryRows(source, chosen)...)
	}

	sort.SliceStable(view.Rows, func(i, j int) bool {
		a, b := view.Rows[i], view.Rows[j]
		if !a.SourceTime.Equal(b.SourceTime) {
			return a.SourceTime.Before(b.SourceTime)
		}
		if a.LinkedAccountID != b.LinkedAccountID {
			return a.LinkedAccountID < b.LinkedAccountID
		}
		if a.SubAccount.ID != b.SubAccount.ID {
			return a.SubAccount.ID < b.SubAccount.ID
		}
		return a.itemName() < b.itemName()
	})

	return view, nil
}

func (r Row) itemName() string {
	if r.Item == nil {
		return ""
	}
	return r.Item.Name
}

// entryRows flattens one snapshot entry into rows, emitting a marker row for
// every empty sub-account.
func entryRows(source *domain.Snapshot, entry domain.LinkedAccountSnapshotEntry) []Row {
	var rows []Row
	for _, sub := range entry.SubAccounts {
		if len(sub.Items) == 0 {
			rows = append(rows, Row{
				LinkedAccountID:  entry.LinkedAccountID,
				SourceSnapshotID: source.ID,
				SourceTime:       source.EffectiveTime(),
				SubAccount:       sub.SubAccount,
			})
			continue
		}
		for i := range sub.Items {
			item := sub.Items[i]
			rows = append(rows, Row{
				LinkedAccountID:  entry.LinkedAccountID,
				SourceSnapshotID: source.ID,
				SourceTime:       source.EffectiveTime(),
				SubAccount:       sub.SubAccount,
				Item:             &item,
			})
		}
	}
	return rows
}
