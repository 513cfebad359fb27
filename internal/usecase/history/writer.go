package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patrimo/valuation-backend/internal/domain"
	"github.com/patrimo/valuation-backend/internal/usecase/reconcile"
)

// oneDayHorizon is the minimum age of the baseline used for the one-day
// change on the total valuation.
const oneDayHorizon = 24 * time.Hour

// Writer persists one HistoryEntry per reconciled view and computes
// period-over-period changes against reference baselines.
type Writer struct {
	Repo domain.HistoryRepository
	Log  zerolog.Logger
}

// NewWriter creates a new Writer instance
func NewWriter(repo domain.HistoryRepository, log zerolog.Logger) *Writer {
	return &Writer{Repo: repo, Log: log}
}

// Write stages the entry, computes changes and flips the availability gate.
// Logic:
//  1. Aggregate the view into total / per-linked-account / per-sub-account /
//     per-item records (assets positive, liabilities negative; empty
//     sub-account markers become zero-valued records)
//  2. Persist the shell with available=false
//  3. Load the reference baselines (most recent available entry, plus the
//     most recent one at least 24h older for the one-day change)
//  4. Compute keyed changes per granularity; a missing baseline key yields a
//     nil change, which is expected and not an error
//  5. Persist the records, then flip available exactly once
//
// Any failure leaves available=false; such an entry must never be served as
// current.
func (w *Writer) Write(ctx context.Context, view *reconcile.View) (*domain.HistoryEntry, error) {
	entry := aggregate(view)

	if err := w.Repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create history entry: %w", err)
	}

	baseline, err := w.baseline(ctx, entry.UserAccountID, entry.EffectiveAt)
	if err != nil {
		return nil, err
	}
	oneDayBaseline, err := w.baseline(ctx, entry.UserAccountID, entry.EffectiveAt.Add(-oneDayHorizon))
	if err != nil {
		return nil, err
	}

	applyChanges(entry, baseline, oneDayBaseline)

	if err := w.Repo.AddRecords(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write valuation records: %w", err)
	}
	if err := w.Repo.MarkAvailable(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to publish history entry: %w", err)
	}
	entry.Available = true

	w.Log.Info().
		Str("history_entry_id", entry.ID.String()).
		Int64("user_account_id", entry.UserAccountID).
		Str("total", entry.Total.Value.String()).
		Bool("baseline", baseline != nil).
		Msg("history entry published")

	return entry, nil
}

// baseline loads the most recent available entry before the given time.
// No history is an expected condition and maps to a nil baseline.
func (w *Writer) baseline(ctx context.Context, userAccountID int64, before time.Time) (*domain.HistoryEntry, error) {
	entry, err := w.Repo.LatestAvailable(ctx, userAccountID, before)
	if err != nil {
		if errors.Is(err, domain.ErrNoHistory) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load baseline history entry: %w", err)
	}
	return entry, nil
}

// aggregate folds the ordered view rows into an unpublished entry.
func aggregate(view *reconcile.View) *domain.HistoryEntry {
	entry := &domain.HistoryEntry{
		ID:               uuid.New(),
		UserAccountID:    view.UserAccountID,
		SourceSnapshotID: view.SnapshotID,
		EffectiveAt:      view.EffectiveAt,
		Currency:         view.Currency,
	}

	laIndex := make(map[int64]int)
	saIndex := make(map[int64]map[string]int)

	for _, row := range view.Rows {
		li, ok := laIndex[row.LinkedAccountID]
		if !ok {
			entry.LinkedAccounts = append(entry.LinkedAccounts, domain.LinkedAccountValuationRecord{
				LinkedAccountID: row.LinkedAccountID,
			})
			li = len(entry.LinkedAccounts) - 1
			laIndex[row.LinkedAccountID] = li
			saIndex[row.LinkedAccountID] = make(map[string]int)
		}

		si, ok := saIndex[row.LinkedAccountID][row.SubAccount.ID]
		if !ok {
			entry.SubAccounts = append(entry.SubAccounts, domain.SubAccountValuationRecord{
				LinkedAccountID: row.LinkedAccountID,
				SubAccountID:    row.SubAccount.ID,
				NativeCurrency:  row.SubAccount.Currency,
			})
			si = len(entry.SubAccounts) - 1
			saIndex[row.LinkedAccountID][row.SubAccount.ID] = si
		}

		if row.Empty() {
			continue
		}

		value := row.Item.SignedSnapshotValue()
		entry.Total.Value = entry.Total.Value.Add(value)
		entry.LinkedAccounts[li].Value = entry.LinkedAccounts[li].Value.Add(value)
		entry.SubAccounts[si].Value = entry.SubAccounts[si].Value.Add(value)
		entry.SubAccounts[si].NativeValue = entry.SubAccounts[si].NativeValue.Add(row.Item.SignedValue())
		entry.Items = append(entry.Items, domain.ItemValuationRecord{
			LinkedAccountID: row.LinkedAccountID,
			SubAccountID:    row.SubAccount.ID,
			Kind:            row.Item.Kind,
			Name:            row.Item.Name,
			Value:           value,
		})
	}

	return entry
}

// applyChanges fills in the per-granularity deltas. Each lookup uses the same
// composite key shape as the insert side.
func applyChanges(entry *domain.HistoryEntry, baseline, oneDayBaseline *domain.HistoryEntry) {
	if oneDayBaseline != nil {
		entry.Total.OneDayChange = domain.NewValuationChange(entry.Total.Value, oneDayBaseline.Total.Value)
	}
	if baseline == nil {
		return
	}

	entry.Total.Change = domain.NewValuationChange(entry.Total.Value, baseline.Total.Value)

	for i := range entry.LinkedAccounts {
		r := &entry.LinkedAccounts[i]
		if prev, ok := baseline.LinkedAccountValue(r.LinkedAccountID); ok {
			r.Change = domain.NewValuationChange(r.Value, prev)
		}
	}
	for i := range entry.SubAccounts {
		r := &entry.SubAccounts[i]
		if prev, ok := baseline.SubAccountValue(r.LinkedAccountID, r.SubAccountID); ok {
			r.Change = domain.NewValuationChange(r.Value, prev)
		}
	}
	for i := range entry.Items {
		r := &entry.Items[i]
		if prev, ok := baseline.ItemValue(r.LinkedAccountID, r.SubAccountID, r.Kind, r.Name); ok {
			r.Change = domain.NewValuationChange(r.Value, prev)
		}
	}
}
