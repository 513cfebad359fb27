package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationChange is a period-over-period delta against a reference baseline.
// Percent is nil when the baseline value is zero.
type ValuationChange struct {
	Amount  decimal.Decimal  `json:"amount"`
	Percent *decimal.Decimal `json:"percent,omitempty"`
}

// NewValuationChange computes current minus baseline.
func NewValuationChange(current, baseline decimal.Decimal) *ValuationChange {
	change := &ValuationChange{Amount: current.Sub(baseline)}
	if !baseline.IsZero() {
		pct := change.Amount.Div(baseline).Mul(decimal.NewFromInt(100))
		change.Percent = &pct
	}
	return change
}

// TotalValuationRecord is the whole-account valuation at one point in time.
type TotalValuationRecord struct {
	Value        decimal.Decimal
	Change       *ValuationChange // vs most recent available entry; nil without baseline
	OneDayChange *ValuationChange // vs most recent available entry at least 24h older
}

// LinkedAccountValuationRecord is one linked account's contribution.
type LinkedAccountValuationRecord struct {
	LinkedAccountID int64
	Value           decimal.Decimal
	Change          *ValuationChange
}

// SubAccountValuationRecord is one sub-account's contribution, kept in both
// the valuation currency and the sub-account's native currency.
type SubAccountValuationRecord struct {
	LinkedAccountID int64
	SubAccountID    string
	Value           decimal.Decimal // valuation currency
	NativeValue     decimal.Decimal
	NativeCurrency  string
	Change          *ValuationChange
}

// ItemValuationRecord is one item's contribution.
type ItemValuationRecord struct {
	LinkedAccountID int64
	SubAccountID    string
	Kind            ItemKind
	Name            string
	Value           decimal.Decimal // valuation currency, signed
	Change          *ValuationChange
}

// HistoryEntry is one persisted valuation of a user account, derived from a
// reconciled snapshot. Available starts false and flips to true exactly once,
// after every record and change computation has been written; readers must
// never treat an unavailable entry as current.
type HistoryEntry struct {
	ID               uuid.UUID
	UserAccountID    int64
	SourceSnapshotID uuid.UUID
	EffectiveAt      time.Time
	Currency         string
	Available        bool

	Total          TotalValuationRecord
	LinkedAccounts []LinkedAccountValuationRecord
	SubAccounts    []SubAccountValuationRecord
	Items          []ItemValuationRecord
}

// LinkedAccountValue looks up the record keyed by linked_account_id.
func (e *HistoryEntry) LinkedAccountValue(linkedAccountID int64) (decimal.Decimal, bool) {
	for _, r := range e.LinkedAccounts {
		if r.LinkedAccountID == linkedAccountID {
			return r.Value, true
		}
	}
	return decimal.Decimal{}, false
}

// SubAccountValue looks up the record keyed by (linked_account_id,
// sub_account_id).
func (e *HistoryEntry) SubAccountValue(linkedAccountID int64, subAccountID string) (decimal.Decimal, bool) {
	for _, r := range e.SubAccounts {
		if r.LinkedAccountID == linkedAccountID && r.SubAccountID == subAccountID {
			return r.Value, true
		}
	}
	return decimal.Decimal{}, false
}

// ItemValue looks up the record keyed by (linked_account_id, sub_account_id,
// item kind, name). The key shape matches the insert side exactly.
func (e *HistoryEntry) ItemValue(linkedAccountID int64, subAccountID string, kind ItemKind, name string) (decimal.Decimal, bool) {
	for _, r := range e.Items {
		if r.LinkedAccountID == linkedAccountID && r.SubAccountID == subAccountID &&
			r.Kind == kind && r.Name == name {
			return r.Value, true
		}
	}
	return decimal.Decimal{}, false
}
