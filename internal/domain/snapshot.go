package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotStatus represents the lifecycle state of a snapshot.
// Created as Processing, it transitions exactly once to a terminal state.
type SnapshotStatus string

const (
	SnapshotStatusProcessing SnapshotStatus = "PROCESSING"
	SnapshotStatusSuccess    SnapshotStatus = "SUCCESS"
	SnapshotStatusFailed     SnapshotStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s SnapshotStatus) Terminal() bool {
	return s == SnapshotStatusSuccess || s == SnapshotStatusFailed
}

// SubAccountType classifies a sub-account as reported by its provider.
type SubAccountType string

const (
	SubAccountTypeCurrent    SubAccountType = "CURRENT"
	SubAccountTypeSavings    SubAccountType = "SAVINGS"
	SubAccountTypeInvestment SubAccountType = "INVESTMENT"
	SubAccountTypeLoan       SubAccountType = "LOAN"
)

// SubAccount describes one financial account surfaced by a provider.
// Unique per (linked_account_id, sub_account_id) within a snapshot.
type SubAccount struct {
	ID          string
	Currency    string
	Description string
	Type        SubAccountType
}

// ItemKind distinguishes the two value-bearing item cases.
type ItemKind string

const (
	ItemKindAsset     ItemKind = "ASSET"
	ItemKindLiability ItemKind = "LIABILITY"
)

// Item is one asset or liability line inside a sub-account, valued both in
// the sub-account currency and in the snapshot currency.
type Item struct {
	Kind          ItemKind
	Name          string
	Subtype       string
	AssetClass    string // assets only
	Units         *decimal.Decimal
	Value         decimal.Decimal // sub-account currency
	SnapshotValue decimal.Decimal // snapshot currency
	Raw           json.RawMessage
}

// SignedSnapshotValue returns the item's snapshot-currency value with
// liabilities negated, ready for aggregation.
func (i Item) SignedSnapshotValue() decimal.Decimal {
	if i.Kind == ItemKindLiability {
		return i.SnapshotValue.Neg()
	}
	return i.SnapshotValue
}

// SignedValue returns the item's sub-account-currency value with liabilities
// negated.
func (i Item) SignedValue() decimal.Decimal {
	if i.Kind == ItemKindLiability {
		return i.Value.Neg()
	}
	return i.Value
}

// SubAccountEntry is one sub-account and its items inside a snapshot entry.
// A sub-account with zero items is still a meaningful fact and is kept.
type SubAccountEntry struct {
	SubAccount SubAccount
	Items      []Item
}

// LinkedAccountSnapshotEntry records the outcome of one linked account inside
// a snapshot. Exactly one exists per fetched linked account.
type LinkedAccountSnapshotEntry struct {
	LinkedAccountID int64
	Success         bool
	Failure         *FailureDetail
	LineErrors      []LineItemError
	SubAccounts     []SubAccountEntry
}

// Snapshot is one point-in-time fetch-and-normalize run across all linked
// accounts of a user account.
type Snapshot struct {
	ID            uuid.UUID
	UserAccountID int64
	Status        SnapshotStatus
	Currency      string
	StartTime     time.Time
	EndTime       *time.Time
	Entries       []LinkedAccountSnapshotEntry
	Rates         RateSet
}

// NewSnapshot creates the snapshot shell that exists before fetching begins,
// so a trace remains even on total failure.
func NewSnapshot(userAccountID int64, currency string, start time.Time) *Snapshot {
	return &Snapshot{
		ID:            uuid.New(),
		UserAccountID: userAccountID,
		Status:        SnapshotStatusProcessing,
		Currency:      currency,
		StartTime:     start,
	}
}

// Finish moves the snapshot to a terminal status. The transition is
// monotonic: finishing an already-terminal snapshot is an error.
func (s *Snapshot) Finish(status SnapshotStatus, at time.Time) error {
	if !status.Terminal() {
		return ErrNonTerminalStatus
	}
	if s.Status.Terminal() {
		return ErrSnapshotFinished
	}
	s.Status = status
	s.EndTime = &at
	return nil
}

// EntryFor returns the entry for the given linked account, or nil.
func (s *Snapshot) EntryFor(linkedAccountID int64) *LinkedAccountSnapshotEntry {
	for i := range s.Entries {
		if s.Entries[i].LinkedAccountID == linkedAccountID {
			return &s.Entries[i]
		}
	}
	return nil
}

// EffectiveTime is the time the snapshot's data is valid at: the end time
// once terminal, the start time otherwise.
func (s *Snapshot) EffectiveTime() time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return s.StartTime
}
