package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LinkedAccountRepository defines the read contract for linked accounts
type LinkedAccountRepository interface {
	// ListActive retrieves the non-deleted, non-frozen linked accounts of a
	// user account. A non-empty ids slice further restricts the result to
	// that subset.
	ListActive(ctx context.Context, userAccountID int64, ids []int64) ([]*LinkedAccount, error)

	// ListUserAccountIDs retrieves every user account id that owns at least
	// one active linked account. Used by the batch driver.
	ListUserAccountIDs(ctx context.Context) ([]int64, error)
}

// CredentialResolver resolves a linked account's decrypted credentials
// payload. Storage and decryption mechanics are external to the core.
type CredentialResolver interface {
	Resolve(ctx context.Context, linkedAccountID int64) (json.RawMessage, error)
}

// SnapshotRepository defines the staged persistence contract for snapshots.
// A failure at any stage leaves the snapshot durably in a non-terminal or
// Failed state; nothing here retries.
type SnapshotRepository interface {
	// Create persists the Processing shell with its start time, before any
	// fetch begins.
	Create(ctx context.Context, snapshot *Snapshot) error

	// AttachRates persists the resolved Xccy rates after FX resolution.
	AttachRates(ctx context.Context, snapshotID uuid.UUID, rates RateSet) error

	// Complete persists the full entry tree and moves the snapshot to
	// Success with its end time, atomically.
	Complete(ctx context.Context, snapshot *Snapshot) error

	// MarkFailed moves the snapshot to Failed with its end time. The
	// transition only applies while the snapshot is still Processing.
	MarkFailed(ctx context.Context, snapshotID uuid.UUID, at time.Time) error

	// PriorSuccessful retrieves up to limit fully-loaded successful
	// snapshots of the user account ending before the given time, ordered
	// by end time descending, then id descending.
	PriorSuccessful(ctx context.Context, userAccountID int64, before time.Time, limit int) ([]*Snapshot, error)
}

// HistoryRepository defines the staged persistence contract for valuation
// history. Available is the read-visibility gate: it flips only after every
// record and change has been written.
type HistoryRepository interface {
	// Create persists the entry shell and its total record with
	// available=false.
	Create(ctx context.Context, entry *HistoryEntry) error

	// AddRecords persists the per-linked-account, per-sub-account and
	// per-item records of the entry, changes included.
	AddRecords(ctx context.Context, entry *HistoryEntry) error

	// MarkAvailable flips the entry's availability gate. Called last.
	MarkAvailable(ctx context.Context, entryID uuid.UUID) error

	// LatestAvailable retrieves the most recent available entry of the user
	// account effective before the given time, fully loaded for keyed
	// baseline lookups. Returns ErrNoHistory when none exists.
	LatestAvailable(ctx context.Context, userAccountID int64, before time.Time) (*HistoryEntry, error)
}

// ProviderClient fetches financial data for one linked account. Adapters are
// external; the core only depends on this call contract.
type ProviderClient interface {
	FetchFinancialData(ctx context.Context, req LinkedAccountRequest) (*ProviderPayload, error)
}

// ProviderRegistry resolves a provider id to its client.
type ProviderRegistry interface {
	// ClientFor returns the client for the given provider id, or
	// ErrUnknownProvider.
	ClientFor(providerID string) (ProviderClient, error)
}

// RateSource resolves a batch of currency pairs. Pairs absent from the
// returned set are unresolved; the source never fabricates rates.
type RateSource interface {
	ResolveRates(ctx context.Context, pairs []XccyPair) (RateSet, error)
}

// Notifier delivers the end-of-run valuation notification. Best effort:
// callers log and swallow its errors.
type Notifier interface {
	NotifyValuation(ctx context.Context, total decimal.Decimal, oneDayChange *ValuationChange, currency string) error
}
