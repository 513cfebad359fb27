package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrimo/valuation-backend/internal/domain"
	"github.com/patrimo/valuation-backend/internal/usecase/fetcher"
	"github.com/patrimo/valuation-backend/internal/usecase/fxrate"
	"github.com/patrimo/valuation-backend/internal/usecase/history"
)

// In-memory fakes wiring the whole workflow without a database or network.

type fakeLinkedAccounts struct {
	accounts map[int64][]*domain.LinkedAccount
	listErr  map[int64]error
}

func (f *fakeLinkedAccounts) ListActive(_ context.Context, userAccountID int64, _ []int64) ([]*domain.LinkedAccount, error) {
	if err := f.listErr[userAccountID]; err != nil {
		return nil, err
	}
	return f.accounts[userAccountID], nil
}

func (f *fakeLinkedAccounts) ListUserAccountIDs(context.Context) ([]int64, error) {
	var ids []int64
	for id := range f.accounts {
		ids = append(ids, id)
	}
	for id := range f.listErr {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeSnapshots struct {
	created   []*domain.Snapshot
	completed []*domain.Snapshot
	failed    []uuid.UUID
	prior     []*domain.Snapshot
}

func (f *fakeSnapshots) Create(_ context.Context, s *domain.Snapshot) error {
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSnapshots) AttachRates(context.Context, uuid.UUID, domain.RateSet) error { return nil }

func (f *fakeSnapshots) Complete(_ context.Context, s *domain.Snapshot) error {
	f.completed = append(f.completed, s)
	return nil
}

func (f *fakeSnapshots) MarkFailed(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeSnapshots) PriorSuccessful(context.Context, int64, time.Time, int) ([]*domain.Snapshot, error) {
	return f.prior, nil
}

type fakeHistoryRepo struct {
	entries    []*domain.HistoryEntry
	available  []uuid.UUID
	recordsFor []uuid.UUID
}

func (f *fakeHistoryRepo) Create(_ context.Context, e *domain.HistoryEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistoryRepo) AddRecords(_ context.Context, e *domain.HistoryEntry) error {
	f.recordsFor = append(f.recordsFor, e.ID)
	return nil
}

func (f *fakeHistoryRepo) MarkAvailable(_ context.Context, id uuid.UUID) error {
	f.available = append(f.available, id)
	return nil
}

func (f *fakeHistoryRepo) LatestAvailable(context.Context, int64, time.Time) (*domain.HistoryEntry, error) {
	return nil, domain.ErrNoHistory
}

type fakeCredentials struct{}

func (fakeCredentials) Resolve(context.Context, int64) (json.RawMessage, error) {
	return json.RawMessage(`{"token":"t"}`), nil
}

type stubClient struct {
	payload *domain.ProviderPayload
	err     error
}

func (c stubClient) FetchFinancialData(context.Context, domain.LinkedAccountRequest) (*domain.ProviderPayload, error) {
	return c.payload, c.err
}

type stubRegistry struct{ client domain.ProviderClient }

func (r stubRegistry) ClientFor(string) (domain.ProviderClient, error) { return r.client, nil }

type stubRateSource struct{ rates domain.RateSet }

func (s stubRateSource) ResolveRates(_ context.Context, pairs []domain.XccyPair) (domain.RateSet, error) {
	out := domain.RateSet{}
	for _, p := range pairs {
		if rate, ok := s.rates[p]; ok {
			out[p] = rate
		}
	}
	return out, nil
}

type recordingNotifier struct {
	calls int
	err   error
}

func (n *recordingNotifier) NotifyValuation(context.Context, decimal.Decimal, *domain.ValuationChange, string) error {
	n.calls++
	return n.err
}

func eurPayload() *domain.ProviderPayload {
	return &domain.ProviderPayload{
		Balances: []domain.BalanceEntry{
			{SubAccountID: "SA_01", Currency: "EUR", Type: domain.SubAccountTypeCurrent},
		},
		Assets: []domain.AssetEntry{
			{SubAccountID: "SA_01", Name: "Cash", Type: "cash", Value: decimal.RequireFromString("1000")},
		},
	}
}

type fixture struct {
	svc      *Service
	snaps    *fakeSnapshots
	histRepo *fakeHistoryRepo
	notifier *recordingNotifier
}

func newFixture(accounts *fakeLinkedAccounts, client domain.ProviderClient, rates domain.RateSet) *fixture {
	log := zerolog.Nop()
	snaps := &fakeSnapshots{}
	histRepo := &fakeHistoryRepo{}
	notifier := &recordingNotifier{}

	svc := NewService(
		accounts,
		snaps,
		fetcher.NewService(stubRegistry{client: client}, fakeCredentials{}, 2, log),
		fxrate.NewService(stubRateSource{rates: rates}, log),
		history.NewWriter(histRepo, log),
		notifier,
		"GBP",
		log,
	)
	return &fixture{svc: svc, snaps: snaps, histRepo: histRepo, notifier: notifier}
}

func singleAccount(userAccountID int64) *fakeLinkedAccounts {
	return &fakeLinkedAccounts{accounts: map[int64][]*domain.LinkedAccount{
		userAccountID: {{ID: 1, UserAccountID: userAccountID, ProviderID: "test_provider", Name: "Main"}},
	}}
}

func TestService_Run_HappyPath(t *testing.T) {
	rates := domain.RateSet{
		{Domestic: "EUR", Foreign: "GBP"}: decimal.RequireFromString("0.85"),
	}
	f := newFixture(singleAccount(7), stubClient{payload: eurPayload()}, rates)

	resp, err := f.svc.Run(context.Background(), domain.ValuationRequest{UserAccountID: 7})

	require.NoError(t, err)
	require.Len(t, f.histRepo.entries, 1)
	assert.Equal(t, f.histRepo.entries[0].ID, resp.HistoryEntryID)
	assert.True(t, resp.UserAccountValuation.Equal(decimal.RequireFromString("850")))
	assert.Equal(t, "GBP", resp.ValuationCurrency)
	assert.Nil(t, resp.ValuationChange)

	// Snapshot reached Success and the entry was published.
	require.Len(t, f.snaps.completed, 1)
	assert.Equal(t, domain.SnapshotStatusSuccess, f.snaps.completed[0].Status)
	assert.Empty(t, f.snaps.failed)
	assert.Equal(t, []uuid.UUID{resp.HistoryEntryID}, f.histRepo.available)

	assert.Equal(t, 1, f.notifier.calls)
}

func TestService_Run_MissingRatesFailsSnapshot(t *testing.T) {
	// No EUR/GBP rate available.
	f := newFixture(singleAccount(7), stubClient{payload: eurPayload()}, domain.RateSet{})

	resp, err := f.svc.Run(context.Background(), domain.ValuationRequest{UserAccountID: 7})

	require.Error(t, err)
	assert.Nil(t, resp)

	var missing *domain.MissingRatesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []domain.XccyPair{{Domestic: "EUR", Foreign: "GBP"}}, missing.Pairs)

	// The shell exists, is marked Failed, and no history was written.
	require.Len(t, f.snaps.created, 1)
	assert.Equal(t, []uuid.UUID{f.snaps.created[0].ID}, f.snaps.failed)
	assert.Empty(t, f.snaps.completed)
	assert.Empty(t, f.histRepo.entries)
}

func TestService_Run_ProviderFailureStillValues(t *testing.T) {
	// The only account fails at fetch, so the snapshot holds a failure entry
	// and, with no prior successes, the valuation is empty but valid.
	f := newFixture(singleAccount(7), stubClient{err: errors.New("provider down")}, domain.RateSet{})

	resp, err := f.svc.Run(context.Background(), domain.ValuationRequest{UserAccountID: 7})

	require.NoError(t, err)
	assert.True(t, resp.UserAccountValuation.IsZero())
	require.Len(t, f.snaps.completed, 1)
	entry := f.snaps.completed[0].EntryFor(1)
	require.NotNil(t, entry)
	assert.False(t, entry.Success)
	assert.Equal(t, "transport", entry.Failure.Classification)
}

func TestService_Run_NotifierErrorSwallowed(t *testing.T) {
	rates := domain.RateSet{
		{Domestic: "EUR", Foreign: "GBP"}: decimal.RequireFromString("0.85"),
	}
	f := newFixture(singleAccount(7), stubClient{payload: eurPayload()}, rates)
	f.notifier.err = errors.New("smtp down")

	resp, err := f.svc.Run(context.Background(), domain.ValuationRequest{UserAccountID: 7})

	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 1, f.notifier.calls)
}

func TestService_Run_InvalidRequest(t *testing.T) {
	f := newFixture(singleAccount(7), stubClient{payload: eurPayload()}, domain.RateSet{})

	resp, err := f.svc.Run(context.Background(), domain.ValuationRequest{})

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, f.snaps.created)
}

func TestService_RunAll_IsolatesAccountFailures(t *testing.T) {
	accounts := singleAccount(7)
	accounts.listErr = map[int64]error{9: errors.New("db down")}
	rates := domain.RateSet{
		{Domestic: "EUR", Foreign: "GBP"}: decimal.RequireFromString("0.85"),
	}
	f := newFixture(accounts, stubClient{payload: eurPayload()}, rates)

	err := f.svc.RunAll(context.Background())

	// The batch never fails on one account's error; the healthy account was
	// still valued.
	require.NoError(t, err)
	assert.Len(t, f.histRepo.entries, 1)
	assert.Equal(t, int64(7), f.histRepo.entries[0].UserAccountID)
}
