package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patrimo/valuation-backend/internal/domain"
	"github.com/patrimo/valuation-backend/internal/usecase/reconcile"
)

// MockHistoryRepository is a mock implementation of domain.HistoryRepository
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockHistoryRepository) AddRecords(ctx context.Context, entry *domain.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockHistoryRepository) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockHistoryRepository) LatestAvailable(ctx context.Context, userAccountID int64, before time.Time) (*domain.HistoryEntry, error) {
	args := m.Called(ctx, userAccountID, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HistoryEntry), args.Error(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func itemRow(la int64, saID, name, value, snapshotValue string, kind domain.ItemKind) reconcile.Row {
	item := domain.Item{
		Kind:          kind,
		Name:          name,
		Value:         dec(value),
		SnapshotValue: dec(snapshotValue),
	}
	return reconcile.Row{
		LinkedAccountID: la,
		SubAccount:      domain.SubAccount{ID: saID, Currency: "EUR", Type: domain.SubAccountTypeCurrent},
		Item:            &item,
	}
}

func testView() *reconcile.View {
	return &reconcile.View{
		SnapshotID:    uuid.New(),
		UserAccountID: 7,
		Currency:      "GBP",
		EffectiveAt:   time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		Rows: []reconcile.Row{
			itemRow(1, "SA_01", "Cash", "1000", "850", domain.ItemKindAsset),
			itemRow(1, "SA_01", "Overdraft", "200", "170", domain.ItemKindLiability),
			{
				LinkedAccountID: 1,
				SubAccount:      domain.SubAccount{ID: "SA_02", Currency: "EUR"},
			},
			itemRow(2, "SA_03", "Equity", "500", "425", domain.ItemKindAsset),
		},
	}
}

func TestWriter_Write_NoBaseline(t *testing.T) {
	repo := new(MockHistoryRepository)
	w := NewWriter(repo, zerolog.Nop())
	view := testView()

	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.HistoryEntry")).Return(nil)
	repo.On("LatestAvailable", mock.Anything, int64(7), mock.AnythingOfType("time.Time")).
		Return(nil, domain.ErrNoHistory)
	repo.On("AddRecords", mock.Anything, mock.AnythingOfType("*domain.HistoryEntry")).Return(nil)
	repo.On("MarkAvailable", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return(nil)

	entry, err := w.Write(context.Background(), view)

	require.NoError(t, err)
	assert.True(t, entry.Available)
	// 850 - 170 + 425
	assert.True(t, entry.Total.Value.Equal(dec("1105")), "total = %s", entry.Total.Value)
	assert.Nil(t, entry.Total.Change)
	assert.Nil(t, entry.Total.OneDayChange)

	require.Len(t, entry.LinkedAccounts, 2)
	assert.True(t, entry.LinkedAccounts[0].Value.Equal(dec("680")))
	assert.True(t, entry.LinkedAccounts[1].Value.Equal(dec("425")))

	// The empty sub-account marker still produces a zero-valued record.
	require.Len(t, entry.SubAccounts, 3)
	assert.Equal(t, "SA_02", entry.SubAccounts[1].SubAccountID)
	assert.True(t, entry.SubAccounts[1].Value.IsZero())
	assert.Equal(t, "EUR", entry.SubAccounts[1].NativeCurrency)

	// Native values are signed in the sub-account's own currency.
	assert.True(t, entry.SubAccounts[0].NativeValue.Equal(dec("800")))

	require.Len(t, entry.Items, 3)
	v, ok := entry.ItemValue(1, "SA_01", domain.ItemKindLiability, "Overdraft")
	require.True(t, ok)
	assert.True(t, v.Equal(dec("-170")))

	repo.AssertExpectations(t)
}

func TestWriter_Write_ComputesChangesAgainstBaselines(t *testing.T) {
	repo := new(MockHistoryRepository)
	w := NewWriter(repo, zerolog.Nop())
	view := testView()

	baseline := &domain.HistoryEntry{
		Total: domain.TotalValuationRecord{Value: dec("1000")},
		LinkedAccounts: []domain.LinkedAccountValuationRecord{
			{LinkedAccountID: 1, Value: dec("600")},
		},
		SubAccounts: []domain.SubAccountValuationRecord{
			{LinkedAccountID: 1, SubAccountID: "SA_01", Value: dec("600")},
		},
		Items: []domain.ItemValuationRecord{
			{LinkedAccountID: 1, SubAccountID: "SA_01", Kind: domain.ItemKindAsset, Name: "Cash", Value: dec("800")},
		},
	}
	oneDayBaseline := &domain.HistoryEntry{
		Total: domain.TotalValuationRecord{Value: dec("1100")},
	}

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("LatestAvailable", mock.Anything, int64(7), view.EffectiveAt).
		Return(baseline, nil).Once()
	repo.On("LatestAvailable", mock.Anything, int64(7), view.EffectiveAt.Add(-24*time.Hour)).
		Return(oneDayBaseline, nil).Once()
	repo.On("AddRecords", mock.Anything, mock.Anything).Return(nil)
	repo.On("MarkAvailable", mock.Anything, mock.Anything).Return(nil)

	entry, err := w.Write(context.Background(), view)

	require.NoError(t, err)
	require.NotNil(t, entry.Total.Change)
	assert.True(t, entry.Total.Change.Amount.Equal(dec("105")))
	require.NotNil(t, entry.Total.Change.Percent)
	assert.True(t, entry.Total.Change.Percent.Equal(dec("10.5")))

	require.NotNil(t, entry.Total.OneDayChange)
	assert.True(t, entry.Total.OneDayChange.Amount.Equal(dec("5")))

	// Known keys get a change, unknown keys stay nil.
	require.NotNil(t, entry.LinkedAccounts[0].Change)
	assert.True(t, entry.LinkedAccounts[0].Change.Amount.Equal(dec("80")))
	assert.Nil(t, entry.LinkedAccounts[1].Change)

	require.NotNil(t, entry.Items[0].Change)
	assert.True(t, entry.Items[0].Change.Amount.Equal(dec("50")))
	assert.Nil(t, entry.Items[1].Change)

	repo.AssertExpectations(t)
}

func TestWriter_Write_AddRecordsFailureLeavesUnavailable(t *testing.T) {
	repo := new(MockHistoryRepository)
	w := NewWriter(repo, zerolog.Nop())

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("LatestAvailable", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrNoHistory)
	repo.On("AddRecords", mock.Anything, mock.Anything).Return(errors.New("db down"))

	entry, err := w.Write(context.Background(), testView())

	assert.Error(t, err)
	assert.Nil(t, entry)
	repo.AssertNotCalled(t, "MarkAvailable", mock.Anything, mock.Anything)
}

func TestWriter_Write_CreateFailure(t *testing.T) {
	repo := new(MockHistoryRepository)
	w := NewWriter(repo, zerolog.Nop())

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	entry, err := w.Write(context.Background(), testView())

	assert.Error(t, err)
	assert.Nil(t, entry)
	repo.AssertNotCalled(t, "LatestAvailable", mock.Anything, mock.Anything, mock.Anything)
}
