package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrimo/valuation-backend/internal/domain"
)

func result(linkedAccountID int64, payload *domain.ProviderPayload) domain.LinkedAccountResult {
	return domain.LinkedAccountResult{
		Request: domain.LinkedAccountRequest{
			LinkedAccountID: linkedAccountID,
			ProviderID:      "acme",
			LineItems:       []domain.LineItem{domain.LineItemBalances},
			Currency:        "GBP",
		},
		Payload: payload,
	}
}

func failedResult(linkedAccountID int64) domain.LinkedAccountResult {
	return domain.FailedResult(
		domain.LinkedAccountRequest{LinkedAccountID: linkedAccountID, ProviderID: "acme", Currency: "GBP",
			LineItems: []domain.LineItem{domain.LineItemBalances}},
		domain.FailureDetail{Message: "boom", Classification: "transport"},
	)
}

func TestPairCollector_CollectsDistinctNonIdentityPairs(t *testing.T) {
	collector := NewPairCollector("GBP")

	results := []domain.LinkedAccountResult{
		result(1, &domain.ProviderPayload{Balances: []domain.BalanceEntry{
			{SubAccountID: "SA_01", Currency: "EUR"},
			{SubAccountID: "SA_02", Currency: "GBP"}, // identity, excluded
			{SubAccountID: "SA_03", Currency: "USD"},
		}}),
		result(2, &domain.ProviderPayload{Balances: []domain.BalanceEntry{
			{SubAccountID: "SA_04", Currency: "EUR"}, // duplicate pair
		}}),
	}

	require.NoError(t, Traverse(results, collector))

	assert.Equal(t, []domain.XccyPair{
		{Domestic: "EUR", Foreign: "GBP"},
		{Domestic: "USD", Foreign: "GBP"},
	}, collector.Pairs())
}

func TestPairCollector_SkipsFailedAccounts(t *testing.T) {
	collector := NewPairCollector("GBP")

	require.NoError(t, Traverse([]domain.LinkedAccountResult{failedResult(1)}, collector))
	assert.Empty(t, collector.Pairs())
}
