package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/patrimo/valuation-backend/internal/domain"
	"github.com/patrimo/valuation-backend/internal/worker"
)

// Service fetches raw financial data for a batch of linked accounts over a
// bounded worker pool. One account's failure never aborts its siblings: every
// failure mode is converted into a LinkedAccountResult carrying structured
// detail.
type Service struct {
	Registry    domain.ProviderRegistry
	Credentials domain.CredentialResolver
	Workers     int
	Log         zerolog.Logger
}

// NewService creates a new Service instance
func NewService(registry domain.ProviderRegistry, credentials domain.CredentialResolver, workers int, log zerolog.Logger) *Service {
	return &Service{Registry: registry, Credentials: credentials, Workers: workers, Log: log}
}

// FetchAll issues one provider call per linked account and returns exactly
// one result per account, paired in input order regardless of completion
// order.
func (s *Service) FetchAll(ctx context.Context, accounts []*domain.LinkedAccount, lineItems []domain.LineItem, currency string) []domain.LinkedAccountResult {
	reqs := make([]domain.LinkedAccountRequest, len(accounts))
	credErrs := make([]error, len(accounts))
	for i, acct := range accounts {
		creds, err := s.Credentials.Resolve(ctx, acct.ID)
		if err != nil {
			credErrs[i] = err
		}
		reqs[i] = domain.LinkedAccountRequest{
			LinkedAccountID: acct.ID,
			ProviderID:      acct.ProviderID,
			Credentials:     creds,
			LineItems:       lineItems,
			Currency:        currency,
		}
	}

	pool := worker.NewPool[int, domain.LinkedAccountResult](s.Workers)
	indexes := make([]int, len(reqs))
	for i := range indexes {
		indexes[i] = i
	}

	results := pool.Run(ctx, indexes, func(ctx context.Context, i int) domain.LinkedAccountResult {
		if credErrs[i] != nil {
			return domain.FailedResult(reqs[i], domain.FailureDetail{
				Message:        credErrs[i].Error(),
				Classification: "credentials",
			})
		}
		return s.fetchOne(ctx, reqs[i])
	})

	failures := 0
	for _, res := range results {
		if !res.Success() {
			failures++
		}
	}
	s.Log.Info().
		Int("accounts", len(accounts)).
		Int("failures", failures).
		Msg("linked account fetch complete")

	return results
}

// fetchOne performs a single provider call, converting every failure mode
// (error return, unknown provider, panic) into a failed result.
func (s *Service) fetchOne(ctx context.Context, req domain.LinkedAccountRequest) (res domain.LinkedAccountResult) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error().
				Int64("linked_account_id", req.LinkedAccountID).
				Interface("panic", r).
				Msg("provider call panicked")
			res = domain.FailedResult(req, domain.FailureDetail{
				Message:        fmt.Sprintf("provider call panicked: %v", r),
				Classification: "internal",
			})
		}
	}()

	client, err := s.Registry.ClientFor(req.ProviderID)
	if err != nil {
		return domain.FailedResult(req, domain.FailureDetail{
			Message:        err.Error(),
			Classification: "unknown_provider",
		})
	}

	payload, err := client.FetchFinancialData(ctx, req)
	if err != nil {
		return domain.FailedResult(req, classify(err))
	}
	if payload == nil {
		return domain.FailedResult(req, domain.FailureDetail{
			Message:        "provider returned no payload",
			Classification: "transport",
		})
	}
	return domain.LinkedAccountResult{Request: req, Payload: payload}
}

// classify turns a provider call error into structured failure detail.
func classify(err error) domain.FailureDetail {
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		return domain.FailureDetail{Message: provErr.Message, Classification: provErr.Classification}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureDetail{Message: err.Error(), Classification: "timeout"}
	}
	return domain.FailureDetail{Message: err.Error(), Classification: "transport"}
}
