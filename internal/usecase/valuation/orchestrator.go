package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrimo/valuation-backend/internal/domain"
	"github.com/patrimo/valuation-backend/internal/usecase/fetcher"
	"github.com/patrimo/valuation-backend/internal/usecase/fxrate"
	"github.com/patrimo/valuation-backend/internal/usecase/history"
	"github.com/patrimo/valuation-backend/internal/usecase/reconcile"
	"github.com/patrimo/valuation-backend/internal/usecase/snapshot"
)

// defaultLookback bounds how many prior snapshots reconciliation walks when
// gap-filling failed accounts.
const defaultLookback = 10

// requestedLineItems is the full set asked of every provider.
var requestedLineItems = []domain.LineItem{
	domain.LineItemBalances,
	domain.LineItemAssets,
	domain.LineItemLiabilities,
}

// Service sequences one valuation workflow run: fetch → normalize → persist →
// reconcile → write history → notify. It performs no retries; fatal errors
// propagate untouched after the snapshot is marked Failed.
type Service struct {
	LinkedAccounts domain.LinkedAccountRepository
	Snapshots      domain.SnapshotRepository
	Fetcher        *fetcher.Service
	Rates          *fxrate.Service
	History        *history.Writer
	Notifier       domain.Notifier

	Currency string // valuation currency for every run
	Lookback int
	Now      func() time.Time
	Log      zerolog.Logger
}

// NewService creates a new Service instance
func NewService(
	linkedAccounts domain.LinkedAccountRepository,
	snapshots domain.SnapshotRepository,
	fetcherSvc *fetcher.Service,
	rates *fxrate.Service,
	historyWriter *history.Writer,
	notifier domain.Notifier,
	currency string,
	log zerolog.Logger,
) *Service {
	return &Service{
		LinkedAccounts: linkedAccounts,
		Snapshots:      snapshots,
		Fetcher:        fetcherSvc,
		Rates:          rates,
		History:        historyWriter,
		Notifier:       notifier,
		Currency:       currency,
		Lookback:       defaultLookback,
		Now:            time.Now,
		Log:            log,
	}
}

// Run executes the valuation workflow for one request.
func (s *Service) Run(ctx context.Context, req domain.ValuationRequest) (*domain.ValuationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := s.Log.With().Int64("user_account_id", req.UserAccountID).Logger()

	view, err := s.acquireSnapshot(ctx, req, log)
	if err != nil {
		return nil, err
	}

	entry, err := s.History.Write(ctx, view)
	if err != nil {
		return nil, err
	}
	log.Info().Str("history_entry_id", entry.ID.String()).Msg("valuation history written")

	s.notify(ctx, entry, log)

	return &domain.ValuationResponse{
		HistoryEntryID:       entry.ID,
		UserAccountValuation: entry.Total.Value,
		ValuationCurrency:    entry.Currency,
		ValuationDate:        entry.EffectiveAt,
		ValuationChange:      entry.Total.Change,
	}, nil
}

// acquireSnapshot performs the fetch/normalize/persist/reconcile stages and
// returns the consistent view. Fatal errors after the shell exists mark the
// snapshot Failed, best effort.
func (s *Service) acquireSnapshot(ctx context.Context, req domain.ValuationRequest, log zerolog.Logger) (*reconcile.View, error) {
	accounts, err := s.LinkedAccounts.ListActive(ctx, req.UserAccountID, req.LinkedAccountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	log.Info().Int("linked_accounts", len(accounts)).Msg("valuation run started")

	// The shell is created before any fetch so a trace exists even on total
	// failure.
	snap := domain.NewSnapshot(req.UserAccountID, s.Currency, s.Now())
	if err := s.Snapshots.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	view, err := s.buildAndReconcile(ctx, snap, accounts, log)
	if err != nil {
		s.failSnapshot(ctx, snap, log)
		return nil, err
	}
	return view, nil
}

func (s *Service) buildAndReconcile(ctx context.Context, snap *domain.Snapshot, accounts []*domain.LinkedAccount, log zerolog.Logger) (*reconcile.View, error) {
	results := s.Fetcher.FetchAll(ctx, accounts, requestedLineItems, snap.Currency)

	collector := snapshot.NewPairCollector(snap.Currency)
	if err := snapshot.Traverse(results, collector); err != nil {
		return nil, err
	}

	rates, err := s.Rates.Resolve(ctx, collector.Pairs())
	if err != nil {
		return nil, err
	}
	if err := s.Snapshots.AttachRates(ctx, snap.ID, rates); err != nil {
		return nil, fmt.Errorf("failed to attach rates: %w", err)
	}
	snap.Rates = rates

	builder := snapshot.NewBuilder(snap, rates)
	if err := snapshot.Traverse(results, builder); err != nil {
		return nil, err
	}
	summary := builder.Summary()
	log.Info().
		Int("fetched", summary.Total).
		Int("failures", summary.Failures).
		Msg("snapshot tree built")

	if err := snap.Finish(domain.SnapshotStatusSuccess, s.Now()); err != nil {
		return nil, err
	}
	if err := s.Snapshots.Complete(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to complete snapshot: %w", err)
	}

	lookback := s.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	prior, err := s.Snapshots.PriorSuccessful(ctx, snap.UserAccountID, snap.StartTime, lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior snapshots: %w", err)
	}

	return reconcile.Reconcile(snap, prior)
}

// failSnapshot moves the snapshot to Failed. Best effort: an already-terminal
// snapshot or a storage error is only logged.
func (s *Service) failSnapshot(ctx context.Context, snap *domain.Snapshot, log zerolog.Logger) {
	if snap.Status.Terminal() {
		return
	}
	if err := s.Snapshots.MarkFailed(ctx, snap.ID, s.Now()); err != nil {
		log.Warn().Err(err).Str("snapshot_id", snap.ID.String()).Msg("failed to mark snapshot failed")
	}
}

// notify fires the best-effort valuation notification. Failures are swallowed
// and logged; they never fail the run.
func (s *Service) notify(ctx context.Context, entry *domain.HistoryEntry, log zerolog.Logger) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.NotifyValuation(ctx, entry.Total.Value, entry.Total.OneDayChange, entry.Currency); err != nil {
		log.Warn().Err(err).Msg("valuation notification failed")
	}
}

// RunAll executes the workflow for every user account that owns active linked
// accounts. One account's fatal failure never halts the batch: it is caught
// and logged per account.
func (s *Service) RunAll(ctx context.Context) error {
	ids, err := s.LinkedAccounts.ListUserAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list user accounts: %w", err)
	}

	failures := 0
	for _, id := range ids {
		if _, err := s.Run(ctx, domain.ValuationRequest{UserAccountID: id}); err != nil {
			failures++
			s.Log.Error().Err(err).Int64("user_account_id", id).Msg("valuation run failed")
		}
	}
	s.Log.Info().Int("accounts", len(ids)).Int("failures", failures).Msg("valuation batch complete")
	return nil
}
