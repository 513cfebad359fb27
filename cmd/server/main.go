package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrimo/valuation-backend/internal/adapter/httpapi"
	"github.com/patrimo/valuation-backend/internal/adapter/notify"
	"github.com/patrimo/valuation-backend/internal/adapter/provider"
	"github.com/patrimo/valuation-backend/internal/adapter/repository/postgres"
	"github.com/patrimo/valuation-backend/internal/config"
	"github.com/patrimo/valuation-backend/internal/logger"
	"github.com/patrimo/valuation-backend/internal/usecase/fetcher"
	"github.com/patrimo/valuation-backend/internal/usecase/fxrate"
	"github.com/patrimo/valuation-backend/internal/usecase/history"
	"github.com/patrimo/valuation-backend/internal/usecase/valuation"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)

	// 1. Database
	db, err := postgres.NewDB(cfg.Database.ConnString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// 2. Repositories
	linkedAccountRepo := postgres.NewLinkedAccountRepository(db)
	credentialRepo := postgres.NewCredentialRepository(db)
	snapshotRepo := postgres.NewSnapshotRepository(db)
	historyRepo := postgres.NewHistoryRepository(db)

	// 3. External collaborators. Concrete provider clients and the FX source
	// are deployment-specific adapters registered here.
	registry := provider.NewRegistry()
	rateSource := provider.NewStaticRateSource(nil)

	// 4. Services
	fetchService := fetcher.NewService(registry, credentialRepo, cfg.Valuation.FetchWorkers, log)
	rateService := fxrate.NewService(rateSource, log)
	historyWriter := history.NewWriter(historyRepo, log)
	notifier := notify.NewLogNotifier(log)

	valuationService := valuation.NewService(
		linkedAccountRepo,
		snapshotRepo,
		fetchService,
		rateService,
		historyWriter,
		notifier,
		cfg.Valuation.Currency,
		log,
	)
	valuationService.Lookback = cfg.Valuation.SnapshotLookback

	// 5. HTTP server
	apiServer := httpapi.NewServer(valuationService, log)
	server := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: apiServer.Router(cfg.Server.APIToken),
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(server, log)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the
// server.
func waitForShutdown(server *http.Server, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("http server stopped")
}
