package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"quillcast/app/internal/account"
	"quillcast/app/internal/config"
	appdb "quillcast/app/internal/db"
	"quillcast/app/internal/discover"
	apphttp "quillcast/app/internal/http"
	"quillcast/app/internal/llm"
	applog "quillcast/app/internal/log"
	"quillcast/app/internal/studio"
	"quillcast/app/internal/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "failure loading configuration")
	}

	logger, err := applog.NewLogger(cfg.LogLevel)
	if err != nil {
		return eris.Wrap(err, "failure initialising logger")
	}

	sentryHub, flush, err := applog.InitSentry(logger, applog.SentrySettings{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising sentry")
	}
	defer flush()

	dbConn, err := appdb.Open(appdb.Options{URL: cfg.DatabaseURL, Path: cfg.DBPath})
	if err != nil {
		return eris.Wrap(err, "opening database")
	}
	defer func() {
		if closeErr := appdb.Close(dbConn); closeErr != nil {
			logger.WithError(closeErr).Error("closing database")
		}
	}()

	if err := account.Migrate(ctx, dbConn, logger); err != nil {
		return eris.Wrap(err, "running account migrations")
	}
	if err := voice.Migrate(ctx, dbConn, logger); err != nil {
		return eris.Wrap(err, "running voice migrations")
	}
	if err := discover.Migrate(ctx, dbConn, logger); err != nil {
		return eris.Wrap(err, "running discover migrations")
	}
	if err := studio.Migrate(ctx, dbConn, logger); err != nil {
		return eris.Wrap(err, "running studio migrations")
	}

	accounts, err := account.NewRepository(dbConn, logger)
	if err != nil {
		return eris.Wrap(err, "building account repository")
	}

	if cfg.BootstrapEmail != "" {
		acct, rawKey, err := account.EnsureAccount(ctx, accounts, cfg.BootstrapName, cfg.BootstrapEmail)
		if err != nil {
			return eris.Wrap(err, "provisioning bootstrap account")
		}
		if rawKey != "" {
			// Printed once; only the hash is stored.
			logger.WithFields(logrus.Fields{
				"account_id": acct.ID,
				"email":      acct.Email,
				"api_key":    rawKey,
			}).Warn("bootstrap account created, store this API key now")
		}
	}
	voices, err := voice.NewRepository(dbConn, logger)
	if err != nil {
		return eris.Wrap(err, "building voice repository")
	}
	pillars, err := discover.NewRepository(dbConn, logger)
	if err != nil {
		return eris.Wrap(err, "building discover repository")
	}
	generations, err := studio.NewRepository(dbConn, logger)
	if err != nil {
		return eris.Wrap(err, "building studio repository")
	}

	client, err := llm.NewClient(llm.ClientOptions{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMEndpoint,
		Logger:  logger,
	})
	if err != nil {
		return eris.Wrap(err, "creating llm client")
	}

	if len(cfg.LLMModels) == 0 {
		return eris.New("LLM_MODELS must include at least one model name")
	}

	// Model order: generator, analyzer, discovery; missing entries fall back
	// to the previous one.
	generatorModel := modelAt(cfg.LLMModels, 0)
	analyzerModel := modelAt(cfg.LLMModels, 1)
	discoveryModel := modelAt(cfg.LLMModels, 2)

	analyzer, err := llm.NewAnalyzer(llm.AnalyzerOptions{Client: client, Model: analyzerModel})
	if err != nil {
		return eris.Wrap(err, "initialising voice analyzer")
	}
	generator, err := llm.NewGenerator(llm.GeneratorOptions{Client: client, Model: generatorModel})
	if err != nil {
		return eris.Wrap(err, "initialising generator")
	}
	finder, err := llm.NewPillarFinder(llm.PillarFinderOptions{Client: client, Model: discoveryModel})
	if err != nil {
		return eris.Wrap(err, "initialising pillar finder")
	}
	topics, err := llm.NewTopicSuggester(llm.TopicSuggesterOptions{Client: client, Model: discoveryModel})
	if err != nil {
		return eris.Wrap(err, "initialising topic suggester")
	}
	trends, err := llm.NewTrendScorer(llm.TrendScorerOptions{Client: client, Model: discoveryModel})
	if err != nil {
		return eris.Wrap(err, "initialising trend scorer")
	}
	deck, err := llm.NewDeckAnalyzer(llm.DeckAnalyzerOptions{Client: client, Model: analyzerModel})
	if err != nil {
		return eris.Wrap(err, "initialising deck analyzer")
	}

	voiceService, err := voice.NewService(voices, analyzer, deck, logger, sentryHub, pillars, generations)
	if err != nil {
		return eris.Wrap(err, "creating voice service")
	}

	discoverService, err := discover.NewService(discover.ServiceOptions{
		Repo:      pillars,
		Voices:    voices,
		Finder:    finder,
		Topics:    topics,
		Trends:    trends,
		Logger:    logger,
		SentryHub: sentryHub,
	})
	if err != nil {
		return eris.Wrap(err, "creating discover service")
	}

	studioService, err := studio.NewService(studio.ServiceOptions{
		Repo:      generations,
		Voices:    voices,
		Pillars:   pillars,
		Generator: generator,
		Logger:    logger,
		SentryHub: sentryHub,
	})
	if err != nil {
		return eris.Wrap(err, "creating studio service")
	}

	transport, err := apphttp.NewServer(apphttp.Options{
		VoiceService:    voiceService,
		StudioService:   studioService,
		DiscoverService: discoverService,
		Accounts:        accounts,
		Database:        dbConn,
		Logger:          logger,
		SentryHub:       sentryHub,
		RateLimiter: apphttp.RateLimiterSettings{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
	})
	if err != nil {
		return eris.Wrap(err, "initialising http transport")
	}

	httpServer := &stdhttp.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.ServerPort),
		Handler: transport.Handler(),
	}

	logger.WithFields(logrus.Fields{
		"addr": httpServer.Addr,
	}).Info("starting http server")

	serverErrCh := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			return eris.Wrap(err, "http server error")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "shutting down http server")
	}

	logger.Info("http server shut down cleanly")
	return nil
}

func modelAt(models []string, i int) string {
	if i < len(models) {
		return models[i]
	}
	return models[len(models)-1]
}
