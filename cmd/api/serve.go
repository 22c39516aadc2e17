package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"menu3d/internal/adapter/repo"
	"menu3d/internal/event"
	"menu3d/internal/generation"
	"menu3d/internal/http/handlers"
	"menu3d/internal/http/httpapi"
	"menu3d/internal/infra"
	"menu3d/internal/infra/credentials"
	"menu3d/internal/infra/geoip"
	"menu3d/internal/providers/mesh"
	"menu3d/internal/storage"
)

func newServeCmd() *cobra.Command {
	var (
		skipMigrate bool
		grace       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the generation workers",
		Example: `  # Apply migrations and serve on $PORT
  menu3d serve

  # Serve against an already migrated database
  menu3d serve --skip-migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger, skipMigrate, grace)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply pending migrations on start-up")
	cmd.Flags().DurationVar(&grace, "shutdown-grace", 20*time.Second, "Time allowed for in-flight requests and jobs to finish")
	return cmd
}

func serve(ctx context.Context, cfg *infra.Config, logger infra.Logger, skipMigrate bool, grace time.Duration) error {
	if !skipMigrate {
		if err := infra.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	jobs := repo.NewJobRepository(runner)
	artifacts := repo.NewArtifactRepository(runner)

	if n, err := generation.ReconcileOnStartup(ctx, jobs, logger); err != nil {
		return fmt.Errorf("reconcile interrupted jobs: %w", err)
	} else if n > 0 {
		logger.Warn().Int64("jobs", n).Msg("marked interrupted jobs as failed")
	}

	token, err := credentials.ResolveReplicateToken(ctx, cfg.Provider.APIToken, credentials.NewStore(runner))
	if err != nil {
		return fmt.Errorf("resolve provider token: %w", err)
	}
	providerLogger := infra.Component(logger, "provider")
	provider, err := mesh.NewClient(mesh.Options{
		APIKey:           token,
		BaseURL:          cfg.Provider.BaseURL,
		Model:            cfg.Provider.Model,
		Version:          cfg.Provider.Version,
		Seed:             cfg.Provider.Seed,
		TextureSize:      cfg.Provider.TextureSize,
		MeshSimplify:     cfg.Provider.MeshSimplify,
		RemoveBackground: cfg.Provider.RemoveBackground,
		PollInterval:     cfg.Provider.PollInterval,
		Logger:           &providerLogger,
	})
	if err != nil {
		return err
	}
	if !provider.HasCredentials() {
		logger.Warn().Msg("no provider token configured; job submission is disabled")
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.PublicFilesPrefix)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}

	bus := event.NewBus(logger)
	if len(cfg.KafkaBrokers) > 0 {
		sink := event.NewKafkaSink(event.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger), logger)
		detach := sink.Attach(bus)
		defer func() {
			detach()
			if err := sink.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka sink")
			}
		}()
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing job events to kafka")
	}

	pool := generation.NewPool(cfg.WorkerConcurrency, cfg.WorkerQueueSize, logger)
	pool.Start()

	orchestrator := generation.NewOrchestrator(generation.OrchestratorOptions{
		Jobs:        jobs,
		Completions: repo.NewCompletionRepository(runner),
		Provider:    provider,
		Store:       store,
		Materializer: generation.NewMaterializer(generation.MaterializerOptions{
			Store:    store,
			Timeout:  cfg.DownloadTimeout,
			MaxBytes: cfg.MaxArtifactBytes,
			Logger:   logger,
		}),
		Bus:             bus,
		ProviderTimeout: cfg.Provider.Timeout,
		Logger:          logger,
	})
	gate := generation.NewGate(generation.GateOptions{
		Jobs:           jobs,
		Store:          store,
		Provider:       provider,
		Pool:           pool,
		Runner:         orchestrator,
		Bus:            bus,
		Arity:          cfg.ImageCount,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})
	svc := generation.NewService(generation.ServiceOptions{
		Gate:        gate,
		Jobs:        jobs,
		Artifacts:   artifacts,
		Provider:    provider,
		Bus:         bus,
		LongPollMax: cfg.LongPollMax,
	})

	var countries geoip.CountryResolver
	countryDB, err := geoip.OpenCountryDB(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if countryDB != nil {
		defer countryDB.Close()
		countries = countryDB
	}

	app := handlers.NewApp(svc, store, cfg.MaxUploadBytes, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		FilesPrefix:       cfg.PublicFilesPrefix,
		SubmitLimitPerMin: cfg.RateLimitPerMin,
		Countries:         countries,
		Logger:            logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	logger.Info().
		Str("addr", server.Addr()).
		Str("model", provider.Model()).
		Int("image_count", cfg.ImageCount).
		Int("workers", cfg.WorkerConcurrency).
		Msg("API listening")
	serveErr := server.Run(ctx, grace)

	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("generation workers did not stop in time")
	}
	if serveErr != nil {
		return serveErr
	}
	logger.Info().Msg("server stopped")
	return nil
}
