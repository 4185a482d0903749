// Command server runs the pipeline incident-response engine: the HTTP API,
// the background detection scheduler, and the run-ledger retention loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipemedic/internal/agent"
	"pipemedic/internal/api"
	"pipemedic/internal/config"
	"pipemedic/internal/db"
	"pipemedic/internal/db/repository"
	"pipemedic/internal/domain"
	"pipemedic/internal/middleware"
	"pipemedic/internal/modelstore"
	"pipemedic/internal/service"
	"pipemedic/internal/warehouse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipemedic",
		Short:         "Incident-response engine for scheduled data pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metastore migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 4)
			if err != nil {
				return fmt.Errorf("open metastore: %w", err)
			}
			defer writeDB.Close()
			defer readDB.Close()
			if err := db.RunMigrations(writeDB); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return config.LoadFromEnv()
}

func serve(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	// Metastore: single-connection write pool, wider read pool.
	writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return fmt.Errorf("open metastore: %w", err)
	}
	defer writeDB.Close()
	defer readDB.Close()
	if err := db.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Warehouse data plane.
	duckDB, err := warehouse.Open(cfg.WarehousePath)
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer duckDB.Close()
	wh := warehouse.New(duckDB)

	// Transformation definitions and the external build step.
	if err := os.MkdirAll(cfg.ModelsDir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	models, err := modelstore.New(cfg.ModelsDir)
	if err != nil {
		return err
	}
	builder := modelstore.NewCommandBuilder(cfg.ModelsDir, cfg.BuildCommand)

	// Repositories and services.
	pipelineRepo := repository.NewPipelineRepo(writeDB, readDB)
	runRepo := repository.NewRunRepo(writeDB, readDB)
	qualityRepo := repository.NewQualityRepo(writeDB, readDB)
	actionRepo := repository.NewActionRepo(writeDB, readDB)
	snapshotRepo := repository.NewSchemaSnapshotRepo(writeDB, readDB)

	registry := service.NewRegistryService(pipelineRepo, runRepo)
	ledger := service.NewLedgerService(pipelineRepo, runRepo)
	drift := service.NewDriftService(wh, snapshotRepo, logger)
	quality := service.NewQualityService(qualityRepo, pipelineRepo, wh, logger)
	audit := service.NewAuditService(actionRepo)
	sandbox := service.NewSandboxService(wh, audit, logger)
	fix := service.NewFixService(models, builder, audit, logger)

	var reasoner domain.Reasoner = agent.Unavailable{}
	if cfg.ReasonerEnabled() {
		ops := agent.NewRegistry(registry, ledger, drift, quality, audit, sandbox, models)
		clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" {
			clientCfg.BaseURL = cfg.OpenAIBaseURL
		}
		reasoner = agent.New(openai.NewClientWithConfig(clientCfg), cfg.OpenAIModel, ops, logger)
	}

	incidents := service.NewIncidentService(registry, runRepo, drift, quality, fix, audit, models, reasoner, logger)
	scheduler := service.NewScheduler(incidents, audit, cfg.CheckInterval, logger)

	handler := api.NewHandler(registry, ledger, drift, quality, incidents, scheduler, audit, sandbox, reasoner, logger)
	router := handler.Routes(api.RouterConfig{
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http api listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := scheduler.Start(0); err != nil {
			return err
		}
		<-gctx.Done()
		return scheduler.Stop()
	})

	// Daily run-ledger retention purge.
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				purged, err := ledger.Purge(gctx, cfg.RunRetention)
				if err != nil {
					logger.Error("run purge failed", "error", err)
					continue
				}
				if purged > 0 {
					logger.Info("purged old runs", "count", purged)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
