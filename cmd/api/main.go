package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iago/market-analysis-back/internal/ai"
	"github.com/iago/market-analysis-back/internal/config"
	"github.com/iago/market-analysis-back/internal/events"
	httpserver "github.com/iago/market-analysis-back/internal/http"
	"github.com/iago/market-analysis-back/internal/http/handlers"
	"github.com/iago/market-analysis-back/internal/logging"
	"github.com/iago/market-analysis-back/internal/report"
	"github.com/iago/market-analysis-back/internal/repository"
	"github.com/iago/market-analysis-back/internal/service"
	"github.com/iago/market-analysis-back/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "market-analysis: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dotenvErr := config.LoadDotEnv(".env", ".env.local")
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	if dotenvErr != nil {
		logger.Warn("failed loading .env files", "error", dotenvErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := setupTaskStore(ctx, cfg, logger)
	defer closeStore()

	researcher, synthesizer := setupClients(cfg, logger)

	renderers := []report.Renderer{report.FPDFRenderer{}}
	if cfg.RenderChromeEnabled {
		renderers = append(renderers, report.NewHTMLRenderer(report.HTMLRendererConfig{Timeout: cfg.RenderTimeout}))
	}
	formatter := report.NewFormatter(report.FormatterConfig{
		OutputDir: cfg.OutputDir,
		Fetcher:   report.NewDownloader(report.DownloaderConfig{Timeout: cfg.ImageTimeout, Logger: logger}),
		Renderer:  report.NewChainRenderer(logger, renderers...),
		Logger:    logger,
	})

	hub := events.NewHub(logger)
	defer hub.Close()

	orchestrator, err := service.NewJobOrchestrator(service.Dependencies{
		Researcher:  researcher,
		Synthesizer: synthesizer,
		Formatter:   formatter,
		Store:       store,
		Pool:        worker.NewPool(cfg.MaxConcurrentJobs, logger),
		Notifier:    hub,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if cfg.JobRetention > 0 {
		sweeper, err := worker.NewSweeper(worker.SweeperConfig{
			Schedule:  cfg.JobSweepSchedule,
			Retention: cfg.JobRetention,
			Pruner:    orchestrator,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		sweeper.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sweeper.Stop(stopCtx)
		}()
	}

	handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            handlers.NewAPI(orchestrator),
		Stream:         hub,
		Logger:         logger,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		CreateRPS:      cfg.CreateRPS,
		CreateBurst:    cfg.CreateBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api listening", "port", cfg.Port, "dev_mode", cfg.DevMode, "output_dir", cfg.OutputDir)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	hub.Close()
	if err := orchestrator.Wait(shutdownCtx); err != nil {
		logger.Warn("abandoning in-flight jobs", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func setupClients(cfg config.Config, logger *logging.ContextLogger) (ai.Researcher, ai.Synthesizer) {
	if cfg.DevMode {
		logger.Info("dev mode enabled, using mock ai clients")
		return ai.MockResearchClient{Delay: 2 * time.Second}, ai.MockSynthesisClient{Delay: 3 * time.Second}
	}

	research := ai.NewResearchClient(ai.ResearchClientConfig{
		APIKey:  cfg.PerplexityAPIKey,
		BaseURL: cfg.PerplexityBaseURL,
		Model:   cfg.PerplexityModel,
		Policy: ai.RetryPolicy{
			Timeout:     cfg.PerplexityTimeout(),
			MaxRetries:  cfg.PerplexityMaxRetries,
			BackoffUnit: cfg.BackoffUnit(),
		},
		RPS:    cfg.PerplexityRPS,
		Logger: logger,
	})
	synthesis := ai.NewSynthesisClient(ai.SynthesisClientConfig{
		APIKey:    cfg.AnthropicAPIKey,
		BaseURL:   cfg.ClaudeBaseURL,
		Model:     cfg.ClaudeModel,
		MaxTokens: cfg.ClaudeMaxTokens,
		Policy: ai.RetryPolicy{
			Timeout:     cfg.ClaudeTimeout(),
			MaxRetries:  cfg.ClaudeMaxRetries,
			BackoffUnit: cfg.BackoffUnit(),
		},
		RPS:    cfg.ClaudeRPS,
		Logger: logger,
	})
	if !research.Available() {
		logger.Warn("PERPLEXITY_API_KEY not configured, research calls will fail")
	}
	if !synthesis.Available() {
		logger.Warn("ANTHROPIC_API_KEY not configured, synthesis calls will fail")
	}
	return research, synthesis
}

func setupTaskStore(ctx context.Context, cfg config.Config, logger *logging.ContextLogger) (repository.TaskStore, func()) {
	if cfg.DatabaseURL != "" {
		store, err := repository.NewPostgresTaskStore(ctx, cfg.DatabaseURL)
		if err == nil {
			logger.Info("postgres task store initialized")
			return store, store.Close
		}
		logger.Warn("failed to initialize postgres task store", "error", err)
	}

	if cfg.RedisAddr != "" {
		store, err := repository.NewRedisTaskStore(ctx, repository.RedisTaskConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err == nil {
			logger.Info("redis task store initialized")
			return store, func() { _ = store.Close() }
		}
		logger.Warn("failed to initialize redis task store", "error", err)
	}

	// Refs are created by the external task service, so an empty local
	// store would only miss on every lookup.
	logger.Info("no external task store available, task mirroring disabled")
	return nil, func() {}
}
