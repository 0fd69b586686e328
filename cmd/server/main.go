// Command server starts the grading job engine's HTTP API.
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

	"github.com/spf13/cobra"

	httpserver "github.com/fairyhunter13/gradeengine/internal/adapter/httpserver"
	"github.com/fairyhunter13/gradeengine/internal/adapter/observability"
	"github.com/fairyhunter13/gradeengine/internal/adapter/persistence/postgres"
	"github.com/fairyhunter13/gradeengine/internal/adapter/queue/redpanda"
	repopostgres "github.com/fairyhunter13/gradeengine/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/gradeengine/internal/app"
	"github.com/fairyhunter13/gradeengine/internal/cloner"
	"github.com/fairyhunter13/gradeengine/internal/config"
	"github.com/fairyhunter13/gradeengine/internal/corpus"
	"github.com/fairyhunter13/gradeengine/internal/domain"
	"github.com/fairyhunter13/gradeengine/internal/engine"
	"github.com/fairyhunter13/gradeengine/internal/grader"
	"github.com/fairyhunter13/gradeengine/internal/jobstore"
	"github.com/fairyhunter13/gradeengine/internal/llmclient"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gradeengine-server",
		Short: "Grading job engine HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("op=server.run: load config: %w", err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	var persist domain.PersistenceAdapter
	var readyCheck func(ctx context.Context) error
	if cfg.PersistenceEnabled() {
		pool, err := repopostgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("op=server.run: db connect: %w", err)
		}
		defer pool.Close()
		persist = postgres.New(pool)
		readyCheck = app.BuildReadinessCheck(cfg, pool)
		slog.Info("persistence adapter enabled")
	} else {
		readyCheck = app.BuildReadinessCheck(cfg, nil)
	}

	llmClient := llmclient.Select(cfg)
	if llmClient == nil {
		slog.Warn("no LLM provider configured; grading jobs will fail at the analysis step")
	} else {
		slog.Info("llm provider selected", slog.String("provider", llmClient.Name()))
	}

	eng := engine.New(
		cloner.New(cfg.CloneTimeout),
		corpus.New(),
		grader.New(llmClient),
		llmClient,
		persist,
	)

	store := jobstore.New(time.Duration(cfg.ReviewTTLSecs)*time.Second, eng.Run)
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go store.StartReaper(reaperCtx, cfg.ReaperInterval)

	srv := httpserver.NewServer(cfg, store, readyCheck, store.Run)
	handler := app.BuildRouter(cfg, srv)

	if cfg.QueueEnabled() {
		producer, err := redpanda.NewProducer(cfg.KafkaBrokers, cfg.GradeJobsTopic, "gradeengine-server-producer")
		if err != nil {
			slog.Error("queue producer init failed, continuing without dispatch", slog.Any("error", err))
		} else {
			defer func() { _ = producer.Close() }()
			slog.Info("horizontal dispatch producer ready", slog.String("topic", cfg.GradeJobsTopic))
		}
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
