// Command worker runs the optional horizontal grading dispatcher: it
// consumes GradeRequest messages from the grading-jobs topic and runs each
// through the same engine pipeline the HTTP server uses, so a job submitted
// to either surface gets identical grading behavior.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/gradeengine/internal/adapter/observability"
	"github.com/fairyhunter13/gradeengine/internal/adapter/persistence/postgres"
	"github.com/fairyhunter13/gradeengine/internal/adapter/queue/redpanda"
	repopostgres "github.com/fairyhunter13/gradeengine/internal/adapter/repo/postgres"
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
		Use:   "gradeengine-worker",
		Short: "Horizontal grading job dispatcher consuming the grading-jobs topic",
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
		return fmt.Errorf("op=worker.run: load config: %w", err)
	}
	if !cfg.QueueEnabled() {
		return fmt.Errorf("op=worker.run: KAFKA_BROKERS not configured, nothing to consume")
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

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
	if cfg.PersistenceEnabled() {
		pool, err := repopostgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("op=worker.run: db connect: %w", err)
		}
		defer pool.Close()
		persist = postgres.New(pool)
	}

	llmClient := llmclient.Select(cfg)
	if llmClient == nil {
		slog.Warn("no LLM provider configured; consumed jobs will fail at the analysis step")
	}

	eng := engine.New(
		cloner.New(cfg.CloneTimeout),
		corpus.New(),
		grader.New(llmClient),
		llmClient,
		persist,
	)

	store := jobstore.New(time.Duration(cfg.ReviewTTLSecs)*time.Second, eng.Run)
	go store.StartReaper(ctx, cfg.ReaperInterval)

	handler := func(handlerCtx context.Context, req domain.GradeRequest) {
		id := store.Create(req)
		store.Run(handlerCtx, id)
	}

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.GradeJobsTopic, cfg.ConsumerMaxConcurrency, handler)
	if err != nil {
		return fmt.Errorf("op=worker.run: consumer init: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	slog.Info("worker started, consuming grading jobs",
		slog.String("group", cfg.ConsumerGroup),
		slog.String("topic", cfg.GradeJobsTopic),
		slog.Int("max_concurrency", cfg.ConsumerMaxConcurrency))

	return consumer.Start(ctx)
}
