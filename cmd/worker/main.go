// Command worker consumes generation tasks and runs them to completion.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadpilot/leadpilot/internal/adapter/ai/real"
	"github.com/leadpilot/leadpilot/internal/adapter/ai/stub"
	rediscache "github.com/leadpilot/leadpilot/internal/adapter/cache/redis"
	"github.com/leadpilot/leadpilot/internal/adapter/queue/kafka"
	"github.com/leadpilot/leadpilot/internal/adapter/repo/postgres"
	"github.com/leadpilot/leadpilot/internal/config"
	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/observability"
	"github.com/leadpilot/leadpilot/internal/service/keyring"
	"github.com/leadpilot/leadpilot/internal/service/provider"
	"github.com/leadpilot/leadpilot/internal/usecase"
	"github.com/leadpilot/leadpilot/internal/usecase/refine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
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

	// Dedicated metrics endpoint so Prometheus can scrape worker-side
	// rotation and workflow metrics.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	jobRepo := postgres.NewJobRepo(pool)
	artifactRepo := postgres.NewArtifactRepo(pool)

	creds, err := cfg.Credentials()
	if err != nil {
		slog.Error("credential load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.IsDev() {
		// The stub provider keeps dev and CI runnable without real keys.
		creds[domain.ProviderStub] = []domain.Credential{{Secret: "stub"}}
	}

	var ringOpts []keyring.Option
	var cooldown *rediscache.Cooldown
	if cfg.RedisAddr != "" {
		cooldown, err = rediscache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Warn("redis unavailable, cooldown cache disabled", slog.Any("error", err))
		} else {
			defer func() { _ = cooldown.Close() }()
			ringOpts = append(ringOpts, keyring.WithCooldownStore(cooldown, cfg.CredentialCooldownTTL))
		}
	}
	ring := keyring.New(ringOpts...)

	invokers := make(map[domain.Provider]domain.ProviderInvoker)
	execs := make(usecase.Executors)
	for p, cs := range creds {
		if len(cs) == 0 {
			continue
		}
		var inv domain.ProviderInvoker
		if p == domain.ProviderStub {
			inv = stub.New()
		} else {
			inv = real.New(cfg, p)
		}
		invokers[p] = inv
		execs[p] = provider.New(p, inv, cs,
			provider.WithMaxRetriesPerCombination(cfg.MaxRetriesPerCombination))
		slog.Info("provider executor ready",
			slog.String("provider", string(p)),
			slog.Int("credentials", len(cs)))
	}
	if len(execs) == 0 {
		slog.Error("no provider credentials configured")
		os.Exit(1)
	}

	preflight := usecase.NewPreflightService(ring, invokers)
	preflight.Run(ctx, creds)

	prompts := refine.EmailPromptSet(cfg.AnalysisMaxTokens, cfg.DraftMaxTokens, cfg.JudgeMaxTokens)
	procSvc := usecase.NewProcessService(jobRepo, artifactRepo, execs, prompts, cfg.MaxRefinements)

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, procSvc.Process)
	if err != nil {
		slog.Error("kafka consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	slog.Info("worker started, consuming tasks")
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker shut down")
}
