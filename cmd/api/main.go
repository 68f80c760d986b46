package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/dispute-engine/internal/api"
	"github.com/example/dispute-engine/internal/config"
	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/gateway"
	"github.com/example/dispute-engine/internal/ledger"
	"github.com/example/dispute-engine/internal/security"
	"github.com/example/dispute-engine/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	allowCIDRs := strings.Split(os.Getenv("API_IP_ALLOWLIST"), ",")
	allowlist, err := security.ParseCIDRAllowlist(allowCIDRs)
	if err != nil {
		logger.Error("invalid API_IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "dispute_api",
			Capacity:   20,
			RefillRate: 10,
		}
	}

	registry := prometheus.NewRegistry()
	metrics := disputes.NewEngineMetrics(registry)
	auditor := audit.NewChainLogger()

	gw := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)

	engineCfg := disputes.Config{
		DefaultRegulatoryWindow: time.Duration(cfg.RegulatoryWindowDays) * 24 * time.Hour,
		RegulatoryWindows: map[disputes.DisputeType]time.Duration{
			disputes.TypeFraud: time.Duration(cfg.FraudWindowDays) * 24 * time.Hour,
		},
		InvestigationWindow:    time.Duration(cfg.InvestigationWindowDays) * 24 * time.Hour,
		HighValueThreshold:     cfg.HighValueThreshold,
		DocumentationThreshold: cfg.DocumentationThreshold,
		GatewayTimeout:         cfg.GatewayTimeout,
	}

	engine := disputes.NewEngine(
		engineCfg,
		disputes.NewPostgresStore(pool),
		&disputes.PostgresTransactionStore{Pool: pool},
		ledger.NewPostgresStore(pool),
		gw,
		&disputes.PostgresTransitionStore{Pool: pool},
		disputes.WithLogger(logger),
		disputes.WithAuditor(auditor),
		disputes.WithMetrics(metrics),
	)

	router, err := api.NewRouter(api.Dependencies{
		Logger:         logger,
		Engine:         engine,
		Auditor:        auditor,
		RateLimiter:    rateLimiter,
		IPAllowlist:    allowlist,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("dispute engine api listening", "addr", cfg.APIAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
