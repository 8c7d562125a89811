package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexishuch/availability-poll/internal/app/migrate"
	httpx "github.com/alexishuch/availability-poll/internal/http"
	"github.com/alexishuch/availability-poll/internal/repository"
	"github.com/alexishuch/availability-poll/internal/repository/memory"
	"github.com/alexishuch/availability-poll/internal/repository/postgres"
	"github.com/alexishuch/availability-poll/internal/service/feed"
	"github.com/alexishuch/availability-poll/internal/service/participant"
	"github.com/alexishuch/availability-poll/internal/service/poll"
	"github.com/alexishuch/availability-poll/internal/service/slot"
	"github.com/alexishuch/availability-poll/internal/ws"
	"github.com/alexishuch/availability-poll/pkg/config"
	"github.com/alexishuch/availability-poll/pkg/logger"
)

type store interface {
	repository.PollRepository
	repository.ParticipantRepository
	repository.SlotRepository
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New("api", config.ParseLevel(cfg.LogLevel)).With("env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, dbHealth, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	metrics := httpx.NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	hub := ws.NewHub()
	defer hub.Close()

	pollSvc := poll.New(repo, repo, repo, log, poll.WithComputeObserver(metrics.ObserveCompute))
	feedSvc := feed.New(pollSvc, hub, log)
	participantSvc := participant.New(repo, repo, feedSvc, log)
	slotSvc := slot.New(repo, repo, repo, feedSvc, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, httpx.Services{
		Polls:        pollSvc,
		Participants: participantSvc,
		Slots:        slotSvc,
		Feed:         feedSvc,
	}, httpx.Options{
		Limiter:        limiter,
		Metrics:        metrics,
		DBHealth:       dbHealth,
		ReadPerMinute:  cfg.RateLimitRead,
		WritePerMinute: cfg.RateLimitWrite,
		Heartbeat:      cfg.StreamHeartbeat,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "storage", cfg.Storage)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Streams never finish on their own; closing the hub ends them.
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore selects the repository backend. The PostgreSQL backend applies
// pending migrations when auto-migration is enabled.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (store, func(context.Context) error, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage)) {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil, func() {}, nil
	case "", "postgres":
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := runner.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
	}
	return postgres.New(pool), pool.Ping, pool.Close, nil
}
