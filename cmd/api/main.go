package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cacheadapter "go-lounge/internal/infrastructure/cache/adapter"
	"go-lounge/internal/infrastructure/database"
	queueadapter "go-lounge/internal/infrastructure/queue/adapter"
	"go-lounge/internal/infrastructure/realtime"
	presence "go-lounge/internal/pkg/presence/application/domain"
	"go-lounge/internal/pkg/presence/application/task"
	"go-lounge/internal/pkg/presence/application/usecase"
	"go-lounge/internal/pkg/presence/persistence/repository/adapter"

	v1 "go-lounge/cmd/api/router/v1"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const (
	socketJanitorInterval = 60 * time.Second
	socketIdleLimit       = 2 * time.Minute
	defaultSweepInterval  = 2 * time.Minute
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found or could not be loaded", "error", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the database on startup
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := database.NewPoolFromEnv(connectCtx)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(connectCtx, pool); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	cache, err := cacheadapter.NewRedisAdapter()
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	timeouts := timeoutsFromEnv()
	slog.Info("timeout policy",
		"afk", timeouts.AFK,
		"disconnect", timeouts.DefaultDisconnect,
		"extended_disconnect", timeouts.ExtendedDisconnect,
		"global_session", timeouts.GlobalSession,
	)

	// Per-process socket index plus its liveness janitor.
	router := realtime.NewRouter()
	defer router.Close()
	go router.Janitor(ctx, socketJanitorInterval, socketIdleLimit)

	members := adapter.NewPgMembershipRepository(pool)
	sweepUC := usecase.NewRunSweepUseCase(members, timeouts)

	// Background worker: consumes the sweep task.
	srv, err := queueadapter.NewAsynqServer()
	if err != nil {
		slog.Error("failed to build queue server", "error", err)
		os.Exit(1)
	}
	task.RegisterSweepTask(srv, sweepUC)
	go func() {
		if err := srv.Run(ctx); err != nil {
			slog.Error("queue server stopped", "error", err)
		}
	}()

	// Scheduler: enqueues the sweep on a fixed cadence.
	scheduler, err := queueadapter.NewAsynqScheduler()
	if err != nil {
		slog.Error("failed to build queue scheduler", "error", err)
		os.Exit(1)
	}
	if _, err := task.ScheduleSweep(scheduler, sweepIntervalFromEnv()); err != nil {
		slog.Error("failed to schedule sweep", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			slog.Error("queue scheduler stopped", "error", err)
		}
	}()

	// One immediate sweep so state accumulated during downtime reconciles
	// without waiting a full interval.
	client, err := queueadapter.NewAsynqClientFromEnv()
	if err != nil {
		slog.Error("failed to build queue client", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	if _, err := task.EnqueueStartupSweep(ctx, client); err != nil {
		slog.Warn("startup sweep enqueue failed", "error", err)
	}

	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "OK",
		})
	})

	v1.RegisterRoutes(r, pool, cache, router, timeouts)

	httpSrv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: r,
	}

	go func() {
		slog.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Warn("queue server shutdown incomplete", "error", err)
	}
}

// timeoutsFromEnv starts from the defaults and overrides any timeout with a
// parseable duration from the environment.
func timeoutsFromEnv() presence.Timeouts {
	t := presence.DefaultTimeouts()
	overrideDuration(&t.AFK, "AFK_TIMEOUT")
	overrideDuration(&t.DefaultDisconnect, "DISCONNECT_TIMEOUT")
	overrideDuration(&t.ExtendedDisconnect, "EXTENDED_DISCONNECT_TIMEOUT")
	overrideDuration(&t.GlobalSession, "GLOBAL_SESSION_TTL")
	return t
}

func sweepIntervalFromEnv() time.Duration {
	d := defaultSweepInterval
	overrideDuration(&d, "SWEEP_INTERVAL")
	return d
}

func overrideDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration override", "key", key, "value", v)
		return
	}
	*dst = d
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
