package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/admin-auth/internal/app"
	"github.com/iliyamo/admin-auth/internal/config"
	"github.com/iliyamo/admin-auth/internal/database"
	"github.com/iliyamo/admin-auth/internal/queue"
	"github.com/iliyamo/admin-auth/internal/service"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Error("database connection failed", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	rdb := config.NewRedisClient(ctx)
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Info("redis unavailable; using in-process rate limiter")
	}

	var publisher service.EventPublisher
	if cfg.AuditQueueEnabled {
		qp := queue.NewPublisher(cfg.RabbitMQURL, logger)
		defer qp.Close()
		publisher = qp
		consumer := queue.NewConsumer(cfg.RabbitMQURL, "logs/security.log", logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("security consumer stopped", "error", err)
			}
		}()
	}

	srv := app.New(app.Deps{
		Config:    cfg,
		RateLimit: config.LoadRateLimitConfig(),
		DB:        db,
		Redis:     rdb,
		Publisher: publisher,
		Log:       logger,
	})

	go sweepSessions(ctx, srv.Auth, cfg.SessionSweep, logger)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := srv.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	// In-flight requests are done; flush their security events.
	if err := srv.Audit.Close(shutdownCtx); err != nil {
		logger.Warn("audit events not flushed", "error", err, "dropped", srv.Audit.Dropped())
	}
}

// sweepSessions deletes sessions that expired more than a day ago, so the
// listing endpoints and the token-hash index stay small.
func sweepSessions(ctx context.Context, auth *service.AuthService, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := auth.SweepExpiredSessions(ctx, 24*time.Hour); err != nil {
				logger.Warn("session sweep failed", "error", err)
			}
		}
	}
}
