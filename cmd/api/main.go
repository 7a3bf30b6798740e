package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/complytrack/alert-engine/internal/config"
	alertHandler "github.com/complytrack/alert-engine/internal/handler/alert"
	deadlineHandler "github.com/complytrack/alert-engine/internal/handler/deadline"
	preferenceHandler "github.com/complytrack/alert-engine/internal/handler/preference"
	webhookHandler "github.com/complytrack/alert-engine/internal/handler/webhook"
	"github.com/complytrack/alert-engine/internal/middleware"
	"github.com/complytrack/alert-engine/internal/repository/postgres"
	"github.com/complytrack/alert-engine/internal/router"
	alertService "github.com/complytrack/alert-engine/internal/service/alert"
	preferenceService "github.com/complytrack/alert-engine/internal/service/preference"
	schedulerService "github.com/complytrack/alert-engine/internal/service/scheduler"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("alert_engine")

	base := postgres.NewBaseRepository(db)
	alertRepo := postgres.NewAlertRepository(base)
	deadlineRepo := postgres.NewDeadlineRepository(base)
	prefRepo := postgres.NewPreferenceRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	prefSvc := preferenceService.NewService(prefRepo)
	alertSvc := alertService.NewService(alertRepo, auditRepo, log, m)
	schedSvc := schedulerService.NewService(alertRepo, deadlineRepo, prefSvc, log)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.Secret)

	r := router.NewRouter(
		authMiddleware,
		alertHandler.NewHandler(alertSvc),
		preferenceHandler.NewHandler(prefSvc, schedSvc, log),
		deadlineHandler.NewHandler(schedSvc),
		webhookHandler.NewHandler(alertSvc, log),
		router.Config{
			RateLimit:     rate.Limit(cfg.Server.RateLimitRPS),
			RateBurst:     cfg.Server.RateLimitBurst,
			WebhookSecret: cfg.Webhook.Secret,
			MetricsPrefix: "alert_engine_http",
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "forced shutdown")
	}
}
