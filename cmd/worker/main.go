package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/complytrack/alert-engine/internal/channel"
	"github.com/complytrack/alert-engine/internal/config"
	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository/postgres"
	alertService "github.com/complytrack/alert-engine/internal/service/alert"
	"github.com/complytrack/alert-engine/internal/service/audit"
	"github.com/complytrack/alert-engine/internal/service/dispatcher"
	"github.com/complytrack/alert-engine/internal/service/escalation"
	preferenceService "github.com/complytrack/alert-engine/internal/service/preference"
	schedulerService "github.com/complytrack/alert-engine/internal/service/scheduler"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/messaging/redis"
	"github.com/complytrack/alert-engine/pkg/metrics"
	"github.com/complytrack/alert-engine/pkg/ratelimit"
	"github.com/complytrack/alert-engine/pkg/worker"
)

// workerEnv holds process-level knobs that vary per worker instance and
// come from the environment rather than the shared config file.
type workerEnv struct {
	HealthPort int    `envconfig:"HEALTH_PORT" default:"8081"`
	WorkerID   string `envconfig:"WORKER_ID" default:"worker-1"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	var env workerEnv
	if err := envconfig.Process("worker", &env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := logger.InfoLevel
	if env.LogLevel == "debug" {
		level = logger.DebugLevel
	}
	log := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	}).WithFields(map[string]interface{}{"worker_id": env.WorkerID})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal(err, "invalid redis URL")
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	m := metrics.NewMetrics("alert_engine")

	base := postgres.NewBaseRepository(db)
	alertRepo := postgres.NewAlertRepository(base)
	deadlineRepo := postgres.NewDeadlineRepository(base)
	prefRepo := postgres.NewPreferenceRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	prefSvc := preferenceService.NewService(prefRepo)
	alertSvc := alertService.NewService(alertRepo, auditRepo, log, m)
	schedSvc := schedulerService.NewService(alertRepo, deadlineRepo, prefSvc, log)
	auditSvc := audit.NewService(auditRepo, log)

	broker := redis.NewRedisBrokerFromClient(redisClient)

	adapters := map[model.Channel]channel.Adapter{
		model.ChannelEmail: channel.NewEmailAdapter(channel.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}),
		model.ChannelSMS: channel.NewSMSAdapter(channel.SMSConfig{
			BaseURL:   cfg.SMS.BaseURL,
			AccountID: cfg.SMS.AccountID,
			Token:     cfg.SMS.Token,
			From:      cfg.SMS.From,
		}),
		model.ChannelInApp: channel.NewInAppAdapter(broker),
	}

	smsLimiter := ratelimit.NewRedisLimiter(redisClient, "sms", ratelimit.Config{
		Limit:  cfg.SMS.PerOrgLimit,
		Window: cfg.SMS.PerOrgWindow,
	})

	dispatchSvc := dispatcher.NewService(dispatcher.Config{
		BatchSize:   cfg.Dispatcher.BatchSize,
		Concurrency: cfg.Dispatcher.Concurrency,
		SendTimeout: cfg.Dispatcher.SendTimeout,
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		BackoffBase: cfg.Dispatcher.BackoffBase,
		AckBaseURL:  cfg.Server.AckBaseURL,
	}, alertRepo, alertSvc, adapters, smsLimiter, auditSvc, log, m)

	escalationSvc := escalation.NewService(escalation.Config{
		GraceWindow: cfg.Escalation.GraceWindow,
		BatchSize:   cfg.Escalation.BatchSize,
	}, alertRepo, prefSvc, log, m)

	schedulePass := worker.NewSchedulePass(deadlineRepo, schedSvc, cfg.Scheduler.BatchSize, log, m)

	runners := []*worker.Runner{
		worker.NewRunner(schedulePass, cfg.Scheduler.PollInterval, log),
		worker.NewRunner(worker.FuncPass{
			PassName: "dispatch",
			Fn: func(ctx context.Context) error {
				_, err := dispatchSvc.RunPass(ctx)
				return err
			},
		}, cfg.Dispatcher.PollInterval, log),
		worker.NewRunner(worker.FuncPass{
			PassName: "escalation",
			Fn: func(ctx context.Context) error {
				_, err := escalationSvc.RunPass(ctx)
				return err
			},
		}, cfg.Escalation.PollInterval, log),
	}

	startHealthServer(env.HealthPort, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *worker.Runner) {
			defer wg.Done()
			r.Start(ctx)
		}(r)
	}
	wg.Wait()
}

func startHealthServer(port int, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"healthy"}`)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Info("starting health server", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error(err, "health server stopped")
		}
	}()
}
