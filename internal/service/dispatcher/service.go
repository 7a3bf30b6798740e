package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/complytrack/alert-engine/internal/channel"
	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
	alertsvc "github.com/complytrack/alert-engine/internal/service/alert"
	"github.com/complytrack/alert-engine/internal/service/audit"
	apperrors "github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
	"github.com/complytrack/alert-engine/pkg/ratelimit"
)

type Config struct {
	BatchSize   int
	Concurrency int
	SendTimeout time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	AckBaseURL  string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	return c
}

// LeaseDuration is how long a claimed alert stays invisible to other
// dispatcher passes: the worst case send (all attempts, full backoff)
// with headroom.
func (c Config) LeaseDuration() time.Duration {
	backoff := time.Duration(0)
	for i := 0; i < c.MaxAttempts-1; i++ {
		backoff += c.BackoffBase << i
	}
	return 2 * (time.Duration(c.MaxAttempts)*c.SendTimeout + backoff)
}

// Service drains due alerts through the channel adapters. Safe to run
// from many workers at once: the repository claim is the single-writer
// guarantee, and the per-organization SMS limiter is shared state.
type Service struct {
	cfg      Config
	repo     repository.AlertRepository
	alerts   alertsvc.Service
	adapters map[model.Channel]channel.Adapter
	smsLimit ratelimit.Limiter
	auditor  *audit.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
	sleep    func(context.Context, time.Duration) error
}

func NewService(
	cfg Config,
	repo repository.AlertRepository,
	alerts alertsvc.Service,
	adapters map[model.Channel]channel.Adapter,
	smsLimit ratelimit.Limiter,
	auditor *audit.Service,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if smsLimit == nil {
		smsLimit = ratelimit.Unlimited{}
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		repo:     repo,
		alerts:   alerts,
		adapters: adapters,
		smsLimit: smsLimit,
		auditor:  auditor,
		logger:   logger,
		metrics:  m,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunPass claims one batch of due alerts and dispatches them, fanning out
// across alerts so one slow provider call never blocks the rest.
func (s *Service) RunPass(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(s.metrics.DispatchPassLatency)
	defer timer.ObserveDuration()

	now := time.Now().UTC()
	claimed, err := s.repo.ClaimDue(ctx, now, now.Add(s.cfg.LeaseDuration()), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due alerts: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	s.metrics.AlertsClaimed.Add(float64(len(claimed)))

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, a := range claimed {
		a := a
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.dispatch(ctx, a)
		}()
	}
	wg.Wait()
	return len(claimed), nil
}

func (s *Service) dispatch(ctx context.Context, a *model.Alert) {
	adapter, ok := s.adapters[a.Channel]
	if !ok {
		// Misconfigured deployment rather than a bad alert; fail it so
		// escalation can take over.
		s.finishFailed(ctx, a, fmt.Sprintf("no adapter for channel %q", a.Channel), a.RetryCount)
		return
	}

	if a.Channel == model.ChannelSMS {
		allowed, err := s.smsLimit.Allow(ctx, a.OrganizationID.String())
		if err != nil {
			s.logger.Error(err, "rate limiter unavailable, deferring send", "alert_id", a.ID.String())
			s.release(ctx, a)
			return
		}
		if !allowed {
			s.metrics.ThrottledSends.WithLabelValues(string(a.Channel)).Inc()
			s.release(ctx, a)
			return
		}
	}

	msg := channel.Render(a, s.cfg.AckBaseURL)

	retries := 0
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		start := time.Now()
		providerID, err := adapter.Send(sendCtx, a.Recipient, msg)
		cancel()
		s.metrics.SendDuration.WithLabelValues(string(a.Channel)).Observe(time.Since(start).Seconds())

		if err == nil {
			s.metrics.DispatchAttempts.WithLabelValues(string(a.Channel), "success").Inc()
			if err := s.alerts.MarkSent(ctx, a.ID, providerID, retries); err != nil && !errors.Is(err, apperrors.ErrDuplicateEvent) {
				s.logger.Error(err, "failed to record sent alert", "alert_id", a.ID.String())
			}
			return
		}

		if !apperrors.IsRetryable(err) {
			// Permanent rejection: no retry, retry counter untouched.
			s.metrics.DispatchAttempts.WithLabelValues(string(a.Channel), "permanent").Inc()
			s.finishFailed(ctx, a, err.Error(), retries)
			return
		}

		retries++
		lastErr = err
		s.metrics.DispatchAttempts.WithLabelValues(string(a.Channel), "transient").Inc()
		s.auditor.Record(ctx, a.ID, a.OrganizationID, model.AuditActionFailed,
			fmt.Sprintf("transient failure (attempt %d/%d): %v", attempt, s.cfg.MaxAttempts, err))

		if attempt < s.cfg.MaxAttempts {
			if err := s.sleep(ctx, s.cfg.BackoffBase<<(attempt-1)); err != nil {
				s.release(ctx, a)
				return
			}
		}
	}

	s.finishFailed(ctx, a, lastErr.Error(), retries)
}

func (s *Service) finishFailed(ctx context.Context, a *model.Alert, reason string, retries int) {
	if err := s.alerts.MarkFailed(ctx, a.ID, reason, retries); err != nil && !errors.Is(err, apperrors.ErrDuplicateEvent) {
		s.logger.Error(err, "failed to record failed alert", "alert_id", a.ID.String())
	}
}

func (s *Service) release(ctx context.Context, a *model.Alert) {
	if err := s.repo.ReleaseClaim(ctx, a.ID); err != nil {
		s.logger.Error(err, "failed to release claim", "alert_id", a.ID.String())
	}
}
