package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/complytrack/alert-engine/internal/repository"
	"github.com/complytrack/alert-engine/internal/service/scheduler"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
)

// SchedulePass re-runs the scheduler over every active deadline snapshot.
// The scheduler's upsert key makes this idempotent, so the daily tick and
// event-driven scheduling can overlap freely.
type SchedulePass struct {
	deadlines repository.DeadlineRepository
	scheduler scheduler.Service
	batchSize int
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewSchedulePass(deadlines repository.DeadlineRepository, sched scheduler.Service, batchSize int, logger *logger.Logger, m *metrics.Metrics) *SchedulePass {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &SchedulePass{deadlines: deadlines, scheduler: sched, batchSize: batchSize, logger: logger, metrics: m}
}

func (p *SchedulePass) Name() string { return "schedule" }

func (p *SchedulePass) Run(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.SchedulePassLatency)
	defer timer.ObserveDuration()

	now := time.Now().UTC()
	created := 0
	for offset := 0; ; offset += p.batchSize {
		batch, err := p.deadlines.ListActive(ctx, p.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list active deadlines: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, d := range batch {
			n, err := p.scheduler.Schedule(ctx, d, now)
			if err != nil {
				p.logger.Error(err, "failed to schedule deadline", "deadline_id", d.ID.String())
				continue
			}
			created += n
		}
		if len(batch) < p.batchSize {
			break
		}
	}

	if created > 0 {
		p.metrics.AlertsScheduled.Add(float64(created))
		p.logger.Info("schedule pass created alerts", "count", created)
	}
	return nil
}
