// Package worker runs the engine's periodic passes. Passes are designed
// to be horizontally repeatable: any number of worker processes may run
// the same pass concurrently against shared state.
package worker

import (
	"context"
	"time"

	"github.com/complytrack/alert-engine/pkg/logger"
)

// Pass is one repeatable unit of background work.
type Pass interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner drives a pass on a fixed interval until the context ends.
type Runner struct {
	pass     Pass
	interval time.Duration
	logger   *logger.Logger
}

func NewRunner(pass Pass, interval time.Duration, logger *logger.Logger) *Runner {
	if interval <= 0 {
		panic("runner interval must be greater than 0")
	}
	return &Runner{pass: pass, interval: interval, logger: logger}
}

func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("starting pass", "pass", r.pass.Name(), "interval", r.interval.String())

	// One immediate run so a fresh deploy does not wait a full interval.
	if err := r.pass.Run(ctx); err != nil {
		r.logger.Error(err, "pass failed", "pass", r.pass.Name())
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping pass", "pass", r.pass.Name())
			return
		case <-ticker.C:
			if err := r.pass.Run(ctx); err != nil {
				r.logger.Error(err, "pass failed", "pass", r.pass.Name())
			}
		}
	}
}

// FuncPass adapts a function to the Pass interface.
type FuncPass struct {
	PassName string
	Fn       func(ctx context.Context) error
}

func (p FuncPass) Name() string                  { return p.PassName }
func (p FuncPass) Run(ctx context.Context) error { return p.Fn(ctx) }
