// Package effects runs best-effort side effects after a primary write has
// committed. A failing or panicking effect is logged and counted but never
// reported to the caller.
package effects

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Effect is one named side effect.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes effects in order, isolating each one.
type Runner struct {
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	timeout time.Duration
}

func NewRunner(logger *logging.Logger, m *metrics.BookingMetrics) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{logger: logger, metrics: m, timeout: 10 * time.Second}
}

// WithTimeout bounds each effect.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Run executes every effect and returns the names of those that failed.
// The caller's context cancellation is not propagated to effects so that a
// client disconnect does not abort bookkeeping already owed.
func (r *Runner) Run(ctx context.Context, effects ...Effect) []string {
	var failed []string
	for _, e := range effects {
		if err := r.runOne(ctx, e); err != nil {
			failed = append(failed, e.Name)
			r.metrics.ObserveEffectFailure(e.Name)
			r.logger.Warn("effects: side effect failed",
				"effect", e.Name,
				"error", err,
			)
		}
	}
	return failed
}

func (r *Runner) runOne(ctx context.Context, e Effect) (err error) {
	if e.Run == nil {
		return nil
	}
	effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("effects: %s panicked: %v", e.Name, p)
		}
	}()
	return e.Run(effectCtx)
}
