package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/rcliao/agent-pulse/internal/clock"
)

// OpenFunc builds an Engine for one cycle and returns a function that
// releases whatever it opened.
type OpenFunc func(ctx context.Context) (*Engine, func() error, error)

// Runner drives periodic checks. Every scheduled tick and every external
// wake goes through Engine.Wake, so overlapping triggers coalesce exactly
// as interactive wakes do. The store is opened per cycle and closed after,
// leaving the database free for other processes between ticks.
type Runner struct {
	open     OpenFunc
	interval time.Duration
	clock    clock.Clock
	log      *slog.Logger
	wake     chan string

	afterCycle func(reason string, res *WakeResult, err error)
}

// NewRunner returns a Runner ticking every interval.
func NewRunner(open OpenFunc, interval time.Duration, clk clock.Clock, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		open:     open,
		interval: interval,
		clock:    clk,
		log:      log,
		wake:     make(chan string, 1),
	}
}

// Wake asks the loop for an out-of-cycle check. It never blocks; a wake
// already pending absorbs this one.
func (r *Runner) Wake(reason string) {
	select {
	case r.wake <- reason:
	default:
		r.log.Debug("wake already pending", "reason", reason)
	}
}

// Run loops until ctx is cancelled. Scheduled ticks outside active hours
// are skipped; explicit wakes always run.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("heartbeat runner started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("heartbeat runner stopped")
			return nil
		case <-ticker.C:
			r.cycle(ctx, "scheduled", true)
		case reason := <-r.wake:
			r.cycle(ctx, reason, false)
		}
	}
}

func (r *Runner) cycle(ctx context.Context, reason string, scheduled bool) {
	res, err := r.runCycle(ctx, reason, scheduled)
	if err != nil {
		r.log.Error("heartbeat cycle failed", "reason", reason, "error", err)
	}
	if r.afterCycle != nil {
		r.afterCycle(reason, res, err)
	}
}

func (r *Runner) runCycle(ctx context.Context, reason string, scheduled bool) (*WakeResult, error) {
	e, closeFn, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if now := r.clock.Now(); scheduled && !e.InActiveHours(now) {
		r.log.Debug("outside active hours, skipping scheduled check", "at", now)
		return nil, nil
	}
	return e.Wake(ctx, reason)
}
