package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/marketsync/internal/syncer"
)

// Refresher refreshes every tracked market.
type Refresher interface {
	RefreshAll(ctx context.Context) (*syncer.Result, error)
}

// Orchestrator drives discovery and batch refresh runs, either on a fixed
// interval or on a cron schedule.
type Orchestrator struct {
	scraper   *MarketScraper
	refresher Refresher
	interval  time.Duration
	cronSpec  string
	trigger   chan struct{}
	logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. scraper may be nil when the
// tracked set is fixed. A non-empty cronSpec (standard five-field syntax)
// takes precedence over interval.
func NewOrchestrator(
	scraper *MarketScraper,
	refresher Refresher,
	interval time.Duration,
	cronSpec string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scraper:   scraper,
		refresher: refresher,
		interval:  interval,
		cronSpec:  cronSpec,
		trigger:   make(chan struct{}, 1),
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Trigger requests an extra pass from a running Run loop. It returns false when
// a requested pass is already pending.
func (o *Orchestrator) Trigger() bool {
	select {
	case o.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunOnce discovers markets and refreshes the tracked set. Discovery errors
// are logged and do not prevent the refresh.
func (o *Orchestrator) RunOnce(ctx context.Context) (*syncer.Result, error) {
	if o.scraper != nil {
		if _, err := o.scraper.Run(ctx); err != nil {
			o.logger.WarnContext(ctx, "market discovery failed", slog.String("error", err.Error()))
		}
	}
	return o.refresher.RefreshAll(ctx)
}

// Run executes one pass immediately and then keeps running on the schedule
// until ctx is cancelled. Failed passes are logged; only a bad schedule makes
// Run return early.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.tick(ctx)

	if o.cronSpec != "" {
		return o.runCron(ctx)
	}
	return o.runInterval(ctx)
}

func (o *Orchestrator) runInterval(ctx context.Context) error {
	if o.interval <= 0 {
		return fmt.Errorf("orchestrator: interval must be positive, got %s", o.interval)
	}
	o.logger.InfoContext(ctx, "orchestrator started", slog.Duration("interval", o.interval))

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
			o.tick(ctx)
		case <-o.trigger:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) runCron(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(o.cronSpec, func() { o.tick(ctx) }); err != nil {
		return fmt.Errorf("orchestrator: parse cron %q: %w", o.cronSpec, err)
	}
	o.logger.InfoContext(ctx, "orchestrator started", slog.String("cron", o.cronSpec))

	c.Start()
	defer func() { <-c.Stop().Done() }()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return nil
		case <-o.trigger:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := o.RunOnce(ctx); err != nil {
		o.logger.ErrorContext(ctx, "refresh run failed", slog.String("error", err.Error()))
	}
}
