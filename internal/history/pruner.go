package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/megasecretaria/megasecretaria/internal/logging"
)

// Pruner deletes history older than the retention period on a cron schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewPruner validates the schedule and returns a stopped pruner.
// Schedules use the standard five-field syntax or descriptors like "@daily".
func NewPruner(store *Store, retention time.Duration, schedule string, logger *slog.Logger) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithService(logger, "history_pruner")

	c := cron.New(cron.WithLogger(logging.NewSchedulerAdapter(logger)))
	p := &Pruner{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		cron:      c,
	}

	if _, err := c.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins running the schedule in the background.
func (p *Pruner) Start() {
	p.logger.Info("history pruner started", "schedule", p.schedule, "retention", p.retention)
	p.cron.Start()
}

// Stop stops the schedule and waits for a running prune to finish or ctx to expire.
func (p *Pruner) Stop(ctx context.Context) {
	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// PruneNow runs one prune immediately.
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-p.retention)
	start := time.Now()

	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error("history prune failed",
			logging.Operation("prune"),
			logging.Status(logging.StatusError),
			logging.Err(err))
		return 0, err
	}

	p.logger.Info("history pruned",
		logging.Operation("prune"),
		logging.Status(logging.StatusSuccess),
		"deleted", n,
		"cutoff", cutoff.Format(time.RFC3339),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return n, nil
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, _ = p.PruneNow(ctx)
}
