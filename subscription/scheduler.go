package subscription

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/store"
)

const defaultScanInterval = time.Minute

// Reporter receives the lifecycle of scheduled passes. The bot
// implementation posts to the subscription's owner chat; the headless
// runner prints to the console.
type Reporter interface {
	// PassStarted announces a pass and returns the sink its progress
	// events should flow into.
	PassStarted(sub *store.Subscription) progress.Sink

	// PassFinished delivers the final accounting. res is nil when err is
	// non-nil.
	PassFinished(sub *store.Subscription, res *PassResult, err error)
}

// Scheduler scans for due subscriptions on a fixed cadence and runs their
// passes sequentially. Sequential on purpose: concurrent passes would
// compete for upstream rate limits and interleave owner notifications.
type Scheduler struct {
	engine    *Engine
	store     *store.Store
	reporter  Reporter
	log       *zap.Logger
	scanEvery time.Duration
}

func NewScheduler(engine *Engine, st *store.Store, reporter Reporter, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		engine:    engine,
		store:     st,
		reporter:  reporter,
		log:       log.Named("scheduler"),
		scanEvery: defaultScanInterval,
	}
}

// Run scans until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.scanEvery)
	defer ticker.Stop()

	s.log.Info("Auto-sync scheduler started", zap.Duration("scan_interval", s.scanEvery))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Auto-sync scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every subscription due right now. Also used
// directly by the headless -sync-once mode.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.store.DueSubscriptions(time.Now())
	if err != nil {
		s.log.Error("Due-subscription scan failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("Subscriptions due", zap.Int("count", len(due)))

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		sub := &due[i]
		sink := s.reporter.PassStarted(sub)
		res, err := s.engine.SyncPass(ctx, sub, sink)
		if err != nil {
			s.log.Warn("Scheduled pass failed",
				zap.String("platform", sub.Platform),
				zap.String("collection", sub.CollectionID),
				zap.Error(err))
		}
		s.reporter.PassFinished(sub, res, err)
	}
}
