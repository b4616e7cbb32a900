// Package subscription keeps subscribed collections incrementally in sync.
// The engine runs one pass over one collection; the scheduler finds due
// subscriptions on a ticker and runs sequential passes.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tunesync/downloader"
	"tunesync/progress"
	"tunesync/quality"
	"tunesync/store"
	"tunesync/tags"
)

// ErrPassInProgress reports a concurrent pass over the same collection.
var ErrPassInProgress = errors.New("sync pass already running for this collection")

// FailedItem is one item that failed during a pass.
type FailedItem struct {
	ItemID string
	Label  string
	Reason string
}

// PassResult is the firm accounting of one sync pass.
type PassResult struct {
	CollectionTitle string
	Total           int // members upstream right now
	New             int // first observed this pass
	Succeeded       int // downloads completed this pass
	Failed          int // downloads failed this pass
	Skipped         int // already downloaded when reached
	FailedItems     []FailedItem
}

// Options configure pass execution.
type Options struct {
	DestRoot  string        // download destination root
	Requested quality.Tier  // tier the fallback ladder starts at
	Pacing    time.Duration // sleep between batch items
}

// Engine executes incremental sync passes. At most one pass runs per
// collection at any time; racing passes would corrupt the retry
// bookkeeping.
type Engine struct {
	store    *store.Store
	registry *downloader.Registry
	tagger   *tags.Tagger
	opts     Options
	log      *zap.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewEngine creates a sync engine. tagger may be nil to skip tag embedding.
func NewEngine(st *store.Store, reg *downloader.Registry, tagger *tags.Tagger, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    st,
		registry: reg,
		tagger:   tagger,
		opts:     opts,
		log:      log.Named("sync"),
		locks:    make(map[uint]*sync.Mutex),
	}
}

// guard returns the per-collection mutex, creating it on first use.
func (e *Engine) guard(subID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.locks[subID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[subID] = m
	}
	return m
}

// collectionDir is stable across passes so re-fetches land on the same
// files even when the upstream title changes.
func (e *Engine) collectionDir(sub *store.Subscription) string {
	return filepath.Join(e.opts.DestRoot, sub.Platform, strings.ReplaceAll(sub.CollectionID, "/", "-"))
}

// SyncPass runs one incremental pass: enumerate the collection, record
// first-observed members as pending, fetch every pending member in
// enumeration order, and write the outcome back to the ledger. Single-item
// failures never abort the pass; only store faults and cancellation do.
func (e *Engine) SyncPass(ctx context.Context, sub *store.Subscription, sink progress.Sink) (*PassResult, error) {
	guard := e.guard(sub.ID)
	if !guard.TryLock() {
		return nil, ErrPassInProgress
	}
	defer guard.Unlock()

	if sink == nil {
		sink = progress.Discard
	}

	platform, ok := e.registry.Get(sub.Platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", sub.Platform)
	}

	e.log.Info("Sync pass started",
		zap.String("platform", sub.Platform),
		zap.String("collection", sub.CollectionID))

	coll, err := platform.Members(ctx, downloader.Kind(sub.Kind), sub.CollectionID)
	if err != nil {
		return nil, err
	}

	if cs, ok := sink.(progress.ContextSetter); ok {
		cs.SetContext(progress.Context{
			Batch:      downloader.BatchKind(coll.Kind),
			Collection: coll.Title,
			Count:      len(coll.Items),
		})
	}

	result := &PassResult{CollectionTitle: coll.Title, Total: len(coll.Items)}

	existing, err := e.store.TracksBySubscription(sub.ID)
	if err != nil {
		return nil, err
	}
	states := make(map[string]string, len(existing))
	for _, tr := range existing {
		states[tr.ItemID] = tr.State()
	}

	// Every first-observed member becomes a pending row before any fetch,
	// so an interrupted pass resumes instead of losing the diff.
	for _, item := range coll.Items {
		created, err := e.store.ObserveTrack(sub.ID, item.ID, item.Title, item.Artist, item.Album)
		if err != nil {
			return nil, err
		}
		if created {
			result.New++
			states[item.ID] = store.StatePending
		}
	}

	destDir := e.collectionDir(sub)
	attempted := false
	for _, item := range coll.Items {
		switch states[item.ID] {
		case store.StatePending:
		case store.StateDownloaded:
			result.Skipped++
			continue
		default:
			// failed carryover, re-attempted only through explicit retry
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempted && e.opts.Pacing > 0 {
			select {
			case <-time.After(e.opts.Pacing):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		attempted = true

		sink.Emit(progress.Event{Kind: progress.EventItemStart, Label: item.Label(), Index: item.Index})

		outcome, fetchErr := downloader.FetchItem(ctx, platform, item, destDir, e.opts.Requested, sink, e.log)
		if fetchErr != nil {
			reason := downloader.Reason(fetchErr)
			if err := e.store.MarkFailed(sub.ID, item.ID, reason, time.Now()); err != nil {
				return nil, err
			}
			// a collection can list the same ID twice; advance the in-pass
			// view so the duplicate entry is not attempted again
			states[item.ID] = store.StateFailed
			result.Failed++
			result.FailedItems = append(result.FailedItems, FailedItem{ItemID: item.ID, Label: item.Label(), Reason: reason})
			e.log.Warn("Item failed",
				zap.String("platform", sub.Platform),
				zap.String("item", item.ID),
				zap.String("reason", reason))
		} else {
			if err := e.store.MarkDownloaded(sub.ID, item.ID, time.Now()); err != nil {
				return nil, err
			}
			states[item.ID] = store.StateDownloaded
			result.Succeeded++
			e.embedTags(ctx, item, outcome)
			e.recordHistory(sub, item, outcome)
		}

		sink.Emit(progress.Event{Kind: progress.EventItemDone, Label: item.Label(), Index: item.Index})
	}

	if err := e.store.UpdateAfterPass(sub.ID, result.Total, result.Succeeded, time.Now()); err != nil {
		return nil, err
	}

	e.log.Info("Sync pass finished",
		zap.String("platform", sub.Platform),
		zap.String("collection", sub.CollectionID),
		zap.Int("total", result.Total),
		zap.Int("new", result.New),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// recordHistory mirrors a downloaded track into the download history so a
// later one-shot request for the same song skips the fetch. Best effort.
func (e *Engine) recordHistory(sub *store.Subscription, item downloader.ItemDescriptor, outcome *downloader.Outcome) {
	if outcome == nil {
		return
	}
	entry := &store.HistoryEntry{
		Platform:  sub.Platform,
		ContentID: item.ID,
		Kind:      string(downloader.KindSong),
		Title:     outcome.Title,
		Artist:    outcome.Artist,
		FilePath:  outcome.FilePath,
		SizeBytes: outcome.SizeBytes,
		TierUsed:  outcome.TierUsed.String(),
		ChatID:    sub.ChatID,
	}
	if length, err := tags.Duration(outcome.FilePath); err == nil {
		entry.DurationSecs = int(length / time.Second)
	}
	if err := e.store.AddHistory(entry); err != nil {
		e.log.Warn("History record failed",
			zap.String("item", item.ID),
			zap.Error(err))
	}
}

func (e *Engine) embedTags(ctx context.Context, item downloader.ItemDescriptor, outcome *downloader.Outcome) {
	if e.tagger == nil || outcome == nil || outcome.Skipped || outcome.FilePath == "" {
		return
	}
	meta := tags.Meta{
		Title:    outcome.Title,
		Artist:   outcome.Artist,
		Album:    outcome.Album,
		CoverURL: item.CoverURL,
	}
	if err := e.tagger.Embed(ctx, outcome.FilePath, meta); err != nil {
		e.log.Warn("Tag embed failed",
			zap.String("file", outcome.FilePath),
			zap.Error(err))
	}
}
