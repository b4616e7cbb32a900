package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/store"
	"tunesync/subscription"
)

const sendTimeout = 5 * time.Second

// chatReporter narrates sync passes into the subscription's chat: one status
// message per pass, edited in place as the pass advances, finalized with a
// summary. It implements subscription.Reporter.
type chatReporter struct {
	sender   *Sender
	interval time.Duration
	auto     bool
	log      *zap.Logger

	mu   sync.Mutex
	live map[uint]*livePass
}

type livePass struct {
	editor  progress.MessageEditor
	tracker *progress.Tracker
}

func newChatReporter(sender *Sender, interval time.Duration, auto bool, log *zap.Logger) *chatReporter {
	return &chatReporter{
		sender:   sender,
		interval: interval,
		auto:     auto,
		log:      log,
		live:     make(map[uint]*livePass),
	}
}

// PassStarted posts the opening status message and returns a sink that edits
// it. Delivery failures degrade to a silent pass rather than blocking it.
func (r *chatReporter) PassStarted(sub *store.Subscription) progress.Sink {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	editor, err := r.sender.StartProgress(ctx, sub.ChatID, progress.SyncStarted(sub.DisplayName, sub.CollectionID, r.auto))
	if err != nil {
		r.log.Warn("could not open progress message for pass",
			zap.String("collection", sub.CollectionID),
			zap.Error(err))
		return progress.Discard
	}

	notifier := progress.NewNotifier(editor, r.interval, r.log)
	tracker := progress.NewTracker(notifier, 0)

	r.mu.Lock()
	r.live[sub.ID] = &livePass{editor: editor, tracker: tracker}
	r.mu.Unlock()

	return tracker
}

// PassFinished closes the pass's tracker and rewrites the status message with
// the final summary, the short up-to-date notice, or a friendly error.
func (r *chatReporter) PassFinished(sub *store.Subscription, res *subscription.PassResult, err error) {
	r.mu.Lock()
	lp, ok := r.live[sub.ID]
	delete(r.live, sub.ID)
	r.mu.Unlock()
	if !ok {
		return
	}

	lp.tracker.Close()

	text := ""
	switch {
	case err != nil:
		text = friendlyError(err)
	case res.New == 0 && res.Succeeded == 0 && res.Failed == 0:
		text = progress.CheckResult(res.CollectionTitle, res.Total, res.Skipped, 0)
	default:
		text = progress.SyncCompleted(toSummary(res))
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if editErr := lp.editor.Edit(ctx, text); editErr != nil {
		r.log.Warn("could not finalize progress message",
			zap.String("collection", sub.CollectionID),
			zap.Error(editErr))
	}
}

func toSummary(res *subscription.PassResult) progress.SyncSummary {
	s := progress.SyncSummary{
		Collection: res.CollectionTitle,
		Total:      res.Total,
		New:        res.New,
		Succeeded:  res.Succeeded,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
	}
	for _, f := range res.FailedItems {
		s.Failures = append(s.Failures, progress.Failure{Label: f.Label, Reason: f.Reason})
	}
	return s
}

// runPass executes one sync pass under a reporter. It is the shared path for
// manual /sync, the first pass after /subscribe and /retry reruns.
func runPass(engine *subscription.Engine, rep subscription.Reporter, sub *store.Subscription) {
	sink := rep.PassStarted(sub)
	res, err := engine.SyncPass(context.Background(), sub, sink)
	rep.PassFinished(sub, res, err)
}
