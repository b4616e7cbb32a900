package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const deliveryTimeout = 5 * time.Second

// MessageEditor is the single outbound message handle a Notifier owns for
// the duration of one download invocation. Implementations edit the same
// remote message in place.
type MessageEditor interface {
	Edit(ctx context.Context, text string) error
}

// EditorFunc adapts a plain function to the MessageEditor interface
type EditorFunc func(ctx context.Context, text string) error

// Edit implements MessageEditor
func (f EditorFunc) Edit(ctx context.Context, text string) error { return f(ctx, text) }

// Notifier converts progress events into message edits on one shared
// message handle, delivering at most one update per minInterval. Item
// starts and terminal completions bypass the throttle so the displayed
// item name never lags a full window and 100% is always visible.
// Delivery failures are logged and swallowed; they never reach the worker.
type Notifier struct {
	editor      MessageEditor
	minInterval time.Duration
	log         *zap.Logger

	mu           sync.Mutex
	pctx         Context
	lastDelivery time.Time
	lastText     string
	delivered    int
}

// NewNotifier creates a Notifier for one download invocation
func NewNotifier(editor MessageEditor, minInterval time.Duration, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		editor:      editor,
		minInterval: minInterval,
		log:         log,
	}
}

// SetContext installs the invocation context used to pick the template.
// Called once before the first event, and again between batch items only
// by the goroutine that owns the invocation.
func (n *Notifier) SetContext(c Context) {
	n.mu.Lock()
	n.pctx = c
	n.mu.Unlock()
}

// Emit implements Sink
func (n *Notifier) Emit(ev Event) {
	n.mu.Lock()

	forced := ev.Kind != EventTransfer
	if !forced && time.Since(n.lastDelivery) < n.minInterval {
		n.mu.Unlock()
		return
	}

	text := RenderEvent(n.pctx, ev)
	if text == n.lastText {
		// the transport rejects no-op edits
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := n.editor.Edit(ctx, text); err != nil {
		n.log.Warn("progress delivery failed",
			zap.String("label", ev.Label),
			zap.Error(err))
		return
	}

	n.mu.Lock()
	n.lastDelivery = time.Now()
	n.lastText = text
	n.delivered++
	n.mu.Unlock()
}

// Deliveries returns how many edits reached the transport
func (n *Notifier) Deliveries() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delivered
}
