package progress

import "sync"

const defaultBuffer = 16

// Tracker is the bounded channel between a blocking download worker and
// the single goroutine that delivers progress updates. The producer side
// never blocks on transfer events: when the buffer is full the sample is
// dropped, because a newer one is always coming. Item-boundary events are
// never dropped so batch ordering stays intact.
type Tracker struct {
	sink Sink
	ch   chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewTracker starts the consumer goroutine delivering into sink
func NewTracker(sink Sink, buffer int) *Tracker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	t := &Tracker{
		sink: sink,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *Tracker) pump() {
	defer close(t.done)
	for ev := range t.ch {
		t.sink.Emit(ev)
	}
}

// SetContext forwards the invocation context to the wrapped sink. Call it
// before the first Emit.
func (t *Tracker) SetContext(c Context) {
	if cs, ok := t.sink.(ContextSetter); ok {
		cs.SetContext(c)
	}
}

// Emit implements Sink. Safe to call from any goroutine until Close.
func (t *Tracker) Emit(ev Event) {
	if ev.Kind == EventTransfer {
		select {
		case t.ch <- ev:
		default:
			// buffer full: drop the sample rather than stall the transfer
		}
		return
	}
	t.ch <- ev
}

// Close stops accepting events, drains the buffer, and waits until the
// last event has been delivered. The owning invocation must not Emit
// after Close.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.ch) })
	<-t.done
}
