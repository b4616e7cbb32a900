// Package progress moves transfer-progress events from blocking download
// workers to a single delivery goroutine, throttles them, and renders the
// user-facing progress messages.
package progress

import "time"

// EventKind distinguishes the three progress event types
type EventKind int

const (
	// EventTransfer is a raw byte-count sample; delivery may be throttled
	EventTransfer EventKind = iota
	// EventItemStart marks the transition into a new item; always delivered
	EventItemStart
	// EventItemDone marks terminal completion of an item; always delivered
	EventItemDone
)

// Event is one progress sample produced by a download worker.
// Byte counts are monotonically non-decreasing within one invocation.
type Event struct {
	Kind  EventKind
	Bytes int64         // bytes transferred so far
	Total int64         // total bytes, 0 when unknown
	Rate  int64         // instantaneous bytes/sec, 0 when unknown
	ETA   time.Duration // estimated remaining time, 0 when unknown
	Label string        // display label of the current item
	Index int           // 1-based position within a batch, 0 for single items
}

// Sink receives progress events from a download worker. Emit must never
// block the worker for longer than one message delivery and must never
// panic on any event ordering.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to the Sink interface
type SinkFunc func(Event)

// Emit implements Sink
func (f SinkFunc) Emit(ev Event) { f(ev) }

// ContextSetter is implemented by sinks that render differently per batch
// shape. The invocation owner installs the context once the batch size is
// known, before the first event.
type ContextSetter interface {
	SetContext(Context)
}

// Discard is a Sink that drops every event
var Discard Sink = SinkFunc(func(Event) {})

// BatchKind selects the message template for one download invocation
type BatchKind int

const (
	BatchSingle BatchKind = iota
	BatchAlbum
	BatchPlaylist
)

// Context is the live state threaded through one download invocation:
// what is being downloaded and how large the batch is. It is exclusively
// owned by the invocation that created it and never shared across
// concurrent downloads.
type Context struct {
	Batch      BatchKind
	Collection string // album/playlist display name, empty for singles
	Count      int    // batch total, 0 for singles
}
