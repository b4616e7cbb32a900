package progress

import (
	"sync"

	"github.com/schollz/progressbar/v3"
)

// ConsoleSink renders progress on stdout for headless sync runs. One bar
// per item; item boundaries start a fresh bar.
type ConsoleSink struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewConsoleSink creates a console progress sink
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Emit implements Sink
func (s *ConsoleSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventItemStart:
		if s.bar != nil {
			_ = s.bar.Finish()
		}
		s.bar = s.newBar(ev)

	case EventItemDone:
		if s.bar != nil {
			_ = s.bar.Finish()
			s.bar = nil
		}

	default:
		if s.bar == nil {
			s.bar = s.newBar(ev)
		}
		if ev.Total > 0 {
			s.bar.ChangeMax64(ev.Total)
		}
		_ = s.bar.Set64(ev.Bytes)
	}
}

func (s *ConsoleSink) newBar(ev Event) *progressbar.ProgressBar {
	max := ev.Total
	if max <= 0 {
		max = -1 // spinner until the size is known
	}
	return progressbar.NewOptions64(max,
		progressbar.OptionSetDescription(Truncate(ev.Label, labelWidth)),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
	)
}
