// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package fetch

import (
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// Progress renders a terminal progress bar from fetch events. It
// counts completed requests, skips included; byte-level progress is
// left to the log.
type Progress struct {
	mu  sync.Mutex
	bar *pb.ProgressBar
}

// NewProgress starts a bar sized for total requests.
func NewProgress(total int) *Progress {
	return &Progress{bar: pb.StartNew(total)}
}

// Sink returns the event function to pass to Fetcher.Run.
func (p *Progress) Sink() func(Event) {
	return func(event Event) {
		switch event.Kind {
		case EventCompleted, EventFailed, EventSkipped:
			p.mu.Lock()
			p.bar.Increment()
			p.mu.Unlock()
		}
	}
}

// Finish stops the bar.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}
