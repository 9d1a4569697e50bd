package utils

import (
	"github.com/cheggaaa/pb/v3"
)

// ProgressTracker displays download progress for a single media transfer.
// In quiet mode it is a no-op so strategies can use it unconditionally.
type ProgressTracker struct {
	bar   *pb.ProgressBar
	quiet bool
}

// NewProgressTracker creates a progress tracker for total bytes. A total
// of zero (unknown content length) renders a counter without percentage.
func NewProgressTracker(total int64, label string, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{quiet: quiet}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }}`
		bar := pb.ProgressBarTemplate(tmpl).Start64(total)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", label+": ")
		tracker.bar = bar
	}

	return tracker
}

// Add advances the progress bar by n bytes.
func (p *ProgressTracker) Add(n int) {
	if p.bar != nil {
		p.bar.Add(n)
	}
}

// Finish completes and removes the progress bar.
func (p *ProgressTracker) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
