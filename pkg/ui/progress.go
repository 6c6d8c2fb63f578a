package ui

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"pixiedl/pkg/imageurl"
	"pixiedl/pkg/models"
)

// StatusTracker accumulates download statistics for the closing report
type StatusTracker struct {
	mu         sync.Mutex
	downloaded int
	failed     int
	bytes      int64
	startTime  time.Time
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{startTime: time.Now()}
}

// Record adds one finished task
func (st *StatusTracker) Record(r models.DownloadResult) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if r.Success {
		st.downloaded++
		st.bytes += int64(r.Size)
	} else {
		st.failed++
	}
}

// Stats renders totals such as "4.2 MiB in 12s (20.0 photos/min)"
func (st *StatusTracker) Stats() string {
	st.mu.Lock()
	defer st.mu.Unlock()

	elapsed := time.Since(st.startTime)
	rate := 0.0
	if elapsed.Minutes() > 0 {
		rate = float64(st.downloaded) / elapsed.Minutes()
	}
	return fmt.Sprintf("%s in %s (%.1f photos/min)",
		humanize.IBytes(uint64(st.bytes)),
		formatDuration(elapsed),
		rate,
	)
}

// Progress prints one line per finished task, in completion order
type Progress struct {
	console *Console
	tracker *StatusTracker
}

// NewProgress creates a progress printer feeding tracker
func NewProgress(console *Console, tracker *StatusTracker) *Progress {
	return &Progress{console: console, tracker: tracker}
}

// TaskDone prints "  [i/total] name (size)" for a saved photo or the reason
// a task failed
func (p *Progress) TaskDone(r models.DownloadResult) {
	if p.tracker != nil {
		p.tracker.Record(r)
	}

	prefix := fmt.Sprintf("  [%d/%d]", r.Task.Ordinal, r.Task.Total)
	if r.Success {
		name := imageurl.ExtractFilename(r.FetchedURL)
		if r.Path != "" {
			name = filepath.Base(r.Path)
		}
		p.console.Println(fmt.Sprintf("%s %s (%s)", prefix, name, humanize.IBytes(uint64(r.Size))))
		return
	}

	reason := "unknown error"
	if r.Error != nil {
		reason = r.Error.Error()
	}
	p.console.Println(fmt.Sprintf("%s %s %s: %s",
		prefix, p.console.paint(Red, "Failed"), r.Task.Maximized, reason))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
