package engine

import (
	"sync/atomic"
	"time"

	"github.com/formsight-data/form.report/internal/feedback"
	"github.com/formsight-data/form.report/internal/metrics"
	"github.com/formsight-data/form.report/internal/pose"
)

// Snapshot is the latest-value view of a running session for live UIs.
// Consumers poll it; there is no backlog and no delivery guarantee beyond
// "the newest published value wins".
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Mode      pose.Mode `json:"mode"`
	Phase     string    `json:"phase"`
	RepCount  int       `json:"rep_count"`

	// Depth is the current smoothed depth signal; unavailable while the
	// lifter is not detected.
	Depth metrics.Value `json:"depth"`

	// Feedback holds the items raised at the most recent phase boundary,
	// including transient ones that are never archived.
	Feedback []feedback.Item `json:"feedback,omitempty"`

	FrameTS     time.Time `json:"frame_ts"`
	GapEpisodes int       `json:"gap_episodes"`
	Throttled   int       `json:"throttled"`
}

// publisher hands the newest Snapshot from the analysis goroutine to any
// number of readers without locking on the read path.
type publisher struct {
	latest atomic.Pointer[Snapshot]
}

// Publish replaces the current snapshot.
func (p *publisher) Publish(s *Snapshot) { p.latest.Store(s) }

// Latest returns the most recent snapshot, or nil when none is published
// (engine idle, or cleared during a source switch).
func (p *publisher) Latest() *Snapshot { return p.latest.Load() }

// Clear drops the current snapshot so readers do not see stale state from
// a detached source.
func (p *publisher) Clear() { p.latest.Store(nil) }
