// Package session holds the analysis session model, the summary
// aggregator, and sqlite persistence for completed sessions.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/formsight-data/form.report/internal/feedback"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/reps"
)

// Status is the lifecycle state of a session record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the session can no longer change.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusFailed
}

// Session is one complete analysis run and its accumulated reps and
// feedback. It is owned and mutated exclusively by the orchestrator and
// frozen once it reaches a terminal status; nothing here locks.
type Session struct {
	ID        string          `json:"id"`
	Mode      pose.Mode       `json:"mode"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at,omitzero"`
	Status    Status          `json:"status"`
	Reps      []reps.RepEvent `json:"reps"`
	Feedback  []feedback.Item `json:"feedback"`

	// Summary is populated by the aggregator once the session reaches a
	// terminal status.
	Summary []SummaryItem `json:"summary,omitempty"`
}

// New creates a running session for the given mode.
func New(mode pose.Mode, now time.Time) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Mode:      mode,
		StartedAt: now,
		Status:    StatusRunning,
	}
}

// AddRep appends a completed repetition.
func (s *Session) AddRep(rep *reps.RepEvent) {
	s.Reps = append(s.Reps, *rep)
}

// AddFeedback archives feedback items, skipping transient types which are
// on-screen guidance only.
func (s *Session) AddFeedback(items ...feedback.Item) {
	for _, it := range items {
		if it.Type.Transient() {
			continue
		}
		s.Feedback = append(s.Feedback, it)
	}
}

// Finish moves the session to a terminal status and stamps the end time.
func (s *Session) Finish(status Status, now time.Time) {
	s.Status = status
	s.EndedAt = now
}

// RepCount returns the number of completed repetitions.
func (s *Session) RepCount() int { return len(s.Reps) }
