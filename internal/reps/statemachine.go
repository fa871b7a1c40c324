// Package reps segments the depth signal of a pose stream into exercise
// repetitions. The state machine cycles Standing→Descending→Bottom→
// Ascending→Standing; a rep is counted exactly once, at the final
// transition of the cycle.
package reps

import (
	"time"

	"github.com/formsight-data/form.report/internal/metrics"
)

// Phase is a stage within one repetition.
type Phase int

const (
	Standing Phase = iota
	Descending
	Bottom
	Ascending

	phaseCount
)

var phaseNames = [phaseCount]string{"standing", "descending", "bottom", "ascending"}

func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return "unknown"
	}
	return phaseNames[p]
}

// PhaseSpan records when a phase was entered and left within one rep.
type PhaseSpan struct {
	Entry time.Time
	Exit  time.Time
}

// RepEvent is one completed repetition.
type RepEvent struct {
	// Index is a monotonic counter starting at 1.
	Index int

	// Phases holds entry/exit times for each phase of the cycle, indexed
	// by Phase. Standing's span covers the stand preceding the descent.
	Phases [phaseCount]PhaseSpan

	// BottomMetrics is the snapshot captured at maximum depth during the
	// Bottom phase, and BottomTS the timestamp of that frame.
	BottomMetrics metrics.Metrics
	BottomTS      time.Time

	// CompletionMetrics is the snapshot at the Ascending→Standing
	// transition, with AscentSeconds filled in.
	CompletionMetrics metrics.Metrics
	CompletedTS       time.Time
}

// AscentSeconds returns the Bottom→Standing transition time.
func (r *RepEvent) AscentSeconds() float64 {
	if !r.CompletionMetrics.AscentSeconds.OK {
		return 0
	}
	return r.CompletionMetrics.AscentSeconds.V
}

// Config holds the hysteresis bands that reject sensor noise.
type Config struct {
	// DepthDeadband is the minimum depth change that drives a transition.
	DepthDeadband float64
	// MinPhaseDwell is the minimum time in a phase before the machine
	// will leave it.
	MinPhaseDwell time.Duration
	// StandingTolerance is how close to the standing baseline the depth
	// must return for Ascending→Standing.
	StandingTolerance float64
	// DetectionGapTimeout is how long depth may be unavailable outside
	// Standing before a detection-quality episode is raised.
	DetectionGapTimeout time.Duration
}

// StepResult reports what happened on one frame step.
type StepResult struct {
	// Transitioned is true when the phase changed this step.
	Transitioned bool
	From, To     Phase

	// BottomSnapshot is non-nil at the Bottom→Ascending transition and
	// carries the max-depth metrics for rule evaluation.
	BottomSnapshot *metrics.Metrics
	BottomTS       time.Time

	// Rep is non-nil when a repetition completed this step.
	Rep *RepEvent

	// GapStarted is true when a detection gap episode began this step.
	// It fires once per episode, never once per frame.
	GapStarted bool
}

// Machine tracks the movement phase across frames. It is owned by the
// orchestrator and driven from a single goroutine; it carries the only
// session-scoped mutable state outside the Session itself.
type Machine struct {
	cfg Config

	phase          Phase
	phaseEnteredAt time.Time
	spans          [phaseCount]PhaseSpan

	prevDepth   float64
	prevDepthOK bool
	maxDepth    float64
	bottomSnap  metrics.Metrics
	bottomTS    time.Time
	repCount    int
	lastGoodTS  time.Time
	gapActive   bool
	gapEpisodes int
}

// New creates a machine in the Standing phase.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// RepCount returns the number of completed repetitions.
func (m *Machine) RepCount() int { return m.repCount }

// GapEpisodes returns the number of detection gap episodes raised.
func (m *Machine) GapEpisodes() int { return m.gapEpisodes }

// Step consumes one frame's depth signal and metric snapshot.
// depth is the smoothed hip displacement below the standing baseline;
// snap is the metric evaluation for the same frame.
func (m *Machine) Step(ts time.Time, depth metrics.Value, snap metrics.Metrics) StepResult {
	if !depth.OK {
		return m.stepUnavailable(ts)
	}

	// Depth recovered; close any open gap episode.
	m.gapActive = false
	m.lastGoodTS = ts

	if !m.prevDepthOK {
		// First readable frame: arm the delta tracking, no transition.
		m.prevDepth = depth.V
		m.prevDepthOK = true
		if m.phaseEnteredAt.IsZero() {
			m.phaseEnteredAt = ts
			m.spans[Standing].Entry = ts
		}
		return StepResult{}
	}

	delta := depth.V - m.prevDepth
	m.prevDepth = depth.V

	// Track the deepest point of the current descent for the Bottom
	// snapshot and the ascent hysteresis.
	if (m.phase == Descending || m.phase == Bottom) && depth.V > m.maxDepth {
		m.maxDepth = depth.V
		m.bottomSnap = snap
		m.bottomTS = ts
	}

	// Dwell gate: hold the phase until it has lasted MinPhaseDwell.
	if ts.Sub(m.phaseEnteredAt) < m.cfg.MinPhaseDwell {
		return StepResult{}
	}

	switch m.phase {
	case Standing:
		if depth.V > m.cfg.DepthDeadband && delta > 0 {
			return m.transition(ts, Descending, snap)
		}
	case Descending:
		if delta <= 0 {
			return m.transition(ts, Bottom, snap)
		}
	case Bottom:
		if depth.V < m.maxDepth-m.cfg.DepthDeadband {
			return m.transition(ts, Ascending, snap)
		}
	case Ascending:
		if depth.V <= m.cfg.StandingTolerance {
			return m.transition(ts, Standing, snap)
		}
	}
	return StepResult{}
}

func (m *Machine) stepUnavailable(ts time.Time) StepResult {
	// Gaps hold the machine in its current phase. Outside Standing, a
	// gap longer than the timeout raises one detection-quality episode.
	if m.phase == Standing || m.gapActive || m.lastGoodTS.IsZero() {
		return StepResult{}
	}
	if ts.Sub(m.lastGoodTS) > m.cfg.DetectionGapTimeout {
		m.gapActive = true
		m.gapEpisodes++
		return StepResult{GapStarted: true}
	}
	return StepResult{}
}

func (m *Machine) transition(ts time.Time, to Phase, snap metrics.Metrics) StepResult {
	from := m.phase
	m.spans[from].Exit = ts
	m.spans[to].Entry = ts
	m.phase = to
	m.phaseEnteredAt = ts

	res := StepResult{Transitioned: true, From: from, To: to}

	switch {
	case from == Standing && to == Descending:
		// New rep attempt: reset per-rep tracking. The Standing span of
		// the rep is the stand that just ended.
		m.maxDepth = 0
		m.bottomSnap = metrics.Metrics{}
		m.bottomTS = time.Time{}

	case from == Bottom && to == Ascending:
		snapCopy := m.bottomSnap
		res.BottomSnapshot = &snapCopy
		res.BottomTS = m.bottomTS

	case from == Ascending && to == Standing:
		m.repCount++
		completion := snap
		ascent := ts.Sub(m.spans[Bottom].Exit).Seconds()
		completion.AscentSeconds = metrics.Value{V: ascent, OK: true}
		rep := &RepEvent{
			Index:             m.repCount,
			Phases:            m.spans,
			BottomMetrics:     m.bottomSnap,
			BottomTS:          m.bottomTS,
			CompletionMetrics: completion,
			CompletedTS:       ts,
		}
		res.Rep = rep
		// The stand that closes this rep opens the next one.
		m.spans = [phaseCount]PhaseSpan{}
		m.spans[Standing].Entry = ts
	}

	return res
}
