package feedback

import (
	"time"

	"github.com/formsight-data/form.report/internal/metrics"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/reps"
)

// Thresholds holds the rule cut-offs. Values come from the tuning config;
// nothing in this package hard-codes a threshold.
type Thresholds struct {
	MinDepthRatio    float64
	MaxKneeValgusDeg float64
	MaxTorsoAngleDeg float64
	HeelLiftEpsilon  float64
	MinAscentSeconds float64
	MaxAscentSeconds float64
}

// Engine applies the threshold rules at rep phase boundaries. It emits at
// most one item of a given type per rep cycle; the per-rep dedup state is
// reset by BeginRep.
type Engine struct {
	thresholds Thresholds
	mode       pose.Mode

	emitted  map[Type]bool
	violated bool
	repIndex int
}

// NewEngine creates a rule engine for one session.
func NewEngine(th Thresholds, mode pose.Mode) *Engine {
	return &Engine{
		thresholds: th,
		mode:       mode,
		emitted:    make(map[Type]bool),
	}
}

// BeginRep resets the per-rep dedup state. The orchestrator calls it at the
// Standing→Descending transition.
func (e *Engine) BeginRep(index int) {
	e.emitted = make(map[Type]bool)
	e.violated = false
	e.repIndex = index
}

// emit appends an item of type t unless one was already emitted this rep.
func (e *Engine) emit(items []Item, t Type, ts time.Time) []Item {
	if e.emitted[t] {
		return items
	}
	e.emitted[t] = true
	switch t {
	case TypeDepth, TypeKneeValgus, TypeTorsoAngle, TypeHeelLift, TypeAscentRate:
		e.violated = true
	}
	return append(items, NewItem(t, e.mode, e.repIndex, ts))
}

// OnBottom evaluates the bottom-of-rep rules against the max-depth
// snapshot. Metrics that are unavailable surface as a single
// detection-quality item rather than a false biomechanical judgment.
func (e *Engine) OnBottom(snap *metrics.Metrics, ts time.Time) []Item {
	var items []Item

	if snap.DepthRatio.OK {
		if snap.DepthRatio.V < e.thresholds.MinDepthRatio {
			items = e.emit(items, TypeDepth, ts)
		}
	} else {
		items = e.emit(items, TypeDetectionQuality, ts)
	}

	if snap.KneeValgusDeg.OK {
		if snap.KneeValgusDeg.V > e.thresholds.MaxKneeValgusDeg {
			items = e.emit(items, TypeKneeValgus, ts)
		}
	} else {
		items = e.emit(items, TypeDetectionQuality, ts)
	}

	if snap.TorsoAngleDeg.OK {
		if snap.TorsoAngleDeg.V > e.thresholds.MaxTorsoAngleDeg {
			items = e.emit(items, TypeTorsoAngle, ts)
		}
	} else {
		items = e.emit(items, TypeDetectionQuality, ts)
	}

	if snap.HeelLift.OK {
		if snap.HeelLift.V > e.thresholds.HeelLiftEpsilon {
			items = e.emit(items, TypeHeelLift, ts)
		}
	} else {
		items = e.emit(items, TypeDetectionQuality, ts)
	}

	return items
}

// OnRepComplete evaluates the completed-rep rules and closes out the rep:
// a clean rep yields a single positive item, and every rep yields a
// transient rep-complete item for live display.
func (e *Engine) OnRepComplete(rep *reps.RepEvent) []Item {
	var items []Item
	ts := rep.CompletedTS

	if rep.CompletionMetrics.AscentSeconds.OK {
		s := rep.CompletionMetrics.AscentSeconds.V
		if s < e.thresholds.MinAscentSeconds || s > e.thresholds.MaxAscentSeconds {
			items = e.emit(items, TypeAscentRate, ts)
		}
	} else {
		items = e.emit(items, TypeDetectionQuality, ts)
	}

	if !e.violated {
		items = e.emit(items, TypePositive, ts)
	}

	items = e.emit(items, TypeRepComplete, ts)
	return items
}

// OnDetectionGap handles a detection gap episode raised by the rep state
// machine. It shares the per-rep dedup with the boundary rules, so a gap
// and an unavailable bottom metric still yield one item for the rep.
func (e *Engine) OnDetectionGap(ts time.Time) []Item {
	return e.emit(nil, TypeDetectionQuality, ts)
}

// InstructionItem builds a transient live positioning instruction.
func (e *Engine) InstructionItem(ts time.Time) Item {
	return NewItem(TypeLiveInstruction, e.mode, 0, ts)
}
