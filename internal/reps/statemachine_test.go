package reps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsight-data/form.report/internal/metrics"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/testutil"
)

func testMachineConfig() Config {
	return Config{
		DepthDeadband:       0.04,
		MinPhaseDwell:       120 * time.Millisecond,
		StandingTolerance:   0.05,
		DetectionGapTimeout: 700 * time.Millisecond,
	}
}

// drive replays canonical frames through the machine the way the
// orchestrator does: a 5-frame window, baseline captured from the first
// clean standing windowful, smoothed depth per frame.
func drive(t *testing.T, m *Machine, frames []pose.PoseFrame) []StepResult {
	t.Helper()

	const windowSize = 5
	var window []pose.PoseFrame
	var baseline metrics.Baseline
	var results []StepResult

	for i := range frames {
		window = append(window, frames[i])
		if len(window) > windowSize {
			window = window[1:]
		}
		if !baseline.OK && len(window) == windowSize {
			if b, ok := metrics.CaptureBaseline(window); ok {
				baseline = b
			}
		}
		depth := metrics.Depth(window, baseline)
		snap := metrics.Evaluate(window, baseline)
		results = append(results, m.Step(frames[i].TS, depth, snap))
	}
	return results
}

func collectReps(results []StepResult) []*RepEvent {
	var reps []*RepEvent
	for _, r := range results {
		if r.Rep != nil {
			reps = append(reps, r.Rep)
		}
	}
	return reps
}

func TestSingleCleanRep(t *testing.T) {
	t.Parallel()

	m := New(testMachineConfig())
	results := drive(t, m, testutil.SquatFrames(testutil.SquatOpts{}))

	assert.Equal(t, 1, m.RepCount())
	assert.Equal(t, Standing, m.Phase())

	reps := collectReps(results)
	require.Len(t, reps, 1)
	rep := reps[0]
	assert.Equal(t, 1, rep.Index)

	require.True(t, rep.BottomMetrics.DepthRatio.OK)
	assert.GreaterOrEqual(t, rep.BottomMetrics.DepthRatio.V, 1.0,
		"bottom snapshot must be taken at maximum depth")

	require.True(t, rep.CompletionMetrics.AscentSeconds.OK)
	assert.Greater(t, rep.AscentSeconds(), 0.4)
	assert.Less(t, rep.AscentSeconds(), 4.0)
}

func TestRepRequiresFullCycleInOrder(t *testing.T) {
	t.Parallel()

	m := New(testMachineConfig())
	results := drive(t, m, testutil.SquatFrames(testutil.SquatOpts{}))

	// Reconstruct the transition sequence and check a counted rep is
	// always preceded by the full ordered cycle.
	wantCycle := []Phase{Descending, Bottom, Ascending, Standing}
	var sinceLastRep []Phase
	repsSeen := 0
	for _, r := range results {
		if r.Transitioned {
			sinceLastRep = append(sinceLastRep, r.To)
		}
		if r.Rep != nil {
			repsSeen++
			assert.Equal(t, wantCycle, sinceLastRep,
				"rep %d counted without a full in-order cycle", repsSeen)
			sinceLastRep = nil
		}
	}
	assert.Equal(t, 1, repsSeen)
}

func TestMultipleReps(t *testing.T) {
	t.Parallel()

	opts := testutil.SquatOpts{}
	frames := testutil.SquatFrames(opts)
	// Chain two more reps onto the sequence, continuing the clock.
	for n := 0; n < 2; n++ {
		next := testutil.SquatOpts{Start: frames[len(frames)-1].TS.Add(33 * time.Millisecond)}
		frames = append(frames, testutil.SquatFrames(next)...)
	}

	m := New(testMachineConfig())
	results := drive(t, m, frames)

	assert.Equal(t, 3, m.RepCount())
	reps := collectReps(results)
	require.Len(t, reps, 3)
	for i, rep := range reps {
		assert.Equal(t, i+1, rep.Index, "rep indices must be monotonic from 1")
	}
}

func TestShallowMovementBelowDeadbandDoesNotStartRep(t *testing.T) {
	t.Parallel()

	// Hip sway of 0.02 stays inside the 0.04 deadband.
	frames := testutil.SquatFrames(testutil.SquatOpts{BottomHipY: testutil.StandHipY + 0.02})

	m := New(testMachineConfig())
	drive(t, m, frames)

	assert.Equal(t, 0, m.RepCount())
	assert.Equal(t, Standing, m.Phase())
}

func TestBottomSnapshotEmittedOnceAtBottomExit(t *testing.T) {
	t.Parallel()

	m := New(testMachineConfig())
	results := drive(t, m, testutil.SquatFrames(testutil.SquatOpts{}))

	snapshots := 0
	for _, r := range results {
		if r.BottomSnapshot != nil {
			snapshots++
			assert.True(t, r.Transitioned)
			assert.Equal(t, Bottom, r.From)
			assert.Equal(t, Ascending, r.To)
			assert.False(t, r.BottomTS.IsZero())
		}
	}
	assert.Equal(t, 1, snapshots)
}

func TestDetectionGapRaisesOneEpisode(t *testing.T) {
	t.Parallel()

	// 30 absent frames at 30fps is a 1s outage, past the 700ms timeout.
	frames := testutil.SquatFrames(testutil.SquatOpts{GapFrames: 30})

	m := New(testMachineConfig())
	results := drive(t, m, frames)

	episodes := 0
	for _, r := range results {
		if r.GapStarted {
			episodes++
		}
	}
	assert.Equal(t, 1, episodes, "one episode per outage, not one per frame")
	assert.Equal(t, 1, m.GapEpisodes())

	// The machine held its phase through the gap and the rep still
	// completed after recovery.
	assert.Equal(t, 1, m.RepCount())
}

func TestShortGapRaisesNoEpisode(t *testing.T) {
	t.Parallel()

	// 12 frames ≈ 400ms, inside the 700ms timeout.
	frames := testutil.SquatFrames(testutil.SquatOpts{GapFrames: 12})

	m := New(testMachineConfig())
	drive(t, m, frames)

	assert.Equal(t, 0, m.GapEpisodes())
	assert.Equal(t, 1, m.RepCount())
}

func TestGapWhileStandingRaisesNoEpisode(t *testing.T) {
	t.Parallel()

	ts := time.Unix(0, 0)
	var frames []pose.PoseFrame
	for i := 0; i < 10; i++ {
		frames = append(frames, testutil.Frame(ts, pose.ModeRecorded, testutil.PoseOpts{}))
		ts = ts.Add(33 * time.Millisecond)
	}
	for i := 0; i < 60; i++ {
		frames = append(frames, testutil.EmptyFrame(ts, pose.ModeRecorded))
		ts = ts.Add(33 * time.Millisecond)
	}

	m := New(testMachineConfig())
	drive(t, m, frames)

	assert.Equal(t, 0, m.GapEpisodes(), "gaps while Standing are not an episode")
}

func TestPhaseSpansAreOrdered(t *testing.T) {
	t.Parallel()

	m := New(testMachineConfig())
	results := drive(t, m, testutil.SquatFrames(testutil.SquatOpts{}))

	reps := collectReps(results)
	require.Len(t, reps, 1)
	rep := reps[0]

	desc := rep.Phases[Descending]
	bottom := rep.Phases[Bottom]
	ascent := rep.Phases[Ascending]

	assert.True(t, desc.Entry.Before(desc.Exit))
	assert.Equal(t, desc.Exit, bottom.Entry)
	assert.True(t, bottom.Entry.Before(bottom.Exit))
	assert.Equal(t, bottom.Exit, ascent.Entry)
	assert.True(t, ascent.Entry.Before(ascent.Exit))
	assert.Equal(t, ascent.Exit, rep.CompletedTS)
}
