package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/testutil"
)

func standingWindow(n int) []pose.PoseFrame {
	frames := make([]pose.PoseFrame, 0, n)
	ts := time.Unix(0, 0)
	for i := 0; i < n; i++ {
		frames = append(frames, testutil.Frame(ts, pose.ModeRecorded, testutil.PoseOpts{}))
		ts = ts.Add(33 * time.Millisecond)
	}
	return frames
}

func TestCaptureBaseline(t *testing.T) {
	t.Parallel()

	b, ok := CaptureBaseline(standingWindow(5))
	require.True(t, ok)
	assert.InDelta(t, testutil.StandHipY, b.HipY, 1e-9)
	assert.InDelta(t, testutil.StandAnkleY, b.LeftAnkle, 1e-9)
	assert.InDelta(t, testutil.StandAnkleY, b.RightAnkle, 1e-9)
}

func TestCaptureBaselineRequiresFullVisibility(t *testing.T) {
	t.Parallel()

	window := standingWindow(5)
	window[2].Joints[pose.LeftAnkle].Present = false

	_, ok := CaptureBaseline(window)
	assert.False(t, ok)

	_, ok = CaptureBaseline(nil)
	assert.False(t, ok)
}

func TestDepthTracksHipDisplacement(t *testing.T) {
	t.Parallel()

	b, ok := CaptureBaseline(standingWindow(5))
	require.True(t, ok)

	deep := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.70}),
	}
	d := Depth(deep, b)
	require.True(t, d.OK)
	assert.InDelta(t, 0.20, d.V, 1e-9)

	// Absent hips anywhere in the window make depth unavailable.
	deep[0].Joints[pose.LeftHip].Present = false
	assert.False(t, Depth(deep, b).OK)
}

func TestEvaluateIsPure(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))
	window := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.72, KneeXOffset: 0.03}),
	}

	first := Evaluate(window, b)
	second := Evaluate(window, b)
	assert.Equal(t, first, second, "identical windows must yield identical metrics")
}

func TestDepthRatioCrossesOneAtKneeHeight(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))

	atKnee := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: testutil.StandKneeY}),
	}
	m := Evaluate(atKnee, b)
	require.True(t, m.DepthRatio.OK)
	assert.InDelta(t, 1.0, m.DepthRatio.V, 1e-9)

	shallow := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.62}),
	}
	m = Evaluate(shallow, b)
	require.True(t, m.DepthRatio.OK)
	assert.Less(t, m.DepthRatio.V, 1.0)
}

func TestKneeValgusStraightChainIsZero(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))
	window := standingWindow(1)

	m := Evaluate(window, b)
	require.True(t, m.KneeValgusDeg.OK)
	assert.InDelta(t, 0.0, m.KneeValgusDeg.V, 1e-9)
}

func TestKneeValgusDetectsMedialShift(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))
	window := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.72, KneeXOffset: 0.05}),
	}

	m := Evaluate(window, b)
	require.True(t, m.KneeValgusDeg.OK)
	assert.Greater(t, m.KneeValgusDeg.V, 12.0, "5%% medial knee shift should exceed the default valgus threshold")
}

func TestTorsoAngle(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))

	upright := Evaluate(standingWindow(1), b)
	require.True(t, upright.TorsoAngleDeg.OK)
	assert.InDelta(t, 0.0, upright.TorsoAngleDeg.V, 1e-9)

	leaned := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.70, ShoulderXOffset: 0.20}),
	}
	m := Evaluate(leaned, b)
	require.True(t, m.TorsoAngleDeg.OK)
	assert.InDelta(t, 45.0, m.TorsoAngleDeg.V, 0.5)
}

func TestHeelLift(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))

	lifted := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.72, AnkleLift: 0.05}),
	}
	m := Evaluate(lifted, b)
	require.True(t, m.HeelLift.OK)
	assert.InDelta(t, 0.05, m.HeelLift.V, 1e-9)

	// Downward ankle drift (subject stepping back) is not heel lift.
	sunk := []pose.PoseFrame{
		testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.72, AnkleLift: -0.02}),
	}
	m = Evaluate(sunk, b)
	require.True(t, m.HeelLift.OK)
	assert.Equal(t, 0.0, m.HeelLift.V)
}

func TestMetricUnavailabilityPerJoint(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))
	window := standingWindow(1)
	// Knock out one ankle: valgus and heel lift become unavailable, torso
	// and depth ratio stay available.
	window[0].Joints[pose.LeftAnkle].Present = false

	m := Evaluate(window, b)
	assert.False(t, m.KneeValgusDeg.OK)
	assert.False(t, m.HeelLift.OK)
	assert.True(t, m.TorsoAngleDeg.OK)
	assert.True(t, m.DepthRatio.OK)
	assert.False(t, m.AscentSeconds.OK, "per-frame evaluation never fills ascent duration")
}

func TestReanchorMovesBaselineSlowly(t *testing.T) {
	t.Parallel()

	b, _ := CaptureBaseline(standingWindow(5))
	drifted := testutil.Frame(time.Unix(1, 0), pose.ModeRecorded, testutil.PoseOpts{HipY: 0.54})

	out := b.Reanchor(&drifted, 0.05)
	assert.InDelta(t, testutil.StandHipY+0.05*0.04, out.HipY, 1e-9)

	// Absent joints leave the baseline untouched.
	empty := testutil.EmptyFrame(time.Unix(2, 0), pose.ModeRecorded)
	assert.Equal(t, out, out.Reanchor(&empty, 0.05))
}
