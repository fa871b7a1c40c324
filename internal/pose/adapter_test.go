package pose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ConfidenceFloor: 0.35,
		Mode:            ModeRecorded,
	}
}

func TestNormaliseConfidenceGating(t *testing.T) {
	t.Parallel()

	a := NewAdapter(testAdapterConfig())
	raw := RawDetection{
		TS: time.Unix(0, 1),
		Joints: []RawJoint{
			{Name: "left_hip", X: 0.4, Y: 0.5, Confidence: 0.9},
			{Name: "right_hip", X: 0.6, Y: 0.5, Confidence: 0.1}, // below floor
		},
	}

	frame, ok := a.Normalise(raw)
	require.True(t, ok)

	lh, present := frame.Point(LeftHip)
	require.True(t, present)
	assert.Equal(t, 0.4, lh.X)
	assert.Equal(t, 0.5, lh.Y)

	_, present = frame.Point(RightHip)
	assert.False(t, present, "joint below confidence floor must be absent")
}

func TestNormalisePixelCoordinates(t *testing.T) {
	t.Parallel()

	cfg := testAdapterConfig()
	cfg.FrameWidth = 720
	cfg.FrameHeight = 1280
	a := NewAdapter(cfg)

	frame, ok := a.Normalise(RawDetection{
		TS:     time.Unix(0, 1),
		Joints: []RawJoint{{Name: "left_knee", X: 360, Y: 640, Confidence: 0.8}},
	})
	require.True(t, ok)

	lk, present := frame.Point(LeftKnee)
	require.True(t, present)
	assert.InDelta(t, 0.5, lk.X, 1e-9)
	assert.InDelta(t, 0.5, lk.Y, 1e-9)
}

func TestNormaliseZeroConfidentJointsYieldsEmptyFrame(t *testing.T) {
	t.Parallel()

	a := NewAdapter(testAdapterConfig())
	frame, ok := a.Normalise(RawDetection{
		TS: time.Unix(0, 1),
		Joints: []RawJoint{
			{Name: "left_hip", Confidence: 0.05},
			{Name: "right_hip", Confidence: 0.0},
		},
	})
	require.True(t, ok, "empty detection is a valid frame, not an error")
	assert.Equal(t, 0, frame.PresentCount())

	_, _, empty := a.Stats()
	assert.Equal(t, 1, empty)
}

func TestNormaliseDropsOutOfOrderFrames(t *testing.T) {
	t.Parallel()

	a := NewAdapter(testAdapterConfig())
	_, ok := a.Normalise(RawDetection{TS: time.Unix(0, 100)})
	require.True(t, ok)

	_, ok = a.Normalise(RawDetection{TS: time.Unix(0, 50)})
	assert.False(t, ok)
	_, ok = a.Normalise(RawDetection{TS: time.Unix(0, 100)}) // equal is also out of order
	assert.False(t, ok)

	_, dropped, _ := a.Stats()
	assert.Equal(t, 2, dropped)
}

func TestNormaliseIgnoresUnknownVendorJoints(t *testing.T) {
	t.Parallel()

	a := NewAdapter(testAdapterConfig())
	frame, ok := a.Normalise(RawDetection{
		TS: time.Unix(0, 1),
		Joints: []RawJoint{
			{Name: "nose", X: 0.5, Y: 0.1, Confidence: 0.99},
			{Name: "left_ankle", X: 0.45, Y: 0.85, Confidence: 0.9},
		},
	})
	require.True(t, ok)
	assert.Equal(t, 1, frame.PresentCount())
	assert.True(t, frame.Has(LeftAnkle))
}

func TestNormaliseClampsOutOfFrameCoordinates(t *testing.T) {
	t.Parallel()

	a := NewAdapter(testAdapterConfig())
	frame, ok := a.Normalise(RawDetection{
		TS:     time.Unix(0, 1),
		Joints: []RawJoint{{Name: "left_ankle", X: -0.02, Y: 1.04, Confidence: 0.9}},
	})
	require.True(t, ok)

	la, present := frame.Point(LeftAnkle)
	require.True(t, present)
	assert.Equal(t, 0.0, la.X)
	assert.Equal(t, 1.0, la.Y)
}

func TestMidpointHelpers(t *testing.T) {
	t.Parallel()

	var frame PoseFrame
	frame.Joints[LeftHip] = JointPoint{X: 0.4, Y: 0.5, Present: true}
	frame.Joints[RightHip] = JointPoint{X: 0.6, Y: 0.52, Present: true}

	x, y, ok := frame.HipCenter()
	require.True(t, ok)
	assert.InDelta(t, 0.5, x, 1e-9)
	assert.InDelta(t, 0.51, y, 1e-9)

	_, _, ok = frame.KneeCenter()
	assert.False(t, ok, "midpoint with absent joints must report not-ok")
}
