// Package metrics computes per-frame biomechanical metrics from canonical
// pose frames. Every function here is pure: identical frame windows always
// yield identical metrics, and no session state is retained.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/formsight-data/form.report/internal/pose"
)

// Value is one metric sample. OK is false when a joint required for the
// computation was absent anywhere in the window; V is meaningless then.
// Unavailability propagates to the rule engine as a detection-quality
// signal instead of a stale or defaulted number.
type Value struct {
	V  float64
	OK bool
}

// Metrics is the snapshot evaluated over one frame window.
type Metrics struct {
	// DepthRatio is hip height over knee height in image coordinates
	// (Y grows downward, so >= 1 means the hip is at or below the knee).
	DepthRatio Value
	// KneeValgusDeg is the worst medial deviation, in degrees, of either
	// shank (ankle→knee) from vertical. Lateral (varus) deviation does
	// not count.
	KneeValgusDeg Value
	// TorsoAngleDeg is the angle of the shoulder–hip line from vertical.
	TorsoAngleDeg Value
	// HeelLift is the upward displacement of either ankle from its rest
	// baseline, in normalised image units.
	HeelLift Value
	// AscentSeconds is the Bottom→Standing transition time. It is only
	// populated on completed-rep snapshots; per-frame evaluation leaves
	// it unavailable.
	AscentSeconds Value
}

// Baseline anchors depth and heel-lift measurements to the lifter's resting
// stance. It is a value type owned by the orchestrator; re-anchoring returns
// a new Baseline so evaluation stays pure.
type Baseline struct {
	HipY       float64
	LeftAnkle  float64
	RightAnkle float64
	OK         bool
}

// baselineJoints are the joints that must be visible to capture a baseline.
var baselineJoints = []pose.Joint{
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
	pose.LeftShoulder, pose.RightShoulder,
}

// CaptureBaseline derives a standing baseline from a window of frames. Every
// frame must have the full lower body and shoulders visible; ok is false
// otherwise so the caller can keep waiting for a clean standing window.
func CaptureBaseline(window []pose.PoseFrame) (Baseline, bool) {
	if len(window) == 0 {
		return Baseline{}, false
	}
	hipYs := make([]float64, 0, len(window))
	leftYs := make([]float64, 0, len(window))
	rightYs := make([]float64, 0, len(window))
	for i := range window {
		f := &window[i]
		if !f.Has(baselineJoints...) {
			return Baseline{}, false
		}
		_, hy, _ := f.HipCenter()
		hipYs = append(hipYs, hy)
		leftYs = append(leftYs, f.Joints[pose.LeftAnkle].Y)
		rightYs = append(rightYs, f.Joints[pose.RightAnkle].Y)
	}
	return Baseline{
		HipY:       stat.Mean(hipYs, nil),
		LeftAnkle:  stat.Mean(leftYs, nil),
		RightAnkle: stat.Mean(rightYs, nil),
		OK:         true,
	}, true
}

// Reanchor nudges the baseline toward the current frame with EMA factor
// alpha. Call only while the lifter is standing; returns the input baseline
// unchanged when required joints are absent.
func (b Baseline) Reanchor(f *pose.PoseFrame, alpha float64) Baseline {
	if !b.OK || !f.Has(pose.LeftHip, pose.RightHip, pose.LeftAnkle, pose.RightAnkle) {
		return b
	}
	_, hy, _ := f.HipCenter()
	b.HipY = (1-alpha)*b.HipY + alpha*hy
	b.LeftAnkle = (1-alpha)*b.LeftAnkle + alpha*f.Joints[pose.LeftAnkle].Y
	b.RightAnkle = (1-alpha)*b.RightAnkle + alpha*f.Joints[pose.RightAnkle].Y
	return b
}

// Depth is the smoothed vertical hip displacement below the standing
// baseline over the window. This is the drive signal for the rep state
// machine: ~0 when standing, increasing through the descent.
func Depth(window []pose.PoseFrame, b Baseline) Value {
	if !b.OK || len(window) == 0 {
		return Value{}
	}
	ys := make([]float64, 0, len(window))
	for i := range window {
		_, hy, ok := window[i].HipCenter()
		if !ok {
			return Value{}
		}
		ys = append(ys, hy)
	}
	return Value{V: stat.Mean(ys, nil) - b.HipY, OK: true}
}

// Evaluate computes the full metric snapshot for the most recent frame of
// the window, smoothing positional inputs over the window where it helps.
// AscentSeconds is left unavailable; the rep state machine fills it in on
// completed-rep snapshots.
func Evaluate(window []pose.PoseFrame, b Baseline) Metrics {
	if len(window) == 0 {
		return Metrics{}
	}
	f := &window[len(window)-1]
	return Metrics{
		DepthRatio:    depthRatio(f),
		KneeValgusDeg: kneeValgus(f),
		TorsoAngleDeg: torsoAngle(f),
		HeelLift:      heelLift(f, b),
	}
}

// depthRatio: vertical hip position over vertical knee position. Y grows
// downward, so the ratio crosses 1.0 exactly when the hip reaches knee
// height.
func depthRatio(f *pose.PoseFrame) Value {
	_, hy, okH := f.HipCenter()
	_, ky, okK := f.KneeCenter()
	if !okH || !okK || ky <= 0 {
		return Value{}
	}
	return Value{V: hy / ky, OK: true}
}

// kneeValgus: medial deviation of the shank from vertical in the frontal
// plane, worst of the two legs. The frontal projection of the thigh
// degenerates at squat depth (hip and knee share a height), so the shank
// is the stable reference for knee cave.
func kneeValgus(f *pose.PoseFrame) Value {
	// Medial direction is +X for the left leg, -X for the right.
	left, okL := shankValgusDeg(f, pose.LeftKnee, pose.LeftAnkle, +1)
	right, okR := shankValgusDeg(f, pose.RightKnee, pose.RightAnkle, -1)
	if !okL || !okR {
		return Value{}
	}
	return Value{V: math.Max(left, right), OK: true}
}

func shankValgusDeg(f *pose.PoseFrame, knee, ankle pose.Joint, medialSign float64) (float64, bool) {
	if !f.Has(knee, ankle) {
		return 0, false
	}
	k, a := f.Joints[knee], f.Joints[ankle]
	dy := a.Y - k.Y // ankle below knee in any readable pose
	if dy <= 0 {
		return 0, false
	}
	dx := (k.X - a.X) * medialSign
	if dx < 0 {
		dx = 0
	}
	return math.Atan2(dx, dy) * 180 / math.Pi, true
}

// torsoAngle: lean of the shoulder-centre→hip-centre line from vertical.
func torsoAngle(f *pose.PoseFrame) Value {
	sx, sy, okS := f.ShoulderCenter()
	hx, hy, okH := f.HipCenter()
	if !okS || !okH {
		return Value{}
	}
	dy := hy - sy // positive when shoulders are above hips
	dx := math.Abs(hx - sx)
	if dy <= 0 {
		// Shoulders at or below hips means the pose is unreadable for
		// torso lean (collapsed or inverted detection).
		return Value{}
	}
	return Value{V: math.Atan2(dx, dy) * 180 / math.Pi, OK: true}
}

// heelLift: upward ankle displacement from the rest baseline, worst side.
func heelLift(f *pose.PoseFrame, b Baseline) Value {
	if !b.OK || !f.Has(pose.LeftAnkle, pose.RightAnkle) {
		return Value{}
	}
	left := b.LeftAnkle - f.Joints[pose.LeftAnkle].Y
	right := b.RightAnkle - f.Joints[pose.RightAnkle].Y
	lift := math.Max(left, right)
	if lift < 0 {
		lift = 0
	}
	return Value{V: lift, OK: true}
}
