// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and the synthetic squat
// sequence generators used across pipeline package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/formsight-data/form.report/internal/pose"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Neutral standing skeleton in normalised image coordinates (Y down).
const (
	StandShoulderY = 0.30
	StandHipY      = 0.50
	StandKneeY     = 0.70
	StandAnkleY    = 0.85
	LeftX          = 0.45
	RightX         = 0.55
)

// PoseOpts shapes one generated skeleton frame.
type PoseOpts struct {
	HipY            float64 // vertical hip position; StandHipY when zero
	KneeXOffset     float64 // medial knee shift (valgus)
	ShoulderXOffset float64 // forward shoulder shift (torso lean)
	AnkleLift       float64 // upward ankle displacement (heel lift)
	Confidence      float64 // per-joint confidence; 0.9 when zero
}

// Frame builds one canonical PoseFrame with the given skeleton tweaks.
func Frame(ts time.Time, mode pose.Mode, o PoseOpts) pose.PoseFrame {
	hipY := o.HipY
	if hipY == 0 {
		hipY = StandHipY
	}
	conf := o.Confidence
	if conf == 0 {
		conf = 0.9
	}
	// Shoulders ride a fixed offset above the hips so the torso follows
	// the descent.
	shoulderY := hipY - (StandHipY - StandShoulderY)
	ankleY := StandAnkleY - o.AnkleLift

	set := func(f *pose.PoseFrame, j pose.Joint, x, y float64) {
		f.Joints[j] = pose.JointPoint{X: x, Y: y, Confidence: conf, Present: true}
	}

	var f pose.PoseFrame
	f.TS = ts
	f.Mode = mode
	set(&f, pose.Root, 0.5, hipY)
	set(&f, pose.LeftHip, LeftX, hipY)
	set(&f, pose.RightHip, RightX, hipY)
	set(&f, pose.LeftKnee, LeftX+o.KneeXOffset, StandKneeY)
	set(&f, pose.RightKnee, RightX-o.KneeXOffset, StandKneeY)
	set(&f, pose.LeftAnkle, LeftX, ankleY)
	set(&f, pose.RightAnkle, RightX, ankleY)
	set(&f, pose.LeftShoulder, LeftX-0.01+o.ShoulderXOffset, shoulderY)
	set(&f, pose.RightShoulder, RightX+0.01+o.ShoulderXOffset, shoulderY)
	return f
}

// EmptyFrame builds a frame with every joint absent, as the ingestion
// adapter emits when the detector loses the subject.
func EmptyFrame(ts time.Time, mode pose.Mode) pose.PoseFrame {
	return pose.PoseFrame{TS: ts, Mode: mode}
}

// SquatOpts shapes a synthetic squat sequence.
type SquatOpts struct {
	Start time.Time
	Mode  pose.Mode
	FPS   float64 // default 30

	StandFrames   int // default 10
	DescentFrames int // default 12
	BottomFrames  int // default 8
	AscentFrames  int // default 30
	RecoverFrames int // default 10

	// BottomHipY is the hip height at the bottom of the squat.
	// Default 0.72, at or below knee height (0.70), a legal-depth squat.
	BottomHipY float64

	// Form faults, applied progressively through the descent and held at
	// the bottom. Zero values produce a clean rep.
	KneeXOffset     float64
	ShoulderXOffset float64
	AnkleLift       float64

	// GapFrames, when > 0, splits the bottom hold with this many
	// all-joints-absent frames to simulate a detection outage.
	GapFrames int
}

func (o *SquatOpts) applyDefaults() {
	if o.FPS == 0 {
		o.FPS = 30
	}
	if o.Mode == "" {
		o.Mode = pose.ModeRecorded
	}
	if o.Start.IsZero() {
		o.Start = time.Unix(1_700_000_000, 0)
	}
	if o.StandFrames == 0 {
		o.StandFrames = 10
	}
	if o.DescentFrames == 0 {
		o.DescentFrames = 12
	}
	if o.BottomFrames == 0 {
		o.BottomFrames = 8
	}
	if o.AscentFrames == 0 {
		o.AscentFrames = 30
	}
	if o.RecoverFrames == 0 {
		o.RecoverFrames = 10
	}
	if o.BottomHipY == 0 {
		o.BottomHipY = 0.72
	}
}

// SquatFrames generates one full squat repetition as canonical frames:
// stand, descend, hold the bottom, ascend, stand again. Timestamps advance
// at the configured FPS.
func SquatFrames(o SquatOpts) []pose.PoseFrame {
	o.applyDefaults()

	interval := time.Duration(float64(time.Second) / o.FPS)
	ts := o.Start
	next := func(po PoseOpts) pose.PoseFrame {
		f := Frame(ts, o.Mode, po)
		ts = ts.Add(interval)
		return f
	}

	var frames []pose.PoseFrame
	for i := 0; i < o.StandFrames; i++ {
		frames = append(frames, next(PoseOpts{HipY: StandHipY}))
	}
	for i := 1; i <= o.DescentFrames; i++ {
		p := float64(i) / float64(o.DescentFrames)
		frames = append(frames, next(PoseOpts{
			HipY:            StandHipY + p*(o.BottomHipY-StandHipY),
			KneeXOffset:     p * o.KneeXOffset,
			ShoulderXOffset: p * o.ShoulderXOffset,
			AnkleLift:       p * o.AnkleLift,
		}))
	}
	bottom := PoseOpts{
		HipY:            o.BottomHipY,
		KneeXOffset:     o.KneeXOffset,
		ShoulderXOffset: o.ShoulderXOffset,
		AnkleLift:       o.AnkleLift,
	}
	half := o.BottomFrames / 2
	for i := 0; i < half; i++ {
		frames = append(frames, next(bottom))
	}
	for i := 0; i < o.GapFrames; i++ {
		f := EmptyFrame(ts, o.Mode)
		ts = ts.Add(interval)
		frames = append(frames, f)
	}
	for i := half; i < o.BottomFrames; i++ {
		frames = append(frames, next(bottom))
	}
	for i := 1; i <= o.AscentFrames; i++ {
		p := float64(i) / float64(o.AscentFrames)
		frames = append(frames, next(PoseOpts{
			HipY:            o.BottomHipY + p*(StandHipY-o.BottomHipY),
			KneeXOffset:     (1 - p) * o.KneeXOffset,
			ShoulderXOffset: (1 - p) * o.ShoulderXOffset,
			AnkleLift:       (1 - p) * o.AnkleLift,
		}))
	}
	for i := 0; i < o.RecoverFrames; i++ {
		frames = append(frames, next(PoseOpts{HipY: StandHipY}))
	}
	return frames
}

// SquatDetections generates the same squat sequence as raw vendor
// detections, for exercising the ingestion adapter and full engine runs.
func SquatDetections(o SquatOpts) []pose.RawDetection {
	frames := SquatFrames(o)
	dets := make([]pose.RawDetection, 0, len(frames))
	for i := range frames {
		dets = append(dets, DetectionFromFrame(&frames[i]))
	}
	return dets
}

// DetectionFromFrame converts a canonical frame back into a raw vendor
// detection using the default joint vocabulary.
func DetectionFromFrame(f *pose.PoseFrame) pose.RawDetection {
	det := pose.RawDetection{TS: f.TS}
	for j := pose.Joint(0); j < pose.JointCount; j++ {
		p := f.Joints[j]
		if !p.Present {
			continue
		}
		det.Joints = append(det.Joints, pose.RawJoint{
			Name:       j.String(),
			X:          p.X,
			Y:          p.Y,
			Confidence: p.Confidence,
		})
	}
	return det
}
