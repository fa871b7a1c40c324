// Package pose defines the canonical joint vocabulary and frame model used
// by every stage past the ingestion boundary, plus the adapter that maps
// vendor joint detections into it.
package pose

import "time"

// Joint identifies an anatomical landmark tracked per frame.
type Joint int

const (
	Root Joint = iota
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftShoulder
	RightShoulder

	// JointCount is the number of canonical joints; PoseFrame arrays are
	// indexed 0..JointCount-1.
	JointCount
)

var jointNames = [JointCount]string{
	"root",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
	"left_shoulder",
	"right_shoulder",
}

func (j Joint) String() string {
	if j < 0 || j >= JointCount {
		return "unknown"
	}
	return jointNames[j]
}

// Mode tags the origin of a frame stream.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeRecorded Mode = "recorded"
)

// JointPoint is one joint observation in normalised image coordinates
// (0..1 on each axis, origin top-left, Y increasing downward).
// Present is false when the joint was not detected or fell below the
// confidence floor; X/Y are meaningless in that case.
type JointPoint struct {
	X          float64
	Y          float64
	Confidence float64
	Present    bool
}

// PoseFrame is one timestamped snapshot of canonical joint positions.
// Timestamps are strictly increasing within a session.
type PoseFrame struct {
	Joints [JointCount]JointPoint
	TS     time.Time
	Mode   Mode
}

// Point returns the observation for joint j and whether it is present.
func (f *PoseFrame) Point(j Joint) (JointPoint, bool) {
	p := f.Joints[j]
	return p, p.Present
}

// Has reports whether every listed joint is present in the frame.
func (f *PoseFrame) Has(joints ...Joint) bool {
	for _, j := range joints {
		if !f.Joints[j].Present {
			return false
		}
	}
	return true
}

// PresentCount returns the number of joints present in the frame.
func (f *PoseFrame) PresentCount() int {
	n := 0
	for _, p := range f.Joints {
		if p.Present {
			n++
		}
	}
	return n
}

// Midpoint returns the midpoint of two joints. ok is false when either
// joint is absent.
func (f *PoseFrame) Midpoint(a, b Joint) (x, y float64, ok bool) {
	pa, oka := f.Point(a)
	pb, okb := f.Point(b)
	if !oka || !okb {
		return 0, 0, false
	}
	return (pa.X + pb.X) / 2, (pa.Y + pb.Y) / 2, true
}

// HipCenter returns the midpoint of the two hips.
func (f *PoseFrame) HipCenter() (x, y float64, ok bool) {
	return f.Midpoint(LeftHip, RightHip)
}

// KneeCenter returns the midpoint of the two knees.
func (f *PoseFrame) KneeCenter() (x, y float64, ok bool) {
	return f.Midpoint(LeftKnee, RightKnee)
}

// ShoulderCenter returns the midpoint of the two shoulders.
func (f *PoseFrame) ShoulderCenter() (x, y float64, ok bool) {
	return f.Midpoint(LeftShoulder, RightShoulder)
}
