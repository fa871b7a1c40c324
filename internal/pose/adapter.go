package pose

import "time"

// RawJoint is a single joint detection as reported by the upstream pose
// model, in the vendor's own naming and coordinate convention.
type RawJoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// RawDetection is one frame tick worth of vendor joint detections.
type RawDetection struct {
	Joints []RawJoint `json:"joints"`
	TS     time.Time  `json:"ts"`
}

// AdapterConfig configures the vendor→canonical normalisation.
type AdapterConfig struct {
	// Mapping translates vendor joint names to canonical joints. Nil uses
	// DefaultJointMapping.
	Mapping map[string]Joint

	// FrameWidth/FrameHeight are the upstream pixel dimensions. When both
	// are > 0, coordinates are divided through to normalise into 0..1.
	// Zero means the upstream already reports normalised coordinates.
	FrameWidth  float64
	FrameHeight float64

	// ConfidenceFloor is the per-joint confidence below which a detection
	// is treated as absent for all downstream computation.
	ConfidenceFloor float64

	Mode Mode
}

// DefaultJointMapping covers the vendor vocabulary of the bundled pose
// model. Vendor names not present in the mapping are ignored, which is how
// face and hand landmarks are kept out of the pipeline.
func DefaultJointMapping() map[string]Joint {
	return map[string]Joint{
		"root":           Root,
		"pelvis":         Root,
		"left_hip":       LeftHip,
		"right_hip":      RightHip,
		"left_knee":      LeftKnee,
		"right_knee":     RightKnee,
		"left_ankle":     LeftAnkle,
		"right_ankle":    RightAnkle,
		"left_shoulder":  LeftShoulder,
		"right_shoulder": RightShoulder,
	}
}

// Adapter normalises raw vendor detections into canonical PoseFrames.
// It is a per-session object: the only state it carries is the monotonic
// timestamp guard and drop counters.
type Adapter struct {
	cfg     AdapterConfig
	mapping map[string]Joint

	lastTS time.Time

	// Counters for diagnostics; read via Stats.
	framesIn          int
	droppedOutOfOrder int
	emptyFrames       int
}

// NewAdapter creates an adapter for one analysis session.
func NewAdapter(cfg AdapterConfig) *Adapter {
	m := cfg.Mapping
	if m == nil {
		m = DefaultJointMapping()
	}
	return &Adapter{cfg: cfg, mapping: m}
}

// Normalise maps one raw detection to a canonical PoseFrame.
//
// A detection with zero confident joints still yields a frame with all
// joints absent; absence is a valid state downstream stages must tolerate.
// ok is false only when the detection's timestamp is not strictly after the
// previous frame's, in which case the frame is dropped and counted.
func (a *Adapter) Normalise(raw RawDetection) (PoseFrame, bool) {
	a.framesIn++

	if !a.lastTS.IsZero() && !raw.TS.After(a.lastTS) {
		a.droppedOutOfOrder++
		return PoseFrame{}, false
	}
	a.lastTS = raw.TS

	frame := PoseFrame{TS: raw.TS, Mode: a.cfg.Mode}
	for _, rj := range raw.Joints {
		j, known := a.mapping[rj.Name]
		if !known {
			continue
		}
		if rj.Confidence < a.cfg.ConfidenceFloor {
			continue
		}
		x, y := rj.X, rj.Y
		if a.cfg.FrameWidth > 0 && a.cfg.FrameHeight > 0 {
			x /= a.cfg.FrameWidth
			y /= a.cfg.FrameHeight
		}
		// Clamp rather than drop: detectors occasionally report joints a
		// few pixels outside the frame during fast movement.
		frame.Joints[j] = JointPoint{
			X:          clamp01(x),
			Y:          clamp01(y),
			Confidence: rj.Confidence,
			Present:    true,
		}
	}

	if frame.PresentCount() == 0 {
		a.emptyFrames++
	}
	return frame, true
}

// Stats returns ingestion counters for diagnostics.
func (a *Adapter) Stats() (framesIn, droppedOutOfOrder, emptyFrames int) {
	return a.framesIn, a.droppedOutOfOrder, a.emptyFrames
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
