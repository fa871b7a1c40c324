// Package feedback turns per-rep metric snapshots into typed form guidance.
package feedback

import (
	"time"

	"github.com/formsight-data/form.report/internal/pose"
)

// Type is the closed set of feedback kinds. Dispatch on it exhaustively;
// there are no subtypes.
type Type string

const (
	TypeDepth            Type = "depth"
	TypeKneeValgus       Type = "knee_valgus"
	TypeTorsoAngle       Type = "torso_angle"
	TypeHeelLift         Type = "heel_lift"
	TypeAscentRate       Type = "ascent_rate"
	TypeDetectionQuality Type = "detection_quality"
	TypePositive         Type = "positive"
	TypeLiveInstruction  Type = "live_instruction"
	TypeRepComplete      Type = "rep_complete"
)

// priorities is the fixed presentation order; lower sorts first.
// Positive is deliberately last so summaries lead with corrections.
var priorities = map[Type]int{
	TypeDepth:            1,
	TypeKneeValgus:       2,
	TypeTorsoAngle:       3,
	TypeAscentRate:       4,
	TypeHeelLift:         5,
	TypeDetectionQuality: 6,
	TypeLiveInstruction:  7,
	TypeRepComplete:      8,
	TypePositive:         99,
}

// Priority returns the fixed sort priority for the type.
func (t Type) Priority() int {
	if p, ok := priorities[t]; ok {
		return p
	}
	return 99
}

// Transient reports whether items of this type are on-screen guidance only
// and never archived into the session's feedback list.
func (t Type) Transient() bool {
	return t == TypeLiveInstruction || t == TypeRepComplete
}

// Item is one discrete piece of form guidance.
type Item struct {
	Type        Type      `json:"type"`
	Message     string    `json:"message"`
	Detail      string    `json:"detail,omitempty"`
	Causes      []string  `json:"causes,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Priority    int       `json:"priority"`
	RepIndex    int       `json:"rep_index,omitempty"`

	// FrameTS is the video timestamp the item refers to. Only populated
	// in recorded mode, where the consumer can seek to it.
	FrameTS *time.Time `json:"frame_ts,omitempty"`
}

// catalogEntry is the fixed message content for one feedback type.
type catalogEntry struct {
	message     string
	detail      string
	causes      []string
	suggestions []string
}

var catalog = map[Type]catalogEntry{
	TypeDepth: {
		message: "Squat deeper",
		detail:  "Your hips did not reach knee height at the bottom of the rep.",
		causes: []string{
			"Limited ankle or hip mobility",
			"Load too heavy to control through full range",
		},
		suggestions: []string{
			"Pause at your current bottom position and sit back further",
			"Practice goblet squats to a box set at parallel",
		},
	},
	TypeKneeValgus: {
		message: "Keep your knees tracking over your toes",
		detail:  "One or both knees caved inward during the rep.",
		causes: []string{
			"Weak hip abductors",
			"Stance too narrow for your hip anatomy",
		},
		suggestions: []string{
			"Think about screwing your feet into the floor",
			"Add banded lateral walks to your warm-up",
		},
	},
	TypeTorsoAngle: {
		message: "Stay more upright",
		detail:  "Your torso folded forward past a safe angle at the bottom.",
		causes: []string{
			"Bar or load drifting forward of mid-foot",
			"Weak upper back or core bracing",
		},
		suggestions: []string{
			"Brace before you descend and keep your chest up",
			"Try front-loaded variations to groove an upright torso",
		},
	},
	TypeHeelLift: {
		message: "Keep your heels down",
		detail:  "One or both heels lifted off the floor during the rep.",
		causes: []string{
			"Limited ankle dorsiflexion",
			"Weight shifting onto the toes",
		},
		suggestions: []string{
			"Shift your weight toward mid-foot",
			"Stretch your calves, or raise your heels on a small plate",
		},
	},
	TypeAscentRate: {
		message: "Control the way up",
		detail:  "Your ascent speed was outside the controlled range.",
		causes: []string{
			"Bouncing out of the bottom",
			"Grinding a rep that is too heavy",
		},
		suggestions: []string{
			"Drive up smoothly without bouncing",
			"Leave a rep in reserve while you build control",
		},
	},
	TypeDetectionQuality: {
		message: "Tracking lost you for a moment",
		detail:  "The camera could not see enough of your body to judge part of this set.",
		causes: []string{
			"Body partially out of frame",
			"Poor lighting or occluding objects",
		},
		suggestions: []string{
			"Step back so your whole body is in frame",
			"Face the camera side-on in an evenly lit spot",
		},
	},
	TypePositive: {
		message: "Great rep, solid depth and control",
	},
	TypeLiveInstruction: {
		message: "Stand where your whole body is visible",
	},
	TypeRepComplete: {
		message: "Rep complete",
	},
}

// NewItem builds an item of the given type from the fixed catalog.
// frameTS is recorded against the item only for recorded-mode sessions.
func NewItem(t Type, mode pose.Mode, repIndex int, frameTS time.Time) Item {
	entry := catalog[t]
	item := Item{
		Type:        t,
		Message:     entry.message,
		Detail:      entry.detail,
		Causes:      entry.causes,
		Suggestions: entry.suggestions,
		Priority:    t.Priority(),
		RepIndex:    repIndex,
	}
	if mode == pose.ModeRecorded && !frameTS.IsZero() {
		ts := frameTS
		item.FrameTS = &ts
	}
	return item
}
