// Package source abstracts where raw pose detections come from: a live
// camera push, a recorded JSONL capture, or an in-memory slice for tests.
package source

import (
	"context"

	"github.com/formsight-data/form.report/internal/pose"
)

// FrameSource is a stream of raw pose detections. Next returns io.EOF when
// the source is exhausted or closed; any other error is fatal to the
// session. Implementations are read from a single consumer goroutine.
type FrameSource interface {
	// Next blocks until a detection is available, the source ends (io.EOF),
	// or ctx is cancelled.
	Next(ctx context.Context) (pose.RawDetection, error)

	// Close releases the source. Next calls after Close return io.EOF.
	Close() error

	// Mode reports whether this source is live or recorded, which decides
	// the drop policy and feedback timestamping downstream.
	Mode() pose.Mode
}
