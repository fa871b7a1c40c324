package source

import (
	"context"
	"io"

	"github.com/formsight-data/form.report/internal/pose"
)

// SliceSource serves detections from memory. Tests and the batch CLI use
// it to drive the pipeline without a capture file.
type SliceSource struct {
	dets []pose.RawDetection
	next int
	mode pose.Mode
}

// NewSliceSource wraps a detection slice as a FrameSource.
func NewSliceSource(mode pose.Mode, dets []pose.RawDetection) *SliceSource {
	return &SliceSource{dets: dets, mode: mode}
}

// Next returns the next detection, or io.EOF when exhausted.
func (s *SliceSource) Next(ctx context.Context) (pose.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return pose.RawDetection{}, err
	}
	if s.next >= len(s.dets) {
		return pose.RawDetection{}, io.EOF
	}
	det := s.dets[s.next]
	s.next++
	return det, nil
}

// Close is a no-op; the backing slice needs no teardown.
func (s *SliceSource) Close() error { return nil }

// Mode reports the mode the source was created with.
func (s *SliceSource) Mode() pose.Mode { return s.mode }
