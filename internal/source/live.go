package source

import (
	"context"
	"io"
	"sync"

	"github.com/formsight-data/form.report/internal/pose"
)

// LiveSource adapts a push-style detector callback into a FrameSource.
// It holds at most one pending detection: when the consumer falls behind,
// each new push replaces the pending one, so the consumer always sees the
// freshest frame. Replaced frames are counted, not queued.
type LiveSource struct {
	mu      sync.Mutex
	pending *pose.RawDetection
	closed  bool
	dropped int

	// notify wakes a blocked Next. Buffered so Push never blocks.
	notify chan struct{}
}

// NewLiveSource creates an empty live source. The detector side feeds it
// with Push; the engine side drains it with Next.
func NewLiveSource() *LiveSource {
	return &LiveSource{notify: make(chan struct{}, 1)}
}

// Push hands a fresh detection to the consumer, replacing any undelivered
// one. It never blocks and is safe to call from the detector's thread.
func (s *LiveSource) Push(det pose.RawDetection) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		s.dropped++
	}
	s.pending = &det
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the freshest pushed detection, blocking until one arrives.
func (s *LiveSource) Next(ctx context.Context) (pose.RawDetection, error) {
	for {
		s.mu.Lock()
		if s.pending != nil {
			det := *s.pending
			s.pending = nil
			s.mu.Unlock()
			return det, nil
		}
		if s.closed {
			s.mu.Unlock()
			return pose.RawDetection{}, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return pose.RawDetection{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close ends the stream. A pending detection is still delivered first.
func (s *LiveSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dropped returns how many pushed detections were replaced before delivery.
func (s *LiveSource) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Mode reports pose.ModeLive.
func (s *LiveSource) Mode() pose.Mode { return pose.ModeLive }
