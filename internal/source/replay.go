package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/formsight-data/form.report/internal/pose"
)

// ReplaySource reads raw detections from a JSONL capture file, one
// detection object per line. With a zero Interval it delivers as fast as
// the consumer pulls (recorded analysis); with a positive Interval it paces
// delivery to emulate a live camera for development.
type ReplaySource struct {
	f       *os.File
	scanner *bufio.Scanner
	mode    pose.Mode
	line    int

	interval time.Duration
	lastEmit time.Time
}

// ReplayOption adjusts a ReplaySource.
type ReplayOption func(*ReplaySource)

// WithInterval paces delivery and marks the source as live. Used by the
// -dev flag to stand in for a camera.
func WithInterval(d time.Duration) ReplayOption {
	return func(s *ReplaySource) {
		s.interval = d
		s.mode = pose.ModeLive
	}
}

// NewReplaySource opens a JSONL capture for replay. The source is recorded
// mode unless an option says otherwise.
func NewReplaySource(path string, opts ...ReplayOption) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s := &ReplaySource{f: f, scanner: sc, mode: pose.ModeRecorded}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the next detection in the capture, or io.EOF at the end.
func (s *ReplaySource) Next(ctx context.Context) (pose.RawDetection, error) {
	if s.interval > 0 && !s.lastEmit.IsZero() {
		wait := s.interval - time.Since(s.lastEmit)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return pose.RawDetection{}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	for s.scanner.Scan() {
		s.line++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var det pose.RawDetection
		if err := json.Unmarshal(raw, &det); err != nil {
			return pose.RawDetection{}, fmt.Errorf("capture line %d: %w", s.line, err)
		}
		s.lastEmit = time.Now()
		return det, nil
	}
	if err := s.scanner.Err(); err != nil {
		return pose.RawDetection{}, err
	}
	return pose.RawDetection{}, io.EOF
}

// Close closes the underlying capture file.
func (s *ReplaySource) Close() error { return s.f.Close() }

// Mode reports recorded, or live when pacing is enabled.
func (s *ReplaySource) Mode() pose.Mode { return s.mode }
