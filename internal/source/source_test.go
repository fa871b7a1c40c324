package source

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsight-data/form.report/internal/pose"
)

func det(sec int64) pose.RawDetection {
	return pose.RawDetection{
		TS: time.Unix(sec, 0).UTC(),
		Joints: []pose.RawJoint{
			{Name: "left_hip", X: 0.45, Y: 0.5, Confidence: 0.9},
		},
	}
}

func TestLiveSourceDeliversFreshest(t *testing.T) {
	t.Parallel()

	s := NewLiveSource()
	s.Push(det(1))
	s.Push(det(2))
	s.Push(det(3))

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(3, 0).UTC(), got.TS, "consumer sees the freshest frame")
	assert.Equal(t, 2, s.Dropped(), "replaced frames are counted")
}

func TestLiveSourceBlocksUntilPush(t *testing.T) {
	t.Parallel()

	s := NewLiveSource()
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Push(det(7))
	}()

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(7, 0).UTC(), got.TS)
}

func TestLiveSourceCancelledNext(t *testing.T) {
	t.Parallel()

	s := NewLiveSource()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLiveSourceCloseDrainsPending(t *testing.T) {
	t.Parallel()

	s := NewLiveSource()
	s.Push(det(1))
	require.NoError(t, s.Close())

	got, err := s.Next(context.Background())
	require.NoError(t, err, "pending frame delivered after Close")
	assert.Equal(t, time.Unix(1, 0).UTC(), got.TS)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	s.Push(det(2)) // push after close is a no-op
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSliceSource(t *testing.T) {
	t.Parallel()

	s := NewSliceSource(pose.ModeRecorded, []pose.RawDetection{det(1), det(2)})
	assert.Equal(t, pose.ModeRecorded, s.Mode())

	ctx := context.Background()
	first, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1, 0).UTC(), first.TS)

	_, err = s.Next(ctx)
	require.NoError(t, err)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func writeCapture(t *testing.T, dets []pose.RawDetection) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := json.NewEncoder(f)
	for _, d := range dets {
		require.NoError(t, enc.Encode(d))
	}
	require.NoError(t, f.Close())
	return path
}

func TestReplaySourceReadsJSONL(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, []pose.RawDetection{det(1), det(2), det(3)})
	s, err := NewReplaySource(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, pose.ModeRecorded, s.Mode())

	ctx := context.Background()
	var stamps []int64
	for {
		d, err := s.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		stamps = append(stamps, d.TS.Unix())
	}
	assert.Equal(t, []int64{1, 2, 3}, stamps)
}

func TestReplaySourceBadLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"ts\":\"2026-01-02T15:04:05Z\"}\nnot json\n"), 0o644))

	s, err := NewReplaySource(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Next(ctx)
	require.NoError(t, err)

	_, err = s.Next(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReplaySourceIntervalIsLive(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, []pose.RawDetection{det(1), det(2)})
	s, err := NewReplaySource(path, WithInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, pose.ModeLive, s.Mode())

	ctx := context.Background()
	start := time.Now()
	_, err = s.Next(ctx)
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond,
		"second frame waits out the pacing interval")
}
