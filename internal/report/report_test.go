package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formsight-data/form.report/internal/feedback"
	"github.com/formsight-data/form.report/internal/metrics"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/reps"
	"github.com/formsight-data/form.report/internal/session"
)

func reportSession(t *testing.T) *session.Session {
	t.Helper()
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	sess := session.New(pose.ModeRecorded, started)

	for i := 1; i <= 2; i++ {
		sess.AddRep(&reps.RepEvent{
			Index: i,
			BottomMetrics: metrics.Metrics{
				DepthRatio: metrics.Value{V: 1.02, OK: true},
			},
			CompletionMetrics: metrics.Metrics{
				AscentSeconds: metrics.Value{V: 0.8, OK: true},
			},
			CompletedTS: started.Add(time.Duration(i) * 5 * time.Second),
		})
	}
	sess.AddFeedback(feedback.NewItem(feedback.TypeDepth, pose.ModeRecorded, 1, started.Add(2*time.Second)))
	sess.Finish(session.StatusCompleted, started.Add(time.Minute))
	sess.Summary = session.Aggregate(sess.Feedback)
	return sess
}

func TestRenderProducesCharts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, reportSession(t)))

	out := buf.String()
	assert.Contains(t, out, "echarts", "charts are embedded")
	assert.Contains(t, out, "rep 1")
	assert.Contains(t, out, "rep 2")
	assert.Contains(t, out, "Squat deeper", "summary table carries the feedback message")
	assert.Contains(t, out, "2 reps")
}

func TestRenderRejectsRunningSession(t *testing.T) {
	t.Parallel()

	sess := session.New(pose.ModeLive, time.Now())
	err := Render(&bytes.Buffer{}, sess)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "running"))
}

func TestRenderEmptySummary(t *testing.T) {
	t.Parallel()

	sess := session.New(pose.ModeLive, time.Now())
	sess.Finish(session.StatusStopped, time.Now())

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sess))
	assert.Contains(t, buf.String(), "No feedback recorded")
}
