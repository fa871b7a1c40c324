// Package engine orchestrates the analysis pipeline: it pulls raw
// detections from a source, normalises them, maintains the depth baseline,
// drives the rep state machine, applies the feedback rules at phase
// boundaries, and accumulates the session record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/formsight-data/form.report/internal/config"
	"github.com/formsight-data/form.report/internal/feedback"
	"github.com/formsight-data/form.report/internal/metrics"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/reps"
	"github.com/formsight-data/form.report/internal/session"
	"github.com/formsight-data/form.report/internal/source"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// stopReason tells the analysis goroutine why its context was cancelled.
type stopReason int

const (
	reasonNone stopReason = iota
	reasonStop
	reasonCancel
	reasonSwitch
)

// Options configures an Engine.
type Options struct {
	// Tuning supplies the pipeline thresholds. Nil uses built-in defaults.
	Tuning *config.TuningConfig

	// Store receives completed sessions. Nil disables persistence.
	Store *session.Store
}

// Engine runs one analysis session at a time. All pipeline state is owned
// by a single analysis goroutine; the exported methods only manage the
// lifecycle and read published values.
type Engine struct {
	tuning *config.TuningConfig
	store  *session.Store

	pub publisher

	mu     sync.Mutex
	state  State
	reason stopReason
	src    source.FrameSource
	sess   *session.Session
	runErr error
	cancel context.CancelFunc
	done   chan struct{}

	// machine and rules survive a camera switch so rep count and per-rep
	// dedup continue across sources within one session.
	machine *reps.Machine
	rules   *feedback.Engine
}

// New creates an idle engine.
func New(opts Options) *Engine {
	tun := opts.Tuning
	if tun == nil {
		tun = config.EmptyTuningConfig()
	}
	return &Engine{
		tuning: tun,
		store:  opts.Store,
		state:  StateIdle,
	}
}

// Start begins a session reading from src. The source's mode decides the
// drop policy and feedback timestamping. Start fails when a session is
// already in progress.
func (e *Engine) Start(src source.FrameSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning || e.state == StatePreparing {
		return &Error{Kind: KindInvalidState, Op: "start",
			Err: fmt.Errorf("engine is %s", e.state)}
	}

	e.state = StatePreparing
	e.sess = session.New(src.Mode(), time.Now())
	e.machine = reps.New(reps.Config{
		DepthDeadband:       e.tuning.GetDepthDeadband(),
		MinPhaseDwell:       e.tuning.GetMinPhaseDwell(),
		StandingTolerance:   e.tuning.GetStandingTolerance(),
		DetectionGapTimeout: e.tuning.GetDetectionGapTimeout(),
	})
	e.rules = feedback.NewEngine(feedback.Thresholds{
		MinDepthRatio:    e.tuning.GetMinDepthRatio(),
		MaxKneeValgusDeg: e.tuning.GetMaxKneeValgusDeg(),
		MaxTorsoAngleDeg: e.tuning.GetMaxTorsoAngleDeg(),
		HeelLiftEpsilon:  e.tuning.GetHeelLiftEpsilon(),
		MinAscentSeconds: e.tuning.GetMinAscentSeconds(),
		MaxAscentSeconds: e.tuning.GetMaxAscentSeconds(),
	}, src.Mode())
	e.runErr = nil
	e.reason = reasonNone
	e.pub.Clear()

	Opsf("session %s starting (%s)", e.sess.ID, src.Mode())
	e.attachLocked(src)
	return nil
}

// attachLocked wires src to a fresh analysis goroutine. Callers hold e.mu.
func (e *Engine) attachLocked(src source.FrameSource) {
	ctx, cancel := context.WithCancel(context.Background())
	e.src = src
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateRunning
	go e.run(ctx, src, e.done)
}

// Stop ends the session gracefully: the summary is computed and, when a
// store is configured, the session is persisted.
func (e *Engine) Stop() error {
	return e.interrupt("stop", reasonStop)
}

// Cancel abandons the session: no summary, nothing persisted.
func (e *Engine) Cancel() error {
	return e.interrupt("cancel", reasonCancel)
}

func (e *Engine) interrupt(op string, r stopReason) error {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return &Error{Kind: KindInvalidState, Op: op,
			Err: fmt.Errorf("engine is %s", state)}
	}
	e.reason = r
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

// SwitchSource swaps the live camera mid-session. The session, rep count,
// and per-rep feedback dedup continue; the baseline and smoothing window
// restart because the new camera's geometry is unrelated to the old one.
// The published snapshot is cleared until the new source produces frames.
func (e *Engine) SwitchSource(src source.FrameSource) error {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return &Error{Kind: KindInvalidState, Op: "switch",
			Err: fmt.Errorf("engine is %s", state)}
	}
	if e.sess.Mode != pose.ModeLive {
		e.mu.Unlock()
		return &Error{Kind: KindInvalidState, Op: "switch",
			Err: errors.New("source switching only applies to live sessions")}
	}
	e.reason = reasonSwitch
	e.state = StatePreparing
	cancel, done, old := e.cancel, e.done, e.src
	e.mu.Unlock()

	cancel()
	<-done

	e.pub.Clear()
	if err := old.Close(); err != nil {
		Opsf("closing previous source: %v", err)
	}

	e.mu.Lock()
	e.reason = reasonNone
	Diagf("session %s switched source", e.sess.ID)
	e.attachLocked(src)
	e.mu.Unlock()
	return nil
}

// Analyze runs a recorded source to completion and returns the finished
// session. It is the synchronous entry point used by the batch CLI.
func (e *Engine) Analyze(ctx context.Context, src source.FrameSource) (*session.Session, error) {
	if err := e.Start(src); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		_ = e.Cancel()
		return nil, ctx.Err()
	case <-e.Done():
	}
	if err := e.Err(); err != nil {
		return nil, err
	}
	return e.Session(), nil
}

// run is the analysis goroutine: one per attached source.
func (e *Engine) run(ctx context.Context, src source.FrameSource, done chan struct{}) {
	defer close(done)

	sess, machine, rules := e.sess, e.machine, e.rules
	windowSize := e.tuning.GetMetricWindowFrames()
	window := make([]pose.PoseFrame, 0, windowSize)
	adapter := pose.NewAdapter(pose.AdapterConfig{
		ConfidenceFloor: e.tuning.GetJointConfidenceFloor(),
		Mode:            src.Mode(),
	})

	var baseline metrics.Baseline
	var minInterval time.Duration
	if src.Mode() == pose.ModeLive {
		if rate := e.tuning.GetMaxFrameRate(); rate > 0 {
			minInterval = time.Duration(float64(time.Second) / rate)
		}
	}
	var lastProcessed time.Time
	var lastItems []feedback.Item
	throttled := 0

	for {
		det, err := src.Next(ctx)
		if err != nil {
			e.finish(src, err)
			return
		}

		frame, ok := adapter.Normalise(det)
		if !ok {
			continue
		}
		// Live drop policy: frames arriving faster than the budget are
		// skipped whole, never queued.
		if minInterval > 0 && !lastProcessed.IsZero() && frame.TS.Sub(lastProcessed) < minInterval {
			throttled++
			continue
		}
		lastProcessed = frame.TS

		if len(window) == windowSize {
			copy(window, window[1:])
			window = window[:windowSize-1]
		}
		window = append(window, frame)

		if !baseline.OK {
			b, captured := metrics.CaptureBaseline(window)
			if !captured || len(window) < windowSize {
				// Lifter not reliably visible yet; guide them into frame.
				e.pub.Publish(&Snapshot{
					SessionID: sess.ID,
					Mode:      sess.Mode,
					Phase:     machine.Phase().String(),
					RepCount:  machine.RepCount(),
					Feedback:  []feedback.Item{rules.InstructionItem(frame.TS)},
					FrameTS:   frame.TS,
					Throttled: throttled,
				})
				continue
			}
			baseline = b
			Diagf("session %s baseline captured hipY=%.3f", sess.ID, b.HipY)
		}

		// The baseline drifts with the lifter only while they stand;
		// mid-rep the anchor must hold still.
		if machine.Phase() == reps.Standing {
			baseline = baseline.Reanchor(&frame, e.tuning.GetBaselineAlpha())
		}

		depth := metrics.Depth(window, baseline)
		snap := metrics.Evaluate(window, baseline)
		res := machine.Step(frame.TS, depth, snap)

		var items []feedback.Item
		if res.Transitioned {
			Tracef("session %s %s -> %s at %s", sess.ID, res.From, res.To, frame.TS.Format(time.RFC3339Nano))
			if res.From == reps.Standing && res.To == reps.Descending {
				rules.BeginRep(machine.RepCount() + 1)
			}
		}
		if res.BottomSnapshot != nil {
			items = append(items, rules.OnBottom(res.BottomSnapshot, res.BottomTS)...)
		}
		if res.GapStarted {
			Diagf("session %s detection gap during %s", sess.ID, machine.Phase())
			items = append(items, rules.OnDetectionGap(frame.TS)...)
		}
		if res.Rep != nil {
			sess.AddRep(res.Rep)
			items = append(items, rules.OnRepComplete(res.Rep)...)
			Diagf("session %s rep %d complete, ascent %.2fs", sess.ID, res.Rep.Index, res.Rep.AscentSeconds())
		}
		if len(items) > 0 {
			sess.AddFeedback(items...)
			lastItems = items
		}

		e.pub.Publish(&Snapshot{
			SessionID:   sess.ID,
			Mode:        sess.Mode,
			Phase:       machine.Phase().String(),
			RepCount:    machine.RepCount(),
			Depth:       depth,
			Feedback:    lastItems,
			FrameTS:     frame.TS,
			GapEpisodes: machine.GapEpisodes(),
			Throttled:   throttled,
		})
	}
}

// finish resolves the session outcome after the analysis loop exits.
func (e *Engine) finish(src source.FrameSource, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reason == reasonSwitch {
		// The session continues on another source; nothing to finalize.
		return
	}

	now := time.Now()
	switch {
	case errors.Is(cause, io.EOF),
		errors.Is(cause, context.Canceled) && e.reason == reasonStop:
		e.sess.Summary = session.Aggregate(e.sess.Feedback)
		e.sess.Finish(session.StatusCompleted, now)
		e.state = StateCompleted
		Opsf("session %s completed: %d reps, %d summary items",
			e.sess.ID, e.sess.RepCount(), len(e.sess.Summary))
		if e.store != nil {
			if err := e.store.SaveSession(e.sess); err != nil {
				Opsf("persist session %s: %v", e.sess.ID, err)
			}
		}

	case errors.Is(cause, context.Canceled):
		// User cancellation is a normal outcome, not an error.
		e.sess.Finish(session.StatusStopped, now)
		e.state = StateStopped
		Opsf("session %s cancelled after %d reps", e.sess.ID, e.sess.RepCount())

	default:
		e.sess.Finish(session.StatusFailed, now)
		e.runErr = &Error{Kind: KindSourceFatal, Op: "run", Err: cause}
		e.state = StateStopped
		Opsf("session %s failed: %v", e.sess.ID, cause)
	}

	if err := src.Close(); err != nil {
		Opsf("closing source: %v", err)
	}
}

// UpdateTuning validates and merges a partial tuning update. Updates are
// rejected while a session is in progress; new values apply from the next
// Start.
func (e *Engine) UpdateTuning(partial *config.TuningConfig) error {
	if err := partial.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning || e.state == StatePreparing {
		return &Error{Kind: KindInvalidState, Op: "params",
			Err: errors.New("tuning cannot change during a session")}
	}
	e.tuning.Merge(partial)
	return nil
}

// Tuning returns a copy of the current tuning configuration.
func (e *Engine) Tuning() config.TuningConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.tuning
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the terminal error of the last session, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runErr
}

// Done returns a channel closed when the current analysis goroutine exits.
// Idle engines return a closed channel.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.done
}

// Snapshot returns the latest published live view, or nil when none.
func (e *Engine) Snapshot() *Snapshot { return e.pub.Latest() }

// Session returns the finished session record, or nil while one is still
// in progress. The returned value is frozen and safe to read.
func (e *Engine) Session() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || !e.sess.Status.Terminal() {
		return nil
	}
	return e.sess
}
