// Package api exposes the analysis engine over HTTP: session lifecycle
// control, the live snapshot poll, stored session retrieval, and runtime
// tuning.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/formsight-data/form.report/internal/config"
	"github.com/formsight-data/form.report/internal/engine"
	"github.com/formsight-data/form.report/internal/httputil"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/report"
	"github.com/formsight-data/form.report/internal/security"
	"github.com/formsight-data/form.report/internal/session"
	"github.com/formsight-data/form.report/internal/source"
)

// Options configures a Server.
type Options struct {
	// DevCapture, when set, replays this JSONL file as a paced fake camera
	// for live sessions instead of waiting on /ingest pushes.
	DevCapture string

	// CaptureDir, when set, restricts recorded-session capture paths to
	// this directory. Empty means any readable path is accepted.
	CaptureDir string
}

// Server routes HTTP requests to one engine. Store may be nil when
// persistence is disabled.
type Server struct {
	engine *engine.Engine
	store  *session.Store
	opts   Options

	// live is the ingest target of the current live session.
	liveMu sync.Mutex
	live   *source.LiveSource
}

// NewServer creates an API server over the given engine and store.
func NewServer(eng *engine.Engine, store *session.Store, opts Options) *Server {
	return &Server{engine: eng, store: store, opts: opts}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Form Report Server!"))
}

// ServeMux returns the API routing table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/start", s.startSession)
	mux.HandleFunc("/session/stop", s.stopSession)
	mux.HandleFunc("/session/cancel", s.cancelSession)
	mux.HandleFunc("/session/switch", s.switchSource)
	mux.HandleFunc("/session/live", s.liveSnapshot)
	mux.HandleFunc("/state", s.engineState)
	mux.HandleFunc("/ingest", s.ingest)
	mux.HandleFunc("/sessions", s.listSessions)
	mux.HandleFunc("/sessions/", s.getSession)
	mux.HandleFunc("/params", s.params)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch engine.KindOf(err) {
	case engine.KindInvalidState:
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
	case engine.KindSourceUnavailable:
		httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
	default:
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

type startRequest struct {
	Mode pose.Mode `json:"mode"`
	Path string    `json:"path,omitempty"`
}

// newLiveSource builds the source for a live session: a push-fed source in
// production, a paced capture replay in dev mode.
func (s *Server) newLiveSource() (source.FrameSource, error) {
	if s.opts.DevCapture != "" {
		src, err := source.NewReplaySource(s.opts.DevCapture, source.WithInterval(33*time.Millisecond))
		if err != nil {
			return nil, &engine.Error{Kind: engine.KindSourceUnavailable, Op: "start", Err: err}
		}
		return src, nil
	}
	ls := source.NewLiveSource()
	s.liveMu.Lock()
	s.live = ls
	s.liveMu.Unlock()
	return ls, nil
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("bad request body: %v", err))
		return
	}

	var src source.FrameSource
	var err error
	switch req.Mode {
	case pose.ModeLive:
		src, err = s.newLiveSource()
	case pose.ModeRecorded:
		if req.Path == "" {
			httputil.BadRequest(w, "recorded sessions need a capture path")
			return
		}
		if s.opts.CaptureDir != "" {
			if verr := security.ValidatePathWithinDirectory(req.Path, s.opts.CaptureDir); verr != nil {
				httputil.BadRequest(w, verr.Error())
				return
			}
		}
		src, err = source.NewReplaySource(req.Path)
		if err != nil {
			err = &engine.Error{Kind: engine.KindSourceUnavailable, Op: "start", Err: err}
		}
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if err := s.engine.Start(src); err != nil {
		src.Close()
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(s.engine.State())})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.Stop(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.engine.Session())
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.Cancel(); err != nil {
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(s.engine.State())})
}

func (s *Server) switchSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	src, err := s.newLiveSource()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.engine.SwitchSource(src); err != nil {
		src.Close()
		s.writeEngineError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(s.engine.State())})
}

func (s *Server) liveSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.engine.Snapshot()
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) engineState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := map[string]string{"state": string(s.engine.State())}
	if err := s.engine.Err(); err != nil {
		resp["error"] = err.Error()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ingest receives one raw detection from the pose detector and feeds the
// current live session. Detections arriving with no live session running
// are acknowledged and dropped.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var det pose.RawDetection
	if err := json.NewDecoder(r.Body).Decode(&det); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("bad detection: %v", err))
		return
	}

	s.liveMu.Lock()
	ls := s.live
	s.liveMu.Unlock()
	if ls != nil {
		ls.Push(det)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			limit = v
		}
	}
	records, err := s.store.ListSessions(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("listing sessions: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

// getSession serves /sessions/{id} and /sessions/{id}/report.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		httputil.BadRequest(w, "missing session id")
		return
	}

	sess, err := s.store.GetSession(id)
	if errors.Is(err, session.ErrNotFound) {
		httputil.NotFound(w, "no such session")
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("loading session: %v", err))
		return
	}

	switch sub {
	case "":
		httputil.WriteJSON(w, http.StatusOK, sess)
	case "report":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.Render(w, sess); err != nil {
			engine.Opsf("rendering report for %s: %v", id, err)
		}
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown resource %q", sub))
	}
}

// params serves the tuning configuration: GET returns it, PATCH merges a
// partial update (rejected while a session is running).
func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tuning := s.engine.Tuning()
		httputil.WriteJSON(w, http.StatusOK, &tuning)
	case http.MethodPatch:
		var partial config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("bad params body: %v", err))
			return
		}
		if err := s.engine.UpdateTuning(&partial); err != nil {
			if engine.KindOf(err) == engine.KindInvalidState {
				s.writeEngineError(w, err)
				return
			}
			httputil.BadRequest(w, err.Error())
			return
		}
		tuning := s.engine.Tuning()
		httputil.WriteJSON(w, http.StatusOK, &tuning)
	default:
		httputil.MethodNotAllowed(w)
	}
}
