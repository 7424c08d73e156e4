// Package web provides the HTTP status page and sensor test API for the
// estop-sensor daemon.
package web

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sweeney/estop-sensor/internal/pins"
	"github.com/sweeney/estop-sensor/internal/session"
	"github.com/sweeney/estop-sensor/internal/status"
)

// Tester runs sensor test probes. *session.Session satisfies it.
type Tester interface {
	Start(ctx context.Context, cfg pins.Config) (*session.Probe, error)
	Cancel() bool
	State() session.State
}

// Deps are the collaborators the server reads from and drives.
type Deps struct {
	Tracker *status.Tracker
	Tester  Tester
	// Printing reports whether a print job is running. Optional.
	Printing session.PrintState
	// Limiter throttles POST /api/test. Optional.
	Limiter *rate.Limiter
	// Results receives every finished API test. Optional.
	Results func(session.Outcome)
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// New creates a Server listening on addr.
func New(addr string, d Deps) *Server {
	s := &Server{deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/test", s.handleTest)
	mux.HandleFunc("DELETE /api/test", s.handleCancel)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		zap.S().Warnf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	resp := StateResponse{
		Printing: snap.Printing,
		Enabled:  snap.Config.Enabled(),
		Session:  string(session.StateIdle),
	}
	if s.deps.Printing != nil {
		resp.Printing = s.deps.Printing.Printing()
	}
	if s.deps.Tester != nil {
		resp.Session = string(s.deps.Tester.State())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, wiring, pin, err := parsePin(q.Get("gpio_mode"), q.Get("pin"), q.Get("power"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
		return
	}
	v := pins.Validate(mode, pin, wiring)
	writeJSON(w, http.StatusOK, VerdictResponse{
		Legal:         v.Legal,
		Hazard:        string(v.Hazard),
		MaxAllowedPin: v.MaxAllowedPin,
		Warning:       v.Warning(),
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter != nil && !s.deps.Limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, errRateLimited, msgRateLimited)
		return
	}

	var req TestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
		return
	}
	cfg, err := req.config()
	if err != nil {
		writeTestError(w, err)
		return
	}

	// The probe is bounded by its own window; a client hanging up does not
	// cancel it.
	p, err := s.deps.Tester.Start(context.WithoutCancel(r.Context()), cfg)
	if err != nil {
		writeTestError(w, err)
		return
	}
	s.deps.Tracker.SetSession(session.StateInFlight)

	select {
	case <-p.Done():
	case <-r.Context().Done():
		go s.reportWhenDone(p)
		return
	}

	out, _ := p.Outcome()
	s.report(out)
	if out.Err != nil {
		writeTestError(w, out.Err)
		return
	}
	writeJSON(w, http.StatusOK, newTestResponse(out))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: s.deps.Tester.Cancel()})
}

func (s *Server) reportWhenDone(p *session.Probe) {
	<-p.Done()
	out, _ := p.Outcome()
	s.report(out)
}

func (s *Server) report(out session.Outcome) {
	if out.Err != nil {
		zap.S().Infof("web: sensor test %s failed: %v", out.ID, out.Err)
	} else {
		zap.S().Infof("web: sensor test %s triggered=%t", out.ID, out.Reading.Triggered)
	}
	if s.deps.Results != nil {
		s.deps.Results(out)
	}
}
