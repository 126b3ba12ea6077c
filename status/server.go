// Package status serves the engine's diagnostics over HTTP: a JSON state
// view, a live event stream over websocket, a region preview and prometheus
// metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soocke/pixel-cue/config"
	"github.com/soocke/pixel-cue/domain/capture"
	"github.com/soocke/pixel-cue/domain/detect"
	"github.com/soocke/pixel-cue/domain/trigger"
)

const (
	writeTimeout     = 2 * time.Second
	selectionTimeout = 2 * time.Second
	sendBuffer       = 16
	previewMaxW      = 480
	previewMaxH      = 270
	shutdownGrace    = 3 * time.Second
)

// localOrigins are the browser origins allowed to open the event stream.
var localOrigins = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"}

// Detector is the scheduler surface the server reads and toggles.
type Detector interface {
	State() detect.DetectorState
	SetEnabled(on bool)
}

// DispatchStats reports trigger dispatcher counters.
type DispatchStats interface {
	Stats() trigger.Stats
}

// CaptureStats reports snapshotter counters.
type CaptureStats interface {
	Stats() capture.CaptureStats
}

// Selection hands the overlay to a region selector and applies its result.
type Selection interface {
	BeginManualSelection(ctx context.Context) (release func(), err error)
	ApplyRegion(r capture.Region) error
}

// Deps wires a Server. Every field but Detector is optional.
type Deps struct {
	Detector  Detector
	Dispatch  DispatchStats
	Capture   CaptureStats
	Snapshots detect.Snapshotter
	Config    func() *config.Config
	Gatherer  prometheus.Gatherer
	Selection Selection
	Logger    *slog.Logger
}

// StateView is the JSON shape of /api/state.
type StateView struct {
	Enabled     bool      `json:"enabled"`
	Inert       bool      `json:"inert"`
	Presence    string    `json:"presence"`
	MissStreak  uint32    `json:"miss_streak"`
	TickCount   uint32    `json:"tick_count"`
	CachedScale *float64  `json:"cached_scale,omitempty"`
	Ticks       uint64    `json:"ticks"`
	Triggers    uint64    `json:"triggers"`
	DeepScans   uint64    `json:"deep_scans"`
	LastFound   bool      `json:"last_found"`
	LastVia     string    `json:"last_via"`
	LastTick    time.Time `json:"last_tick"`
	Selecting   bool      `json:"selecting"`

	Dispatch *trigger.Stats       `json:"dispatch,omitempty"`
	Capture  *capture.CaptureStats `json:"capture,omitempty"`
}

// EventMessage is pushed to websocket clients on edges and presence changes.
type EventMessage struct {
	Type     string    `json:"type"`
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
	Presence string    `json:"presence"`
	Scale    float64   `json:"scale,omitempty"`
	Via      string    `json:"via,omitempty"`
	Accepted bool      `json:"accepted,omitempty"`
}

// RegionRequest is the body of PUT /api/region.
type RegionRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// client is one websocket subscriber. A single writer goroutine drains send,
// so events arrive in the order they were observed.
type client struct {
	conn   *websocket.Conn
	send   chan EventMessage
	kicked atomic.Bool
}

// kick closes the subscriber without blocking the caller. It reports false
// when the client was already being closed.
func (c *client) kick(reason string) bool {
	if c.kicked.Swap(true) {
		return false
	}
	go func() { _ = c.conn.Close(websocket.StatusPolicyViolation, reason) }()
	return true
}

// Server handles HTTP and websocket connections.
type Server struct {
	d      Deps
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	selMu   sync.Mutex
	release func()
	pending bool

	lastPresent atomic.Bool
}

var _ detect.Observer = (*Server)(nil)

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{d: d, logger: logger, clients: make(map[*client]struct{})}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/enable", localOnly(s.handleToggle(true)))
	mux.HandleFunc("POST /api/disable", localOnly(s.handleToggle(false)))
	mux.HandleFunc("POST /api/selection", localOnly(s.handleBeginSelection))
	mux.HandleFunc("DELETE /api/selection", localOnly(s.handleEndSelection))
	mux.HandleFunc("PUT /api/region", localOnly(s.handleRegion))
	mux.HandleFunc("GET /api/preview.png", s.handlePreview)
	if s.d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.d.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("status server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Snapshot builds the current StateView.
func (s *Server) Snapshot() StateView {
	st := s.d.Detector.State()
	v := StateView{
		Enabled:    st.Enabled,
		Inert:      st.Inert,
		Presence:   st.PresenceState().String(),
		MissStreak: st.MissStreak,
		TickCount:  st.TickCount,
		Ticks:      st.Ticks,
		Triggers:   st.Triggers,
		DeepScans:  st.DeepScans,
		LastFound:  st.LastFound,
		LastVia:    st.LastVia.String(),
		LastTick:   st.LastTick,
		Selecting:  s.selecting(),
	}
	if st.HasCache {
		scale := st.CachedScale
		v.CachedScale = &scale
	}
	if s.d.Dispatch != nil {
		ds := s.d.Dispatch.Stats()
		v.Dispatch = &ds
	}
	if s.d.Capture != nil {
		cs := s.d.Capture.Stats()
		v.Capture = &cs
	}
	return v
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Snapshot())
}

func (s *Server) handleToggle(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.d.Detector.SetEnabled(on)
		s.logger.Info("detection toggled", "enabled", on, "remote", r.RemoteAddr)
		writeJSON(w, map[string]bool{"enabled": on})
	}
}

func (s *Server) selecting() bool {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	return s.release != nil || s.pending
}

func (s *Server) handleBeginSelection(w http.ResponseWriter, r *http.Request) {
	if s.d.Selection == nil {
		http.Error(w, "selection unavailable", http.StatusNotImplemented)
		return
	}
	s.selMu.Lock()
	if s.release != nil || s.pending {
		s.selMu.Unlock()
		http.Error(w, "selection already in progress", http.StatusConflict)
		return
	}
	s.pending = true
	s.selMu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), selectionTimeout)
	defer cancel()
	release, err := s.d.Selection.BeginManualSelection(ctx)
	s.selMu.Lock()
	s.pending = false
	if err == nil {
		s.release = release
	}
	s.selMu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"selecting": true})
}

func (s *Server) handleEndSelection(w http.ResponseWriter, r *http.Request) {
	if !s.endSelection() {
		http.Error(w, "no selection in progress", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]bool{"selecting": false})
}

// endSelection releases a pending selection and reports whether one existed.
func (s *Server) endSelection() bool {
	s.selMu.Lock()
	release := s.release
	s.release = nil
	s.selMu.Unlock()
	if release == nil {
		return false
	}
	release()
	return true
}

// handleRegion applies a picked region and ends any selection in progress.
func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	if s.d.Selection == nil {
		http.Error(w, "selection unavailable", http.StatusNotImplemented)
		return
	}
	var req RegionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		http.Error(w, "bad region: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := s.d.Selection.ApplyRegion(capture.Region{X: req.X, Y: req.Y, Width: req.Width, Height: req.Height})
	switch {
	case errors.Is(err, capture.ErrEmptyRegion):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.endSelection()
	writeJSON(w, req)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// localOnly rejects browser requests from pages outside this machine, so a
// foreign site cannot toggle detection through a form post.
func localOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isLocalOrigin(r.Header.Get("Origin")) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

// isLocalOrigin accepts a missing Origin, as sent by non-browser clients.
func isLocalOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.d.Snapshots == nil || s.d.Config == nil {
		http.Error(w, "preview unavailable", http.StatusNotImplemented)
		return
	}
	reg := s.d.Config().Region
	frame, err := s.d.Snapshots.Snapshot(capture.Region{X: reg.X, Y: reg.Y, Width: reg.Width, Height: reg.Height})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	img := scaleToFit(frame.Image, previewMaxW, previewMaxH)
	data, err := encodePNG(img)
	s.d.Snapshots.Release(frame)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: localOrigins})
	if err != nil {
		s.logger.Warn("websocket accept error", "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Events observed while the snapshot is written wait in send.
	c := &client{conn: conn, send: make(chan EventMessage, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()
	s.logger.Info("websocket connected", "remote", r.RemoteAddr)
	if err := wsjson.Write(ctx, conn, s.Snapshot()); err != nil {
		return
	}
	go s.writeLoop(ctx, c)

	// Clients only listen; reading keeps control frames flowing until close.
	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			s.logger.Debug("websocket closed", "error", err)
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				if c.kick("write failed") {
					s.logger.Debug("websocket write failed", "error", err)
				}
				return
			}
		}
	}
}

// Observe broadcasts rising edges and presence changes. It never blocks
// the scheduler.
func (s *Server) Observe(r detect.TickReport, st detect.DetectorState) {
	if r.Skipped {
		return
	}
	present := st.Present
	changed := s.lastPresent.Swap(present) != present
	if !r.Fired && !changed {
		return
	}
	msg := EventMessage{Type: "presence", Tick: r.Tick, At: r.At, Presence: r.State.String()}
	if r.Fired {
		msg.Type = "edge"
		msg.Scale = r.Scale
		msg.Via = r.Via.String()
		msg.Accepted = r.Dispatched
	}
	s.broadcast(msg)
}

func (s *Server) broadcast(msg EventMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			if c.kick("too slow") {
				s.logger.Warn("websocket client too slow, closing")
			}
		}
	}
}
