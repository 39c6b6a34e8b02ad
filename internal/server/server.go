// Package server exposes the control API and the live action feed over
// HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/hotpath/internal/actionlog"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator"
	"github.com/GriffinCanCode/hotpath/internal/orchestrator/history"
	"github.com/GriffinCanCode/hotpath/internal/platform"
	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/rules"
	"github.com/GriffinCanCode/hotpath/internal/trace"
)

// Controller is the loop surface the server drives.
type Controller interface {
	LoadRules(ctx context.Context, data []byte) ([]error, error)
	Rules() []rules.Rule
	Reset()
	ConnectDisplay(ctx context.Context, token platform.Handle, srcW, srcH uint32) error
	DisconnectDisplay(ctx context.Context) error
	ActionEvents() <-chan history.Event
	ScreenText() string
	ScreenImage() []byte
	Describe(ctx context.Context) (string, error)
	Status() orchestrator.Status
}

// ActionLog answers action history queries.
type ActionLog interface {
	Recent(ctx context.Context, session uuid.UUID, limit int) ([]actionlog.Entry, error)
	Session() uuid.UUID
}

// Message types.
type Message struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

// ActionMessage carries one fired action to feed subscribers.
type ActionMessage struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	router.Action
}

type DescriptionMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type StatusMessage struct {
	Type   string              `json:"type"`
	Status orchestrator.Status `json:"status"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-RateLimitWindow)
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctl     Controller
	log     ActionLog
	origins []string

	mu sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a server and starts broadcasting actions. log may be nil.
func New(ctl Controller, log ActionLog, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{
		ctl:        ctl,
		log:        log,
		origins:    origins,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}
	go s.broadcastActions()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/rules", s.handleGetRules)
	mux.HandleFunc("POST /api/rules", s.handleLoadRules)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/display", s.handleConnectDisplay)
	mux.HandleFunc("DELETE /api/display", s.handleDisconnectDisplay)
	mux.HandleFunc("GET /api/actions", s.handleActions)
	mux.HandleFunc("GET /api/capture", s.handleCapture)
	mux.HandleFunc("POST /api/describe", s.handleDescribe)

	return s.corsMiddleware(trace.Middleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.origins {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return s.origins[0]
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow(time.Now()) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			ctx = trace.WithContext(ctx, tc)
		}
		s.handleCommand(ctx, conn, base.Type)
	}
}

func (s *Server) handleCommand(ctx context.Context, conn *websocket.Conn, kind string) {
	switch kind {
	case "ping":
		s.write(ctx, conn, Message{Type: "pong"})
	case "status":
		s.write(ctx, conn, StatusMessage{Type: "status", Status: s.ctl.Status()})
	case "reset":
		s.ctl.Reset()
		s.write(ctx, conn, Message{Type: "reset"})
	case "describe":
		text, err := s.ctl.Describe(ctx)
		if err != nil {
			s.write(ctx, conn, errorMessage(err))
			return
		}
		s.write(ctx, conn, DescriptionMessage{Type: "description", Text: text})
	default:
		s.write(ctx, conn, ErrorMessage{Type: "error", Message: "unknown message type " + strconv.Quote(kind)})
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg any) {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, msg)
}

func (s *Server) broadcastActions() {
	for evt := range s.ctl.ActionEvents() {
		msg := ActionMessage{Type: "action", Source: evt.Source, Action: evt.Action}

		s.mu.RLock()
		for conn := range s.conns {
			go s.write(context.Background(), conn, msg)
		}
		s.mu.RUnlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(rules.Serialize(s.ctl.Rules()))
}

type loadRulesResponse struct {
	Rules   int      `json:"rules"`
	Dropped []string `json:"dropped"`
}

func (s *Server) handleLoadRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRulesBytes))
	if err != nil {
		writeError(w, apperr.Wrap(err, apperr.CodeInvalidArgument, "read rules body"))
		return
	}
	warnings, err := s.ctl.LoadRules(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := loadRulesResponse{Rules: len(s.ctl.Rules()), Dropped: make([]string, 0, len(warnings))}
	for _, warn := range warnings {
		resp.Dropped = append(resp.Dropped, warn.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctl.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type displayRequest struct {
	Token  string `json:"token"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

func (s *Server) handleConnectDisplay(w http.ResponseWriter, r *http.Request) {
	var req displayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(err, apperr.CodeInvalidArgument, "decode display request"))
		return
	}
	token, err := strconv.ParseUint(req.Token, 0, 64)
	if err != nil || token == 0 {
		writeError(w, apperr.Newf(apperr.CodeInvalidArgument, "bad display token %q", req.Token))
		return
	}
	if req.Width == 0 || req.Height == 0 {
		writeError(w, apperr.New(apperr.CodeInvalidArgument, "display size must be positive"))
		return
	}
	handle := platform.NewHandle(platform.KindDisplayToken, uintptr(token))
	if err := s.ctl.ConnectDisplay(r.Context(), handle, req.Width, req.Height); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (s *Server) handleDisconnectDisplay(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.DisconnectDisplay(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

type actionEntry struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	CreatedAt time.Time     `json:"created_at"`
	Action    router.Action `json:"action"`
}

// handleActions lists logged actions. session is "current" (default), "all"
// or a session id.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, apperr.New(apperr.CodeUnavailable, "action log disabled"))
		return
	}
	q := r.URL.Query()
	limit := DefaultActionLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperr.Newf(apperr.CodeInvalidArgument, "bad limit %q", v))
			return
		}
		limit = min(n, MaxActionLimit)
	}

	session := s.log.Session()
	switch v := q.Get("session"); v {
	case "", "current":
	case "all":
		session = uuid.Nil
	default:
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, apperr.Wrapf(err, apperr.CodeInvalidArgument, "bad session %q", v))
			return
		}
		session = id
	}

	entries, err := s.log.Recent(r.Context(), session, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]actionEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, actionEntry{
			ID:        e.ID.String(),
			SessionID: e.SessionID.String(),
			CreatedAt: e.CreatedAt,
			Action:    e.Action,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "png" {
		img := s.ctl.ScreenImage()
		if img == nil {
			writeError(w, apperr.New(apperr.CodeNotFound, "no frame captured"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
		return
	}

	text := s.ctl.ScreenText()
	if len(text) > TextPreviewLimit {
		text = text[:TextPreviewLimit] + "..."
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":        "Screen processed",
		"extracted_text": text,
	})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	text, err := s.ctl.Describe(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	msg := errorMessage(err)
	writeJSON(w, httpStatus(err), msg)
}

func errorMessage(err error) ErrorMessage {
	msg := ErrorMessage{Type: "error", Message: err.Error()}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		msg.Code = ae.Code.String()
		msg.Message = ae.Message
	}
	return msg
}

// httpStatus maps error codes onto HTTP statuses.
func httpStatus(err error) int {
	var ae *apperr.AppError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Code {
	case apperr.CodeInvalidArgument, apperr.CodeRuleParse, apperr.CodeRuleInvalid, apperr.CodeConfigInvalid:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidState:
		return http.StatusConflict
	case apperr.CodeNotInitialized, apperr.CodeUnavailable, apperr.CodeVisionUnavailable:
		return http.StatusServiceUnavailable
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
