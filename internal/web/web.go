package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatcal/internal/config"
	appLog "chatcal/internal/log"
	"chatcal/internal/session"
	"chatcal/internal/tools"
)

// maxRequestBytes caps /api/mcp bodies; imported calendars travel inline.
const maxRequestBytes = 8 << 20

// SessionHeader carries the chat session id for handle_message.
const SessionHeader = "X-Session-ID"

// Caller runs a named tool. *tools.Dispatcher implements it.
type Caller interface {
	Call(ctx context.Context, name string, input map[string]any) tools.Result
}

// Server exposes the tool table over HTTP along with the embedded chat UI.
type Server struct {
	cfg     *config.Config
	tools   Caller
	router  chi.Router
	httpSrv *http.Server
}

// embeddedStatic contains the single-page chat UI.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, caller Caller) *Server {
	s := &Server{cfg: cfg, tools: caller}
	s.router = s.routes()
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the root http.Handler, wrapped in basic auth when it is
// configured.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/calendar.ics", s.handleCalendar)
	r.Route("/api", func(r chi.Router) {
		r.Post("/mcp", s.handleMCP)
		r.Options("/mcp", s.handlePreflight)
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	})
	r.Handle("/*", s.staticFileServer())
	return r
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String(), "basic_auth", s.basicAuthEnabled())
	go s.shutdownOnContext(ctx)
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) shutdownOnContext(ctx context.Context) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="chatcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := "*"
	if s.cfg != nil && s.cfg.CORSOrigin != "" {
		origin = s.cfg.CORSOrigin
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionHeader)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	res := s.tools.Call(r.Context(), tools.ExportCalendar, nil)
	if res.Kind == tools.KindError {
		writeError(w, http.StatusInternalServerError, res.Error)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	_, _ = io.WriteString(w, res.Text)
}

type mcpRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

type mcpResponse struct {
	Result any `json:"result"`
}

// handleMCP runs one tool call: POST /api/mcp {"tool": "...", "input": {...}}.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req mcpRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Tool = strings.TrimSpace(req.Tool)
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "Missing tool name")
		return
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}
	if req.Tool == tools.HandleMessage {
		if _, ok := req.Input["session_id"]; !ok {
			id := strings.TrimSpace(r.Header.Get(SessionHeader))
			if id == "" {
				id = session.DefaultID
			}
			req.Input["session_id"] = id
		}
	}

	res := s.tools.Call(r.Context(), req.Tool, req.Input)
	appLog.Debug("api mcp request", "tool", req.Tool, "kind", res.Kind, "request_id", middleware.GetReqID(r.Context()))
	if res.Kind == tools.KindError {
		writeError(w, http.StatusBadRequest, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, mcpResponse{Result: res.Value()})
}

// staticFileServer serves the embedded chat UI from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
