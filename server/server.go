// Package server exposes a toolgram Pipeline over HTTP.
//
//	POST /ask      {"question": "..."}  generate a call and execute it
//	POST /exec     {"text": "..."}      execute model output directly
//	GET  /grammar                       the registry grammar, text/plain
//	GET  /tools                         registered tools with signatures
//	GET  /metrics                       request counters and process memory
//	GET  /health                        liveness, optionally checking the engine
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/skosovsky/toolgram"
)

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to a Pipeline.
type Server struct {
	pipeline *toolgram.Pipeline
	router   *mux.Router
	handler  http.Handler
	logger   *slog.Logger
	health   func(context.Context) error
	origins  []string
}

// Option configures the Server instance.
type Option func(*Server)

// WithLogger sets the request logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHealthCheck makes /health report 503 when check fails, e.g. when the engine is down.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// WithAllowedOrigins restricts CORS origins (default: any origin).
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server for p.
func New(p *toolgram.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		router:   mux.NewRouter(),
		logger:   slog.Default(),
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.registerRoutes()
	// Preflight OPTIONS requests must reach cors before route matching.
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	s.router.HandleFunc("/exec", s.handleExec).Methods(http.MethodPost)
	s.router.HandleFunc("/grammar", s.handleGrammar).Methods(http.MethodGet)
	s.router.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

type askRequest struct {
	Question string `json:"question"`
}

type execRequest struct {
	Text string `json:"text"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "question is required"})
		return
	}
	s.writeResponse(w, s.pipeline.Ask(r.Context(), req.Question))
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResponse(w, s.pipeline.Execute(r.Context(), req.Text))
}

func (s *Server) handleGrammar(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.pipeline.Registry().Grammar().String())
}

type toolInfo struct {
	Name        string `json:"name"`
	Signature   string `json:"signature"`
	Description string `json:"description"`
	Rule        string `json:"rule"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.pipeline.Registry().Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{
			Name:        t.Name(),
			Signature:   toolgram.Signature(t),
			Description: t.Description(),
			Rule:        toolgram.ToolRule(t),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type metricsBody struct {
	Requests   int64  `json:"requests"`
	Failures   int64  `json:"failures"`
	Memory     uint64 `json:"memory"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	Goroutines int    `json:"goroutines"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st := s.pipeline.Stats()
	writeJSON(w, http.StatusOK, metricsBody{
		Requests:   st.Requests,
		Failures:   st.Failures,
		Memory:     ms.Sys,
		HeapAlloc:  ms.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "read body: " + err.Error()})
		return false
	}
	if len(data) > maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.DebugContext(r.Context(), "bad request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) writeResponse(w http.ResponseWriter, resp toolgram.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(resp.Code))
	_, _ = w.Write(resp.JSON())
}

// StatusFor maps a response code to an HTTP status. Invalid model output is 422, a handler
// failure 500, an unreachable or failing engine 502 and a generation timeout 504.
func StatusFor(code toolgram.ErrorCode) int {
	switch code {
	case "":
		return http.StatusOK
	case toolgram.CodeParse, toolgram.CodeUnknownTool, toolgram.CodeArity, toolgram.CodeType:
		return http.StatusUnprocessableEntity
	case toolgram.CodeTimeout:
		return http.StatusGatewayTimeout
	case toolgram.CodeEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
