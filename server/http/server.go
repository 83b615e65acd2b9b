package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/agent/aggregate"
	"github.com/KamdynS/payroll-agents/agent/catalog"
	"github.com/KamdynS/payroll-agents/agent/relevance"
	"github.com/KamdynS/payroll-agents/agent/supervisor"
	"github.com/KamdynS/payroll-agents/logging"
	obs "github.com/KamdynS/payroll-agents/observability"
)

const maxBodyBytes = 1 << 20

// Processor is the orchestration core served over HTTP.
type Processor interface {
	Process(ctx context.Context, req supervisor.Request) supervisor.Response
	Catalog() []catalog.Descriptor
}

// Server exposes a Processor over HTTP.
type Server struct {
	orch   Processor
	config Config
	log    *zap.Logger
	server *http.Server
}

// Config holds HTTP server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	EnableCORS   bool
	// RateLimit bounds requests per client address. Zero RPS disables it.
	RateLimit RateLimit
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// NewServer creates a new HTTP server for the orchestrator
func NewServer(orch Processor, config Config, logger *zap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 120 * time.Second
	}

	s := &Server{
		orch:   orch,
		config: config,
		log:    logging.OrNop(logger),
	}
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/query", s.queryHandler)
	api.HandleFunc("/api/multi-agent", s.multiAgentHandler)
	api.HandleFunc("/api/agents", s.agentsHandler)

	var apiHandler http.Handler = api
	if s.config.RateLimit.RPS > 0 {
		apiHandler = newClientLimiter(s.config.RateLimit).middleware(apiHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	if s.config.Metrics != nil {
		mux.Handle("/metrics", s.config.Metrics)
	}
	mux.Handle("/api/", apiHandler)

	var h http.Handler = mux
	if s.config.EnableCORS {
		h = corsMiddleware(h)
	}
	return s.requestMiddleware(h)
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	AgentType      string `json:"agentType,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

// QueryResponse is the body returned by POST /api/query.
type QueryResponse struct {
	Response       string       `json:"response"`
	AgentType      catalog.Type `json:"agentType"`
	AgentName      string       `json:"agentName"`
	ConversationID string       `json:"conversationId"`
}

// MultiAgentRequest is the body of POST /api/multi-agent.
type MultiAgentRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"userId,omitempty"`
	CompanyID      string `json:"companyId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// MultiAgentResponse is the body returned by POST /api/multi-agent.
type MultiAgentResponse struct {
	Response           string                   `json:"response"`
	AgentContributions []aggregate.Contribution `json:"agentContributions"`
	Analysis           Analysis                 `json:"analysis"`
	Metadata           Metadata                 `json:"metadata"`
}

// Analysis renders a relevance plan.
type Analysis struct {
	Analysis       string                           `json:"analysis"`
	AgentRelevance map[catalog.Type]relevance.Score `json:"agent_relevance"`
	Plan           []catalog.Type                   `json:"plan"`
}

// Metadata carries routing details for the multi-agent response.
type Metadata struct {
	RelevantAgents []catalog.Type `json:"relevantAgents"`
	ConversationID string         `json:"conversationId"`
	Fallback       bool           `json:"fallback"`
	Degraded       bool           `json:"degraded"`
}

// ErrorResponse is the body of every 4xx/5xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) agentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.orch.Catalog())
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.writeError(w, "Query is required", http.StatusBadRequest)
		return
	}
	var force catalog.Type
	if req.AgentType != "" {
		t, err := catalog.ParseType(req.AgentType)
		if err != nil {
			s.writeError(w, "Unknown agent type: "+req.AgentType, http.StatusBadRequest)
			return
		}
		force = t
	}

	resp := s.orch.Process(r.Context(), supervisor.Request{
		Query:        query,
		Conversation: supervisor.ResolveConversation(req.ConversationID),
		Force:        force,
		UserID:       req.UserID,
	})
	s.writeJSON(w, http.StatusOK, QueryResponse{
		Response:       resp.Text,
		AgentType:      resp.AgentType,
		AgentName:      resp.AgentName,
		ConversationID: resp.ConversationID,
	})
}

func (s *Server) multiAgentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req MultiAgentRequest
	if !s.decode(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.writeError(w, "Query is required", http.StatusBadRequest)
		return
	}

	resp := s.orch.Process(r.Context(), supervisor.Request{
		Query:        query,
		Conversation: supervisor.ResolveConversation(req.ConversationID),
		UserID:       req.UserID,
		CompanyID:    req.CompanyID,
	})

	out := MultiAgentResponse{
		Response:           resp.Text,
		AgentContributions: resp.Contributions,
		Metadata: Metadata{
			ConversationID: resp.ConversationID,
			Degraded:       resp.Degraded,
		},
	}
	if out.AgentContributions == nil {
		out.AgentContributions = []aggregate.Contribution{}
	}
	if p := resp.Plan; p != nil {
		out.Analysis = Analysis{Analysis: p.Narrative, AgentRelevance: p.Scores, Plan: p.Chosen}
		out.Metadata.RelevantAgents = p.Chosen
		out.Metadata.Fallback = p.Fallback
	}
	s.writeJSON(w, http.StatusOK, out)
}

// decode reads a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		s.writeError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{Error: message})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", zap.String("addr", s.config.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

var _ Processor = (*supervisor.Orchestrator)(nil)

// requestMiddleware assigns a request id, records metrics, logs the request
// and converts panics into 500s.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := obs.ExtractHTTPContext(r.Context(), r)
		obs.InjectHTTPHeaders(w, ctx)

		span, ctx := obs.TracerImpl.StartSpan(ctx, "http.request")
		defer span.End()
		span.SetAttribute(obs.AttrHTTPMethod, r.Method)
		span.SetAttribute(obs.AttrHTTPRoute, r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("panic serving request", zap.Any("panic", p), zap.String("path", r.URL.Path))
				if !rec.wrote {
					s.writeError(rec, "Internal server error", http.StatusInternalServerError)
				}
			}
			id, _ := obs.RequestIDFromContext(ctx)
			span.SetAttribute(obs.AttrHTTPStatus, rec.status)
			if rec.status >= 500 {
				span.SetStatus(obs.StatusCodeError, http.StatusText(rec.status))
			}
			s.log.Info("request",
				zap.String(logging.FieldRequestID, id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
