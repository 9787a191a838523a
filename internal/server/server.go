// Package server exposes the question-answering loop over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"askbot/internal/agent"
	"askbot/internal/domain"
	"askbot/internal/metrics"
	"askbot/internal/tool"
)

const maxBodySize = 1 << 20 // 1MB

// Answerer runs one question through the orchestration loop. Satisfied
// by *agent.Loop; an interface so tests can stub the model out.
type Answerer interface {
	Run(ctx context.Context, question string, history []domain.Message) (*agent.Answer, error)
}

// Server is the HTTP front door: chat, tool catalogue, health, metrics.
type Server struct {
	host           string
	port           int
	requestTimeout time.Duration
	loop           Answerer
	registry       *tool.Registry
	logger         *slog.Logger
	server         *http.Server
}

type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	Loop           Answerer
	Registry       *tool.Registry
	Logger         *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	return &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		requestTimeout: cfg.RequestTimeout,
		loop:           cfg.Loop,
		registry:       cfg.Registry,
		logger:         cfg.Logger,
	}
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.Handle("GET /metrics", metrics.Collector.Handler())
	mux.HandleFunc("POST /chat", s.handleChat)
	return mux
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// The write timeout must outlast the slowest chat request.
		WriteTimeout:   s.requestTimeout + 30*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info("http server started", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{
		"message": "欢迎使用问答机器人API",
	})
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleTools(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"tools": s.registry.Infos(),
	})
}

type chatRequest struct {
	Question    string           `json:"question"`
	ChatHistory []domain.Message `json:"chat_history"`
}

func (s *Server) handleChat(rw http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	logger := s.logger.With("request_id", reqID)

	metrics.RequestsTotal.Inc()
	metrics.InFlightRequests.Inc()
	defer metrics.InFlightRequests.Dec()
	start := time.Now()
	defer func() {
		metrics.RequestLatency.Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		metrics.RequestFailures.Inc()
		writeError(rw, http.StatusBadRequest, "cannot read request body")
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.RequestFailures.Inc()
		writeError(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		metrics.RequestFailures.Inc()
		writeError(rw, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	logger.Info("chat request received", "question_len", len(req.Question), "history_len", len(req.ChatHistory))

	answer, err := s.loop.Run(ctx, req.Question, req.ChatHistory)
	if err != nil {
		metrics.RequestFailures.Inc()

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("chat request timed out", "elapsed_ms", time.Since(start).Milliseconds())
			writeError(rw, http.StatusGatewayTimeout, "request timed out")
		case errors.Is(err, context.Canceled):
			logger.Debug("chat request cancelled by client")
			// Client is gone; nothing useful to write.
		default:
			var me *domain.ModelError
			if errors.As(err, &me) {
				logger.Error("model invocation failed", "provider", me.Provider, "error", me.Err)
			} else {
				logger.Error("chat request failed", "error", err)
			}
			writeError(rw, http.StatusInternalServerError, "internal error")
		}
		return
	}

	logger.Info("chat request answered",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(answer.ToolCalls),
		"truncated", answer.Truncated)

	writeJSON(rw, http.StatusOK, answer)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
