// Package api is the HTTP front-end. It is a thin translation shim: each
// handler decodes a request, calls one dispatcher operation, and serializes
// the result. No dispatch logic lives here.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/grvsrs/relaygate/pkg/config"
	"github.com/grvsrs/relaygate/pkg/dispatch"
	"github.com/grvsrs/relaygate/pkg/logger"
	"github.com/grvsrs/relaygate/pkg/message"
)

// Server is the REST API server.
type Server struct {
	cfg        config.GatewayConfig
	dispatcher *dispatch.Dispatcher
	startTime  time.Time
	server     *http.Server
}

// NewServer creates the API server over a dispatcher.
func NewServer(cfg config.GatewayConfig, d *dispatch.Dispatcher) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		startTime:  time.Now(),
	}
}

// Start begins listening on the configured host:port. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "HTTP API listening", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler returns the mux wrapped in middleware, for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /protocols", s.handleListProtocols)
	mux.HandleFunc("POST /protocols/{name}/activate", s.handleActivate)
	mux.HandleFunc("POST /protocols/{name}/deactivate", s.handleDeactivate)
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("POST /simulate", s.handleSimulate)
	return corsMiddleware(mux)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Request/response shapes ---

type messageRequest struct {
	Content   string                 `json:"content"`
	Protocol  string                 `json:"protocol"`
	Recipient string                 `json:"recipient,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.List())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	status, err := s.dispatcher.Activate(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	status, err := s.dispatcher.Deactivate(r.Context(), r.PathValue("name"))
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.dispatcher.Send(r.Context(), dispatch.SendRequest{
		Protocol:  req.Protocol,
		Content:   req.Content,
		Sender:    message.SenderAPI,
		Recipient: req.Recipient,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.dispatcher.Simulate(r.Context(), dispatch.SimulateRequest{
		Protocol: req.Protocol,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"original_message": result.Original,
		"llm_response":     result.Response,
		"status":           "success",
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error":  msg,
		"status": "error",
	})
}

func writeDispatchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if derr, ok := err.(*dispatch.Error); ok {
		switch derr.Kind {
		case dispatch.KindNotFound:
			status = http.StatusNotFound
		case dispatch.KindInactive, dispatch.KindValidation:
			status = http.StatusBadRequest
		}
	}
	writeError(w, status, err.Error())
}
