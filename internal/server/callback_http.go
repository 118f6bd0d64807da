package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/teemow/callbackd/internal/broker"
	"github.com/teemow/callbackd/internal/instrumentation"
	"github.com/teemow/callbackd/internal/logging"
)

// serviceName identifies this service in the /health payload.
const serviceName = "callbackd"

// CallbackServer is the HTTP surface of the broker. It terminates the
// identity provider's browser redirect on /callback and hands stored results
// to consumers through the poll API.
type CallbackServer struct {
	broker      *broker.Broker
	httpServer  *http.Server
	logger      *slog.Logger
	health      *HealthChecker
	metrics     *instrumentation.Metrics
	tlsCertFile string
	tlsKeyFile  string
}

// NewCallbackServer creates a callback server on top of the given broker.
func NewCallbackServer(b *broker.Broker, logger *slog.Logger) *CallbackServer {
	if logger == nil {
		logger = slog.Default()
	}

	return &CallbackServer{
		broker: b,
		logger: logging.WithComponent(logger, "http"),
	}
}

// SetHealthChecker attaches Kubernetes probe endpoints to the server.
func (s *CallbackServer) SetHealthChecker(h *HealthChecker) {
	s.health = h
}

// SetMetrics enables HTTP request instrumentation.
func (s *CallbackServer) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// SetTLS configures certificate and key files; when both are set the server
// listens with TLS.
func (s *CallbackServer) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// handler builds the route table for the main listener.
func (s *CallbackServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/callback", s.handleCallback)
	mux.HandleFunc("/api/callback/", s.handleCallbackRetrieval)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}

	return s.instrumentationMiddleware(mux)
}

// Start starts the callback server in a blocking manner.
// Call this in a goroutine if you need non-blocking operation.
func (s *CallbackServer) Start(addr string) error {
	return s.StartWithReadySignal(addr, nil)
}

// StartWithReadySignal starts the callback server and closes ready once the
// listener is bound, so callers can sequence readiness on a successful bind
// instead of sleeping.
func (s *CallbackServer) StartWithReadySignal(addr string, ready chan<- struct{}) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if ready != nil {
		close(ready)
	}

	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("Starting callback server with TLS", slog.String("addr", addr))
		return s.httpServer.ServeTLS(ln, s.tlsCertFile, s.tlsKeyFile)
	}

	s.logger.Info("Starting callback server", slog.String("addr", addr))
	return s.httpServer.Serve(ln)
}

// Shutdown drains the server gracefully. Readiness is flipped off first so
// load balancers stop routing new requests during the drain.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
		s.health.SetShuttingDown()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleCallback terminates the identity provider redirect.
// Validation and storage live in the broker; this handler only translates
// the outcome into a terminal page for the browser.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extra query parameters are ignored; providers send various extras
	// (session_state, scope echoes) that the broker has no use for
	query := r.URL.Query()
	res := broker.Result{
		State:            query.Get("state"),
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	err := s.broker.Receive(r.Context(), res)
	switch {
	case errors.Is(err, broker.ErrEmptyState):
		s.renderPage(w, http.StatusBadRequest, badRequestPage, badRequestPageData{Message: "Missing state parameter"})
		return
	case errors.Is(err, broker.ErrNoResult):
		s.renderPage(w, http.StatusBadRequest, badRequestPage, badRequestPageData{Message: "Missing code parameter"})
		return
	case err != nil:
		http.Error(w, "failed to store callback", http.StatusInternalServerError)
		return
	}

	if res.Error != "" {
		s.renderPage(w, http.StatusOK, failurePage, failurePageData{
			Error:            res.Error,
			ErrorDescription: res.ErrorDescription,
		})
		return
	}

	s.renderPage(w, http.StatusOK, successPage, nil)
}

// callbackResponse is the poll API payload for a delivered result.
// Status reports the retrieval, not the authorization: an identity provider
// error still arrives with status "success" and the error fields set.
type callbackResponse struct {
	Status           string `json:"status"`
	State            string `json:"state"`
	AuthCode         string `json:"auth_code,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// errorResponse is the poll API payload for misses and request errors.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleCallbackRetrieval serves the consume side: GET /api/callback/{state}.
// Consumers poll cross-origin from browser contexts, so every response
// carries the CORS wildcard and OPTIONS preflights are answered.
func (s *CallbackServer) handleCallbackRetrieval(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: "error", Message: "Method not allowed"})
		return
	}

	state := strings.TrimPrefix(r.URL.Path, "/api/callback/")

	res, found, err := s.broker.Consume(r.Context(), state)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "Failed to retrieve callback"})
		return
	}
	if !found {
		// Never arrived, expired and already consumed all look the same
		s.writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Message: "Callback not found or expired"})
		return
	}

	s.writeJSON(w, http.StatusOK, callbackResponse{
		Status:           "success",
		State:            res.State,
		AuthCode:         res.Code,
		Error:            res.Error,
		ErrorDescription: res.ErrorDescription,
	})
}

// healthInfo is the /health payload.
type healthInfo struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	Timestamp       string `json:"timestamp"`
	ActiveCallbacks int    `json:"active_callbacks"`
}

func (s *CallbackServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: "error", Message: "Method not allowed"})
		return
	}

	active, err := s.broker.ActiveCount(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, healthInfo{
			Status:    "unhealthy",
			Service:   serviceName,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, healthInfo{
		Status:          "healthy",
		Service:         serviceName,
		Timestamp:       time.Now().Format(time.RFC3339),
		ActiveCallbacks: active,
	})
}

func (s *CallbackServer) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, http.StatusNotFound, notFoundPage, nil)
}

func (s *CallbackServer) renderPage(w http.ResponseWriter, status int, page *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		s.logger.Error("Failed to render page", logging.Err(err))
	}
}

func (s *CallbackServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", logging.Err(err))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code for
// request metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrumentationMiddleware records request metrics and wraps each request in
// a server span. Metrics and spans carry the route template, never the raw
// path, so the state segment of the poll route cannot explode cardinality.
func (s *CallbackServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		route := instrumentation.NormalizeRoute(r.URL.Path)
		ctx, span := instrumentation.StartServerSpan(r.Context(), route)
		defer span.End()

		rw := newResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))
		duration := time.Since(start)

		s.metrics.RecordHTTPRequest(ctx, r.Method, route, rw.statusCode, duration)

		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		} else {
			span.SetStatus(codes.Ok, "")
		}
	})
}
