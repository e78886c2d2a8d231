package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/gantryci/gantry/pkg/protocol"
	"github.com/gantryci/gantry/pkg/sources/webhook/models"
)

const (
	// Server configuration constants.
	hookReadTimeout     = 30 * time.Second
	hookWriteTimeout    = 30 * time.Second
	hookIdleTimeout     = 60 * time.Second
	hookShutdownTimeout = 5 * time.Second
	maxRequestBodySize  = 1024 * 1024 // 1MB max request body

	// forgeEventHeader names the event type of a delivery, the way forges
	// do with X-GitHub-Event and X-Gitea-Event. The value passes through
	// to trigger matching unchanged.
	forgeEventHeader = "X-Forge-Event"
)

// EndpointStore is the minimal persistence surface the server needs to
// resolve deliveries.
type EndpointStore interface {
	EndpointByExternalID(externalID string) (*models.Endpoint, error)
	Endpoints() ([]*models.Endpoint, error)
}

// Server manages the HTTP intake for forge deliveries. Each active endpoint
// is reachable at /hooks/{external id}; accepted deliveries are normalized
// and handed to the source event callback.
type Server struct {
	server      *http.Server
	port        int
	persistence EndpointStore
	callback    protocol.SourceEventCallback
	logger      *slog.Logger
	mu          sync.RWMutex
	started     bool
	done        chan struct{}
	doneOnce    sync.Once
}

// NewServer creates a new intake server instance.
func NewServer(port int, logger *slog.Logger) *Server {
	return &Server{
		port:   port,
		logger: logger.With("module", "webhook_server", "port", port),
		done:   make(chan struct{}),
	}
}

// SetPersistence sets the endpoint store used for delivery resolution.
func (s *Server) SetPersistence(persistence EndpointStore) {
	s.persistence = persistence
}

// SetCallback sets the callback function for publishing source events.
func (s *Server) SetCallback(callback protocol.SourceEventCallback) {
	s.callback = callback
}

// RegisterEndpoint logs that an endpoint is reachable. Endpoints resolve
// through persistence on every delivery, so registration is advisory.
func (s *Server) RegisterEndpoint(endpoint *models.Endpoint) error {
	s.logger.Info("Webhook endpoint available for deliveries",
		"source_id", endpoint.SourceID,
		"external_id", endpoint.ExternalID,
		"path", endpoint.Path())

	return nil
}

// Start starts the HTTP server and begins handling deliveries.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/hooks/", s.handleHook)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  hookReadTimeout,
		WriteTimeout: hookWriteTimeout,
		IdleTimeout:  hookIdleTimeout,
	}

	s.started = true
	s.logger.Info("Starting webhook server", "addr", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Webhook server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.shutdown(ctx)
	}()

	return nil
}

// Stop gracefully shuts down the intake server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping webhook server")

	shutdownCtx, cancel := context.WithTimeout(ctx, hookShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during server shutdown", "error", err)

		return err
	}

	s.started = false
	s.doneOnce.Do(func() {
		close(s.done)
	})

	s.logger.Info("Webhook server stopped")

	return nil
}

// Done returns a channel that's closed when the server is shut down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, hookShutdownTimeout)
	defer cancel()

	if err := s.Stop(shutdownCtx); err != nil {
		s.logger.Error("Error during webhook server shutdown", "error", err)
	}
}

// handleHook handles an incoming forge delivery.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	externalID := strings.TrimPrefix(r.URL.Path, "/hooks/")
	if externalID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Missing endpoint id in path")

		return
	}

	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, http.StatusMethodNotAllowed, "Only POST method allowed")

		return
	}

	eventType := r.Header.Get(forgeEventHeader)
	if eventType == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Missing "+forgeEventHeader+" header")

		return
	}

	// Malformed ids resolve like unknown ones so probes cannot tell the
	// two apart.
	if _, err := uuid.Parse(externalID); err != nil {
		s.writeErrorResponse(w, http.StatusNotFound, "Webhook endpoint not found")

		return
	}

	endpoint, err := s.persistence.EndpointByExternalID(externalID)
	if err != nil {
		s.logger.Error("Error resolving webhook endpoint", "external_id", externalID, "error", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "Error processing delivery")

		return
	}

	if endpoint == nil {
		s.logger.Warn("Delivery for unknown endpoint", "external_id", externalID, "remote_addr", r.RemoteAddr)
		s.writeErrorResponse(w, http.StatusNotFound, "Webhook endpoint not found")

		return
	}

	if !endpoint.Active {
		s.logger.Warn("Delivery for inactive endpoint", "source_id", endpoint.SourceID, "external_id", externalID)
		s.writeErrorResponse(w, http.StatusNotFound, "Webhook endpoint not found")

		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("Error reading delivery body", "source_id", endpoint.SourceID, "error", err)
		s.writeErrorResponse(w, http.StatusBadRequest, "Error reading request body")

		return
	}

	var payload map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			s.logger.Error("Error parsing delivery body", "source_id", endpoint.SourceID, "error", err)
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON in request body")

			return
		}
	} else {
		payload = make(map[string]any)
	}

	if endpoint.HasJSONSchema() {
		if err := s.validateJSONSchema(payload, endpoint.JSONSchema); err != nil {
			s.logger.Warn("Delivery payload failed schema validation", "source_id", endpoint.SourceID, "error", err)
			s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Schema validation failed: %v", err))

			return
		}
	}

	eventData := s.normalizeEventData(payload, r)

	if s.callback != nil {
		if err := s.callback(r.Context(), endpoint.SourceID, "webhook", eventType, eventData); err != nil {
			s.logger.Error("Error publishing source event", "source_id", endpoint.SourceID, "error", err)
			s.writeErrorResponse(w, http.StatusInternalServerError, "Error processing delivery")

			return
		}
	}

	s.logger.Info("Delivery accepted",
		"source_id", endpoint.SourceID,
		"external_id", externalID,
		"event_type", eventType,
		"remote_addr", r.RemoteAddr,
		"content_length", r.ContentLength)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "accepted",
		"message": "Delivery received and queued",
	}); err != nil {
		s.logger.Error("Error encoding success response", "error", err)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	var endpointCount int

	if s.persistence != nil {
		if endpoints, err := s.persistence.Endpoints(); err == nil {
			endpointCount = len(endpoints)
		}
	}

	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"endpoints": endpointCount,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Error("Error encoding health response", "error", err)
	}
}

// validateJSONSchema validates the raw payload against the endpoint's
// configured JSON schema.
func (s *Server) validateJSONSchema(payload map[string]any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// normalizeEventData lifts the trigger-matching fields out of the forge
// payload and attaches request metadata. Matching reads branch, action and
// sha at the top level; the raw payload stays available under "payload".
func (s *Server) normalizeEventData(payload map[string]any, r *http.Request) map[string]any {
	eventData := map[string]any{
		"payload": payload,
		"webhook": map[string]any{
			"method":         r.Method,
			"url":            r.URL.String(),
			"remote_addr":    r.RemoteAddr,
			"user_agent":     r.UserAgent(),
			"content_length": r.ContentLength,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"headers":        s.extractHeaders(r),
			"query_params":   s.extractQueryParams(r),
		},
	}

	if branch := branchFromPayload(payload); branch != "" {
		eventData["branch"] = branch
	}

	if sha := stringField(payload, "sha", "after"); sha != "" {
		eventData["sha"] = sha
	}

	if action := stringField(payload, "action"); action != "" {
		eventData["action"] = action
	}

	if repo, ok := payload["repository"].(map[string]any); ok {
		if fullName, ok := repo["full_name"].(string); ok && fullName != "" {
			eventData["repository"] = fullName
		}
	}

	return eventData
}

// branchFromPayload resolves the pushed branch, preferring an explicit
// branch field over the forge ref form refs/heads/<branch>.
func branchFromPayload(payload map[string]any) string {
	if branch := stringField(payload, "branch"); branch != "" {
		return branch
	}

	if ref := stringField(payload, "ref"); ref != "" {
		return strings.TrimPrefix(ref, "refs/heads/")
	}

	return ""
}

// stringField returns the first non-empty string value among the given
// payload keys.
func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}

	return ""
}

// extractHeaders extracts HTTP headers from the request.
func (s *Server) extractHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string)

	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = strings.Join(values, ", ")
		}
	}

	return headers
}

// extractQueryParams extracts query parameters from the request.
func (s *Server) extractQueryParams(r *http.Request) map[string]string {
	params := make(map[string]string)

	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}

	return params
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":  "error",
		"message": message,
		"code":    statusCode,
	}); err != nil {
		s.logger.Error("Error encoding error response", "error", err)
	}
}
