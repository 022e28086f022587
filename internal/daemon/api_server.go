package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/api"
	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/preflight"
	"clipforge/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	jobs   *api.JobService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		jobs:   d.Jobs(),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", authMiddleware(token, s.handleSubmit))
	mux.HandleFunc("GET /api/jobs", authMiddleware(token, s.handleList))
	mux.HandleFunc("GET /api/jobs/{id}", authMiddleware(token, s.handleDescribe))
	mux.HandleFunc("POST /api/jobs/{id}/cancel", authMiddleware(token, s.handleCancel))
	mux.HandleFunc("GET /api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("GET /api/health", authMiddleware(token, s.handleHealth))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.log(), "api server error", "api_serve_failed", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: "validation"})
		return
	}
	ctx := services.WithRequestID(r.Context(), requestID(r))
	resp, err := s.jobs.Submit(ctx, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.log().Info("job submitted via api",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, resp.JobID),
		logging.Int("items", len(req.Items)),
	)
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid limit", Kind: "validation"})
			return
		}
		limit = parsed
	}
	var statuses []string
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				statuses = append(statuses, trimmed)
			}
		}
	}
	resp, err := s.jobs.List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobs.Describe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	resp, err := s.jobs.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if resp.NotFound {
		s.writeJSON(w, http.StatusNotFound, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusPayload(s.daemon.Status(r.Context()), nil))
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.daemon.Health(r.Context())
	checks := make([]api.CheckResult, 0, len(results))
	for _, res := range results {
		checks = append(checks, api.CheckResult{Name: res.Name, Passed: res.Passed, Detail: res.Detail})
	}
	code := http.StatusOK
	if len(preflight.Failed(results)) > 0 {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, checks)
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	details := services.Details(err)
	code := http.StatusInternalServerError
	switch details.Kind {
	case "validation":
		code = http.StatusBadRequest
	case "not_found":
		code = http.StatusNotFound
	case "configuration":
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		logging.ErrorWithContext(s.log(), "api request failed", "api_request_failed", logging.Error(err))
	}
	s.writeJSON(w, code, api.ErrorResponse{Error: details.Message, Kind: details.Kind})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}
