package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Path is the only path that runs the health checks.
const Path = "/health"

// CheckFunc returns the name and error message of every unhealthy dependency.
// An empty result means healthy. *clients.State.Health is a CheckFunc.
type CheckFunc func(ctx context.Context) map[string]string

// Logger is the logging contract of the package.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// RequestRecorder counts and times requests. *metrics.Metrics implements it.
type RequestRecorder interface {
	IncrementRequests(status string)
	RecordRequestDuration(start time.Time, endpoint string)
}

// Handler answers GET /health with 200 when check reports nothing and with
// 500 and the error map otherwise. Every other path or method gets an empty
// 200 without running the check.
type Handler struct {
	check    CheckFunc
	logger   Logger
	recorder RequestRecorder
}

// NewHandler creates the handler. recorder may be nil.
func NewHandler(check CheckFunc, logger Logger, recorder RequestRecorder) *Handler {
	return &Handler{check: check, logger: logger, recorder: recorder}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		if h.recorder != nil {
			h.recorder.IncrementRequests(strconv.Itoa(status))
			h.recorder.RecordRequestDuration(start, r.URL.Path)
		}
	}()

	if r.URL.Path != Path || r.Method != http.MethodGet {
		w.WriteHeader(status)
		return
	}

	errs := h.check(r.Context())
	if len(errs) == 0 {
		w.WriteHeader(status)
		return
	}

	status = http.StatusInternalServerError
	fields := make(map[string]interface{}, len(errs))
	for name, msg := range errs {
		fields[name] = msg
	}
	h.logger.ErrorWithContext(r.Context(), "health check failed", nil, fields)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errs)
}

// Server serves a Handler.
type Server struct {
	srv    *http.Server
	logger Logger
}

func NewServer(cfg Config, handler http.Handler, logger Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Address(),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.logger.InfoWithContext(ctx, "starting health server", nil, map[string]interface{}{"address": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorWithContext(ctx, "health server stopped", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.InfoWithContext(ctx, "shutting down health server", nil)
	return s.srv.Shutdown(ctx)
}
