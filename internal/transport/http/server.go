// internal/transport/http/server.go
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "sos-workers/internal/common/errors"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/events"
	"sos-workers/pkg/registry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxEventBytes = 1 << 20

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Address  string
	Registry *registry.TriggerRegistry
	Codec    *events.Codec
	Reactor  events.Reactor
	Checks   map[string]ReadinessCheck
	Logger   logger.Logger
}

type Server struct {
	srv    *http.Server
	logger logger.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              opts.Address,
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: opts.Logger,
	}
}

// NewRouter mounts one POST route per trigger plus the operational endpoints.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	for _, t := range opts.Registry.Triggers {
		r.Post(t.Route, eventHandler(opts, t))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	r.Get("/ready", readyHandler(opts.Checks))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// eventHandler answers 200 with the outcome, aborted ones included, and 400 for rejected payloads.
func eventHandler(opts Options, t registry.Trigger) http.HandlerFunc {
	log := opts.Logger.WithFields(map[string]interface{}{"trigger": t.ID})
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apperrors.NewEventDecodeFailedError(err))
			return
		}

		// The reaction is bounded by the dispatcher's own timeout, not by the caller's connection.
		outcome, err := opts.Codec.Dispatch(context.WithoutCancel(r.Context()), opts.Reactor, t.Event, body)
		if err != nil {
			stdErr := apperrors.Normalize(err)
			log.Warn("event rejected", map[string]interface{}{
				"requestId": middleware.GetReqID(r.Context()),
				"errorCode": stdErr.Code,
			})
			writeJSON(w, http.StatusBadRequest, stdErr)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func readyHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := make(map[string]string)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not_ready",
				"failed": failed,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
