package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cablepark/internal/config"
	"cablepark/internal/export"
	"cablepark/internal/localtime"
	"cablepark/internal/service"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// Services are the collaborators the HTTP API dispatches to.
type Services struct {
	Zone     *localtime.Zone
	Bookings *service.BookingService
	Schedule *service.ScheduleService
	Admin    *service.AdminService
	Exports  *export.Exporter
	// Ready reports whether storage is reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the schedule over JSON.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	auth   *HTTPAuth
	router *httprouter.Router
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		auth:   NewHTTPAuth(cfg),
		router: httprouter.New(),
		logger: zerolog.Nop(),
	}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	}
	srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.router.GET("/healthz", instrument("/healthz", s.handleHealth))
	s.router.GET("/readyz", instrument("/readyz", s.handleReady))

	s.handle(http.MethodGet, "/api/v1/grid", PermReadGrid, s.handleGrid)
	s.handle(http.MethodPost, "/api/v1/bookings/preview", PermReadGrid, s.handlePreview)
	s.handle(http.MethodPost, "/api/v1/bookings", PermWriteBookings, s.handleCreateBooking)
	s.handle(http.MethodGet, "/api/v1/bookings/:reference", PermReadGrid, s.handleGetBooking)
	s.handle(http.MethodDelete, "/api/v1/bookings/:reference", PermWriteBookings, s.handleCancelBooking)
	s.handle(http.MethodPost, "/api/v1/admin/slots/bulk", PermAdminSlots, s.handleBulk)
	s.handle(http.MethodPut, "/api/v1/admin/hours", PermAdminSlots, s.handleReplaceHours)
	s.handle(http.MethodGet, "/api/v1/admin/export", PermAdminSlots, s.handleExport)

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		s.logger.Error().Interface("panic", v).Str("request_id", RequestID(r.Context())).Msg("http handler panicked")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) handle(method, path, permission string, h httprouter.Handle) {
	s.router.Handle(method, path, instrument(path, s.auth.Guard(permission, h)))
}

// Handler is the full middleware chain, usable with httptest.
func (s *HTTPServer) Handler() http.Handler {
	return requestIDMiddleware(loggingMiddleware(s.logger, s.router))
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
