package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cablepark/internal/domain"
	"cablepark/internal/grid"
	"cablepark/internal/localtime"
	"cablepark/internal/models"
	"cablepark/internal/service"

	"github.com/julienschmidt/httprouter"
)

const (
	maxBodyBytes = 1 << 20
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleGrid(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	anchor, err := s.weekAnchor(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	view, err := s.svc.Schedule.Week(r.Context(), anchor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req grid.WindowRequest
	if !s.decode(w, r, &req) {
		return
	}
	preview, err := s.svc.Bookings.PreviewConflicts(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.BookingRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	view, err := s.svc.Bookings.GetBooking(r.Context(), ps.ByName("reference"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	mode, err := service.ParseCancelMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.svc.Bookings.CancelBooking(r.Context(), ps.ByName("reference"), mode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleBulk(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.BulkRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Admin.ApplyBulk(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleReplaceHours(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		OperatingHours []models.DayHours `json:"operating_hours"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	hours, err := s.svc.Admin.ReplaceHours(r.Context(), body.OperatingHours)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operating_hours": hours})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	anchor, err := s.weekAnchor(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	name, err := s.svc.Exports.WriteWeek(r.Context(), anchor, &buf)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// weekAnchor reads ?week=YYYY-MM-DD; the current local week by default.
func (s *HTTPServer) weekAnchor(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("week"))
	if raw == "" {
		return time.Now(), nil
	}
	date, err := localtime.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("week", "%v", err)
	}
	return s.svc.Zone.DayStart(date), nil
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

type conflictResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Conflicts []domain.Conflict `json:"conflicts"`
}

// writeServiceError maps domain errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *domain.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:     ce.Error(),
			Message:   domain.Remediation,
			Conflicts: ce.Conflicts,
		})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).Str("request_id", RequestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
