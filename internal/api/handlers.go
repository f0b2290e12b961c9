package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"timeclock/internal/models"
	"timeclock/internal/service"
)

// ActionRequest is the optional body of the clock action endpoints.
// An absent timestamp means "now".
type ActionRequest struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// handleAction records a clock action.
// POST /api/v1/users/{userID}/clock-in|clock-out|lunch/start|lunch/end
func (s *HTTPServer) handleAction(kind models.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		var req ActionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		at := s.now()
		if req.Timestamp != nil {
			at = *req.Timestamp
		}

		result, err := s.service.Record(r.Context(), userID, kind, at)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

// GET /api/v1/users/{userID}/status
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.GetCurrentStatus(r.Context(), chi.URLParam(r, "userID"), s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GET /api/v1/users/{userID}/sessions/today
func (s *HTTPServer) handleTodaySession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetTodaySession(r.Context(), chi.URLParam(r, "userID"), s.now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// GET /api/v1/users/{userID}/activities?limit=
func (s *HTTPServer) handleActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	events, err := s.service.GetRecentActivities(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GET /api/v1/users/{userID}/sessions?page=&limit=&from=&to=
func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	q, err := parseSessionQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	page, err := s.service.GetUserSessions(r.Context(), chi.URLParam(r, "userID"), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseSessionQuery(r *http.Request) (service.SessionQuery, error) {
	var q service.SessionQuery
	var err error
	if q.Page, err = queryInt(r, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		return q, err
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if q.From, err = models.ParseDate(raw); err != nil {
			return q, fmt.Errorf("invalid from date; expected YYYY-MM-DD")
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if q.To, err = models.ParseDate(raw); err != nil {
			return q, fmt.Errorf("invalid to date; expected YYYY-MM-DD")
		}
	}
	return q, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.ErrorKind(err)
	switch kind {
	case "validation":
		var verr *service.ValidationError
		errors.As(err, &verr)
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:      "validation",
			Message:    verr.Error(),
			Violations: verr.Violations,
		})
	case "not_found":
		writeError(w, http.StatusNotFound, kind, err.Error())
	case "conflict":
		writeError(w, http.StatusConflict, kind, "concurrent modification; retry the request")
	case "invalid_input":
		writeError(w, http.StatusBadRequest, kind, err.Error())
	case "canceled":
		writeError(w, http.StatusServiceUnavailable, kind, "request canceled")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Clock service failure")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
