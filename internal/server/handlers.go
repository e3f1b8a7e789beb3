package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"relayd/internal/control"
)

type submitRequest struct {
	Payload     string `json:"payload"`
	Destination string `json:"destination"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.plane.Snapshot())
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	id, err := s.plane.Submit(r.Context(), bearerToken(r), req.Payload, req.Destination)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	rec, err := s.plane.Status(r.Context(), bearerToken(r), id)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	recs, err := s.plane.List(r.Context(), bearerToken(r))
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": recs})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	stopped, err := s.plane.Stop(r.Context(), bearerToken(r), id)
	if err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

func messageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown message id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	var throttled *control.ThrottledError
	var invalid *control.InvalidPayloadError
	switch {
	case errors.Is(err, control.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired credential")
	case errors.As(err, &throttled):
		secs := int64(throttled.RetryAfter/time.Second) + 1
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeError(w, http.StatusTooManyRequests, "THROTTLED", throttled.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", invalid.Error())
	case errors.Is(err, control.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown message id")
	default:
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
