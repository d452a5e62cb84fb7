package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/mot-engine/internal/game"
	"github.com/terra-clan/mot-engine/internal/models"
	"github.com/terra-clan/mot-engine/internal/scoring"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// validationCodes maps scoring rejections to response codes
var validationCodes = []struct {
	err    error
	status int
	code   string
}{
	{scoring.ErrInvalidChoice, http.StatusUnprocessableEntity, "invalid_choice"},
	{scoring.ErrSelectionCount, http.StatusUnprocessableEntity, "selection_count"},
	{scoring.ErrInvalidChoices, http.StatusUnprocessableEntity, "invalid_choices"},
	{scoring.ErrBudget, http.StatusUnprocessableEntity, "budget_invalid"},
	{scoring.ErrOutOfOrder, http.StatusConflict, "step_out_of_order"},
	{scoring.ErrPathComplete, http.StatusConflict, "path_complete"},
	{scoring.ErrPathIncomplete, http.StatusConflict, "path_incomplete"},
}

// respondGameError maps manager and engine errors to responses
func respondGameError(w http.ResponseWriter, err error, action string) {
	var verr *scoring.ValidationError
	if errors.As(err, &verr) {
		for _, vc := range validationCodes {
			if errors.Is(err, vc.err) {
				respondError(w, vc.status, vc.code, verr.Error())
				return
			}
		}
		respondError(w, http.StatusUnprocessableEntity, "validation_error", verr.Error())
		return
	}

	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "session not found")
	case errors.Is(err, game.ErrPathNotFound):
		respondError(w, http.StatusNotFound, "player_not_found", "player not found")
	case errors.Is(err, game.ErrEditionNotFound):
		respondError(w, http.StatusNotFound, "edition_not_found", "edition not found")
	case errors.Is(err, game.ErrStepNotFound):
		respondError(w, http.StatusNotFound, "step_not_found", "step not found")
	case errors.Is(err, game.ErrSessionClosed):
		respondError(w, http.StatusConflict, "session_closed", "session is closed")
	case errors.Is(err, game.ErrInvalidUsername):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// stepParam parses the {step} URL parameter
func stepParam(w http.ResponseWriter, r *http.Request) (models.Step, bool) {
	step, err := models.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_step", err.Error())
		return 0, false
	}
	return step, true
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := s.health.HealthCheckAll(r.Context())

	checks := make(map[string]string, len(results))
	ready := true
	for name, err := range results {
		if err != nil {
			slog.Warn("readiness check failed", "service", name, "error", err)
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": checks,
	})
}
