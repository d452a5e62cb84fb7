package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/mot-engine/internal/models"
)

// --- Player handlers (public, addressed by path token) ---

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req models.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	resp, err := s.manager.Join(r.Context(), chi.URLParam(r, "code"), req.Username)
	if err != nil {
		respondGameError(w, err, "join session")
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleSessionBoard(w http.ResponseWriter, r *http.Request) {
	code := models.NormalizeSessionCode(chi.URLParam(r, "code"))
	entries, err := s.manager.SessionLeaderboard(r.Context(), code, queryInt(r, "limit", 0))
	if err != nil {
		respondGameError(w, err, "get leaderboard")
		return
	}
	respondJSON(w, http.StatusOK, models.BoardUpdate{
		Type:        "leaderboard",
		SessionCode: code,
		Entries:     entries,
	})
}

func (s *Server) handleGetPath(w http.ResponseWriter, r *http.Request) {
	path, err := s.manager.Path(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondGameError(w, err, "get path")
		return
	}
	respondJSON(w, http.StatusOK, path)
}

func (s *Server) handleStepChoices(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	view, err := s.manager.StepChoices(r.Context(), chi.URLParam(r, "token"), step)
	if err != nil {
		respondGameError(w, err, "get step choices")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmitStep(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}

	var sub models.StepSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	outcome, err := s.manager.Submit(r.Context(), chi.URLParam(r, "token"), step, sub)
	if err != nil {
		respondGameError(w, err, "submit step")
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.Score(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondGameError(w, err, "get score")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Result(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondGameError(w, err, "get result")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
