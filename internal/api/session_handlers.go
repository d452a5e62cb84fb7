package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/mot-engine/internal/models"
)

// --- Facilitator handlers (API key auth) ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	// An empty body opens a session on the default edition
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.TTL < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "ttl must not be negative (seconds)")
		return
	}

	// Identify who created the session
	createdBy := ""
	if client := ClientFromContext(r.Context()); client != nil {
		createdBy = client.Name
	}

	session, err := s.manager.CreateSession(r.Context(), req, createdBy)
	if err != nil {
		respondGameError(w, err, "create session")
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch models.SessionStatus(status) {
	case "", models.SessionOpen, models.SessionClosed:
	default:
		respondError(w, http.StatusBadRequest, "validation_error", "status must be open or closed")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	sessions, err := s.manager.ListSessions(r.Context(), status, limit, offset)
	if err != nil {
		respondGameError(w, err, "list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.GetSession(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondGameError(w, err, "get session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.CloseSession(r.Context(), chi.URLParam(r, "code")); err != nil {
		respondGameError(w, err, "close session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session closed",
	})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.SessionStats(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondGameError(w, err, "get session stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	edition := r.URL.Query().Get("edition")
	entries, err := s.manager.GlobalLeaderboard(r.Context(), edition, queryInt(r, "limit", 0))
	if err != nil {
		respondGameError(w, err, "get leaderboard")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"edition": edition,
		"entries": entries,
		"total":   len(entries),
	})
}
