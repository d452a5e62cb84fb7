package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/mot-engine/internal/models"
)

// Edition handlers: public content browsing, never the answer key

func (s *Server) handleListEditions(w http.ResponseWriter, r *http.Request) {
	editions := s.manager.Editions()
	summaries := make([]models.EditionSummary, 0, len(editions))
	for _, e := range editions {
		summaries = append(summaries, e.Summary())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"editions": summaries,
		"total":    len(summaries),
	})
}

func (s *Server) handleGetEdition(w http.ResponseWriter, r *http.Request) {
	edition, err := s.manager.Edition(chi.URLParam(r, "edition"))
	if err != nil {
		respondGameError(w, err, "get edition")
		return
	}
	respondJSON(w, http.StatusOK, edition.Detail())
}

func (s *Server) handleGetEditionStep(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	view, err := s.manager.EditionStep(chi.URLParam(r, "edition"), step)
	if err != nil {
		respondGameError(w, err, "get step")
		return
	}
	respondJSON(w, http.StatusOK, view)
}
