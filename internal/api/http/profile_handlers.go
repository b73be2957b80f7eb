package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
)

func (s *Server) upsertProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	var req struct {
		Name     string  `json:"name"`
		Email    string  `json:"email"`
		Phone    string  `json:"phone"`
		Role     string  `json:"role"`
		Category *string `json:"category"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	p := &identity.Profile{
		Identity: id,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Role:     strings.TrimSpace(req.Role),
		Category: req.Category,
	}
	if existing, err := s.profileSvc.Get(r.Context(), id); err == nil {
		p.Rating = existing.Rating
		p.RatingCount = existing.RatingCount
		p.Status = existing.Status
		p.CreatedAt = existing.CreatedAt
	}
	if err := s.profileSvc.Upsert(r.Context(), p); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"profile": p})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	p, err := s.profileSvc.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"profile": p})
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "role query parameter required")
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	var (
		profiles []*identity.Profile
		err      error
	)
	if role == "provider" && category != "" {
		profiles, err = s.profileSvc.ListProvidersByCategory(r.Context(), category)
	} else {
		profiles, err = s.profileSvc.ListByRole(r.Context(), role)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"profiles": profiles})
}

func (s *Server) listRatings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	ratings, err := s.profileSvc.Ratings(r.Context(), id, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ratings": ratings})
}
