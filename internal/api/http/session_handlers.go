package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
)

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity    string `json:"identity"`
		Role        string `json:"role"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.Identity) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "identity required")
		return
	}
	role, err := presence.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	c, err := s.sessions.Start(req.Identity, role, req.DisplayName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionKey": c.SessionKey(),
		"identity":   c.Identity(),
		"role":       c.Role(),
	})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "sessionKey")
	if err := s.sessions.Stop(r.Context(), key); err != nil {
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stopped": true})
}

func (s *Server) startSharing(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	c.StartSharing()
	respondJSON(w, http.StatusOK, map[string]interface{}{"sharing": true})
}

func (s *Server) stopSharing(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	if err := c.StopSharing(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sharing": false})
}

func (s *Server) pushPosition(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	c.PushPosition(presence.Position{Lat: req.Lat, Lng: req.Lng})
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

func (s *Server) setAvailability(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		Available bool `json:"available"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := c.SetAvailable(r.Context(), req.Available); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"available": req.Available})
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	candidates, err := c.Candidates(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"candidates": candidates})
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presence":   c.Presence(),
		"outgoing":   c.Outgoing(),
		"incoming":   c.Incoming(),
		"engagement": c.Engagement(),
	})
}

func (s *Server) counterpartPosition(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	pos, err := c.CounterpartPosition()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"position": pos})
}

func (s *Server) sendRequest(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		ProviderKey string `json:"providerKey"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.ProviderKey) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "providerKey required")
		return
	}
	rec, err := c.SendRequest(r.Context(), req.ProviderKey)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"request": rec})
}

func (s *Server) acceptRequest(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		ServiceType string  `json:"serviceType"`
		Price       float64 `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	eng, err := c.Accept(r.Context(), req.ServiceType, req.Price)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"engagement": eng})
}

func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	if err := c.Reject(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rejected": true})
}

func (s *Server) cancelAction(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := c.Cancel(r.Context(), req.Reason); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true})
}

func (s *Server) finishJob(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	if err := c.Finish(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"finished": true})
}

func (s *Server) settleJob(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := c.Settle(r.Context(), req.Amount); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"settled": true})
}

func (s *Server) rateProvider(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	var req struct {
		Score   int    `json:"score"`
		Comment string `json:"comment"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := c.Rate(r.Context(), req.Score, req.Comment); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rated": true})
}
