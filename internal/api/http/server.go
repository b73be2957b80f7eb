// Package httpapi exposes the matching core over HTTP: session lifecycle
// commands, candidate browsing, the negotiation and engagement operations,
// profile management, and a per-session SSE notice stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appEngagement "github.com/fieldmatch/fieldmatch/internal/application/engagement"
	appNegotiation "github.com/fieldmatch/fieldmatch/internal/application/negotiation"
	appProfile "github.com/fieldmatch/fieldmatch/internal/application/profile"
	appSession "github.com/fieldmatch/fieldmatch/internal/application/session"
	"github.com/fieldmatch/fieldmatch/internal/domain/booking"
	"github.com/fieldmatch/fieldmatch/internal/domain/engagement"
	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
	"github.com/fieldmatch/fieldmatch/internal/domain/rating"
	"github.com/fieldmatch/fieldmatch/internal/domain/request"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions    *appSession.Manager
	profileSvc  *appProfile.Service
	bookingRepo booking.Repository
	sseHub      *sse.Hub
}

func NewServer(sessions *appSession.Manager, profileSvc *appProfile.Service, bookingRepo booking.Repository, sseHub *sse.Hub) *Server {
	return &Server{
		sessions:    sessions,
		profileSvc:  profileSvc,
		bookingRepo: bookingRepo,
		sseHub:      sseHub,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Route("/{sessionKey}", func(r chi.Router) {
				r.Delete("/", s.stopSession)
				r.Post("/share", s.startSharing)
				r.Delete("/share", s.stopSharing)
				r.Post("/position", s.pushPosition)
				r.Post("/availability", s.setAvailability)
				r.Get("/candidates", s.listCandidates)
				r.Get("/state", s.sessionState)
				r.Get("/counterpart", s.counterpartPosition)
				r.Post("/request", s.sendRequest)
				r.Post("/accept", s.acceptRequest)
				r.Post("/reject", s.rejectRequest)
				r.Post("/cancel", s.cancelAction)
				r.Post("/finish", s.finishJob)
				r.Post("/settle", s.settleJob)
				r.Post("/rating", s.rateProvider)
				r.Get("/events", s.streamEvents)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.listProfiles)
			r.Put("/{identity}", s.upsertProfile)
			r.Get("/{identity}", s.getProfile)
			r.Get("/{identity}/ratings", s.listRatings)
			r.Get("/{identity}/bookings", s.listProviderBookings)
		})

		r.Get("/bookings/{bookingID}", s.getBooking)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
		"time":     time.Now().UTC(),
	})
}

// coordinator resolves the URL session key to its live coordinator, writing
// the 404 itself when the session is unknown.
func (s *Server) coordinator(w http.ResponseWriter, r *http.Request) *appSession.Coordinator {
	key := chi.URLParam(r, "sessionKey")
	c, err := s.sessions.Get(key)
	if err != nil {
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "no live session for key")
		return nil
	}
	return c
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appNegotiation.ErrSlotTaken):
		respondError(w, http.StatusConflict, "SLOT_TAKEN", err.Error())
	case errors.Is(err, appNegotiation.ErrRequestOutstanding):
		respondError(w, http.StatusConflict, "REQUEST_OUTSTANDING", err.Error())
	case errors.Is(err, engagement.ErrAlreadyEngaged):
		respondError(w, http.StatusConflict, "ALREADY_ENGAGED", err.Error())
	case errors.Is(err, appNegotiation.ErrNoRequest),
		errors.Is(err, appEngagement.ErrNoEngagement),
		errors.Is(err, appEngagement.ErrNothingToRate):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, appNegotiation.ErrNotPending),
		errors.Is(err, appEngagement.ErrNotSettleable),
		errors.Is(err, request.ErrInvalidTransition),
		errors.Is(err, engagement.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, identity.ErrProfileIncomplete):
		respondError(w, http.StatusPreconditionFailed, "PROFILE_INCOMPLETE", err.Error())
	case errors.Is(err, identity.ErrProfileNotFound):
		respondError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", err.Error())
	case errors.Is(err, rating.ErrInvalidScore):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, appSession.ErrCounterpartUnavailable):
		respondError(w, http.StatusNotFound, "COUNTERPART_UNAVAILABLE", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
