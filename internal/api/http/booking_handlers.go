package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")
	b, err := s.bookingRepo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if b == nil {
		respondError(w, http.StatusNotFound, "BOOKING_NOT_FOUND", "no booking with id "+id)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// listProviderBookings returns a provider's booking history, newest first.
func (s *Server) listProviderBookings(w http.ResponseWriter, r *http.Request) {
	providerIdentity := chi.URLParam(r, "identity")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be a positive integer")
			return
		}
		limit = n
	}
	bookings, err := s.bookingRepo.ListByProvider(r.Context(), providerIdentity, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
	})
}
