package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fieldmatch/fieldmatch/internal/domain/notice"
)

// streamEvents streams the session's notices over SSE until the client
// disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	client := notice.NewClient(c.SessionKey(), c.Identity())
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client.ClientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case n := <-client.NoticeChan:
			if n == nil {
				return
			}
			payload, _ := json.Marshal(n)
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
