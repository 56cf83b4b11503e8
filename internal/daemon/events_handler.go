package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// eventsHandler implements GET /v1/events: an application/x-ndjson stream
// of every eventbus.Event published from this point on, one JSON object
// per line, until the client disconnects (spec §4.6, §6).
//
// The response framing (Content-Type, json.NewEncoder per line) follows
// the teacher's watchHandler; the continuous subscribe-then-flush loop is
// grounded on grovetools-core's handleStreamState, adapted from
// Server-Sent-Events framing to newline-delimited JSON.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errStreamingUnsupported)
		return
	}

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				s.log.WithError(err).Warn("events stream encode failed")
				return
			}
			flusher.Flush()
		}
	}
}
