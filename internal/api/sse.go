package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/attest"
	"github.com/MJE43/score-attest/internal/store"
)

// GET /api/v1/proofs/{id}/events streams progress as Server-Sent Events.
// The stream ends after the completing event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, _, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorHandler.HandleError(w, r, fmt.Errorf("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v interface{}) bool {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("failed to encode event", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send("connected", connectedEvent{Connected: true, VerificationID: id, Message: "connected to verification stream"}) {
		return
	}

	// history for finished records may already be gone from the hub
	if rec.Status.Terminal() {
		send(string(terminalStage(rec.Status)), finalEvent(rec))
		return
	}

	events, cancel := s.svc.Hub().Subscribe(id)
	defer cancel()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !send(string(ev.Stage), ev) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		}
	}
}

func terminalStage(status store.Status) attest.Stage {
	if status == store.StatusFailed {
		return attest.StageFailed
	}
	return attest.StageStored
}

func finalEvent(rec *store.Record) attest.Event {
	ev := attest.Event{
		VerificationID: rec.ID,
		Stage:          terminalStage(rec.Status),
		Progress:       100,
		Completed:      true,
		Success:        rec.Status != store.StatusFailed,
		Attempt:        rec.Attempts,
		Time:           rec.UpdatedAt,
	}
	switch rec.Status {
	case store.StatusFailed:
		ev.Message = rec.Error
	case store.StatusExecuted:
		ev.Message = "executed without proof"
	default:
		ev.Message = "proof stored"
	}
	return ev
}
