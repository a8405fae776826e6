package httpx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
)

// SessionEvents streams session changes as Server-Sent Events.
type SessionEvents struct {
	Sessions  SessionService
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// Stream handles GET /auth/session/events. The current session is sent first,
// then one "session" event per applied identity change.
func (h *SessionEvents) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	ctx := r.Context()
	updates := h.Sessions.Watch(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.send(w, rc, h.Sessions.Current()); err != nil {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(w, rc, id); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *SessionEvents) send(w http.ResponseWriter, rc *http.ResponseController, id domainauth.Identity) error {
	state := domainauth.StateIdle
	if !id.IsZero() {
		state = domainauth.StateActive
	}
	payload, err := json.Marshal(newSessionResponse(id, state))
	if err != nil {
		h.logger().Error("encode session event", slog.Any("error", err))
		return err
	}
	if _, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *SessionEvents) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
