package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const eventKeepAlive = 25 * time.Second

// handleEvents streams published events as Server-Sent Events until the
// client disconnects.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusNotImplemented, errors.New("event stream disabled"))
		return
	}
	rc := http.NewResponseController(w)

	ctx := r.Context()
	events, cancel, err := a.events.Subscribe(ctx)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		a.logger.WarnContext(ctx, "event stream flush unsupported", slog.Any("error", err))
		return
	}

	ticker := time.NewTicker(eventKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				a.logger.WarnContext(ctx, "event encode failed", slog.String("event", event.Type), slog.Any("error", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
