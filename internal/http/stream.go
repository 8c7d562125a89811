package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/alexishuch/availability-poll/internal/service/feed"
	"github.com/alexishuch/availability-poll/internal/ws"
)

// snapshot loads the current common slots for a new subscriber. A missing
// poll is reported before the stream starts.
func (r *Router) snapshot(w http.ResponseWriter, req *http.Request, pollID string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(req.Context(), streamSnapshotLimit)
	defer cancel()
	data, err := r.feed.Snapshot(ctx, pollID)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return nil, false
	}
	return data, true
}

func (r *Router) handlePollEvents(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	pollID := req.PathValue("id")
	initial, ok := r.snapshot(w, req, pollID)
	if !ok {
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, flusher, feed.EventUpdate, r.logger)
	if err := client.Send(initial); err != nil {
		return
	}
	hub := r.feed.Hub()
	hub.Register(pollID, client)
	defer func() {
		hub.Unregister(pollID, client)
		client.Close()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handlePollWS(w http.ResponseWriter, req *http.Request) {
	pollID := req.PathValue("id")
	initial, ok := r.snapshot(w, req, pollID)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "poll_id", pollID, "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if err := client.Send(initial); err != nil {
		client.Close()
		return
	}
	hub := r.feed.Hub()
	hub.Register(pollID, client)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		defer func() {
			hub.Unregister(pollID, client)
			client.Close()
		}()
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-closed:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			}
		}
	}()
}
