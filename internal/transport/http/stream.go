package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// streamSSE subscribes to the live Bus for sessionID (created by startRun)
// and relays every event as `event: <type>\ndata: <json>\n\n`, matching the
// wire format the teacher's api/internalapi/events.go used, until the bus
// closes (run terminal) or the client disconnects. A disconnecting client
// only tears down this handler's subscription; the run itself keeps going
// against its own background context, per spec §5.
func (h *Handler) streamSSE(c echo.Context, sessionID string) error {
	bus, ok := h.runs.get(sessionID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	flusher, canFlush := resp.Writer.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(h.cfg.SSEHeartbeatInterval)
	defer heartbeat.Stop()
	idleDeadline := time.NewTimer(h.cfg.SSEIdleTimeout)
	defer idleDeadline.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idleDeadline.C:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(resp.Writer, ": heartbeat\n\n"); err != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
		case evt, open := <-events:
			if !open {
				return nil
			}
			if !idleDeadline.Stop() {
				<-idleDeadline.C
			}
			idleDeadline.Reset(h.cfg.SSEIdleTimeout)

			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp.Writer, "event: %s\n", evt.Type); err != nil {
				return nil
			}
			if _, err := fmt.Fprintf(resp.Writer, "data: %s\n\n", data); err != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
