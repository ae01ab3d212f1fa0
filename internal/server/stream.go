package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type revisionEventPayload struct {
	Name      string `json:"name"`
	Action    string `json:"action"`
	Result    string `json:"result,omitempty"`
	Hash      string `json:"hash,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// handleDefinitionEvents streams revision changes for one name as server-sent events.
// A heartbeat is written immediately so clients know the subscription is live.
func (h *httpHandler) handleDefinitionEvents(c *gin.Context) {
	name, ok := h.bindName(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, name.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.SSEvent(realtimeEventHeartbeat, h.heartbeat())
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, revisionEventPayload{
				Name:      message.Name,
				Action:    message.Action,
				Result:    message.Result,
				Hash:      message.Hash,
				Timestamp: message.Timestamp.Format(time.RFC3339Nano),
				Source:    realtimeSourceBackend,
			})
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, h.heartbeat())
			return true
		}
	})
}

func (h *httpHandler) heartbeat() heartbeatPayload {
	return heartbeatPayload{
		Timestamp: h.clock().UTC().Format(time.RFC3339Nano),
		Source:    realtimeSourceBackend,
	}
}
