package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/scholara/internal/analytics/notify"
)

// StreamClassEvents streams analytics notifications for one class as server-sent events.
// The id "*" subscribes to every class.
func (s *Server) StreamClassEvents(c *gin.Context) {
	if s.classEvents == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	classKey := strings.TrimSpace(c.Param("id"))
	if classKey != notify.AllClasses {
		if _, err := snowflake.ParseString(classKey); err != nil {
			AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
			return
		}
	}

	subscription, backlog, err := s.classEvents.Subscribe(classKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeClassEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-subscription.Events():
			if !ok {
				return
			}
			if err := writeClassEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeClassEvent(w io.Writer, event notify.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", strings.ToLower(string(event.Type)), data)
	return err
}
