package events

import (
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const defaultHeartbeat = 15 * time.Second

// StreamOptions controls how a subscription is written as Server-Sent Events.
type StreamOptions struct {
	// Initial events are written before any live event.
	Initial []Event
	// StopWhen ends the stream after the matching event has been written.
	StopWhen func(Event) bool
	// Skip drops a live event before it is written.
	Skip      func(Event) bool
	Heartbeat time.Duration
}

// Stream writes the subscription to the client as text/event-stream until the
// client goes away, the subscription closes or StopWhen matches. The
// subscription is closed on return.
func Stream(c *gin.Context, sub *Subscription, opts StreamOptions) {
	defer sub.Close()

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	h := c.Writer.Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	for _, ev := range opts.Initial {
		writeEvent(c, ev)
		if opts.StopWhen != nil && opts.StopWhen(ev) {
			c.Writer.Flush()
			return
		}
	}
	c.Writer.Flush()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if opts.Skip != nil && opts.Skip(ev) {
				continue
			}
			writeEvent(c, ev)
			c.Writer.Flush()
			if opts.StopWhen != nil && opts.StopWhen(ev) {
				return
			}
		case t := <-ticker.C:
			c.Render(-1, sse.Event{Event: "heartbeat", Data: gin.H{"ts": t.UTC().Format(time.RFC3339)}})
			c.Writer.Flush()
		}
	}
}

func writeEvent(c *gin.Context, ev Event) {
	c.Render(-1, sse.Event{
		Id:    ev.ID,
		Event: string(ev.EventType),
		Data:  ev,
	})
}
