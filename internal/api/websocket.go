package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"okx-exec/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage tags each pushed payload with its topic.
type streamMessage struct {
	Event events.Event `json:"event"`
	Data  any          `json:"data"`
}

// websocket pushes bars, finished orders and drift findings until the
// client goes away.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	bars, unsubBars := s.Bus.Subscribe(events.EventBar, 100)
	defer unsubBars()
	orders, unsubOrders := s.Bus.Subscribe(events.EventOrderTerminal, 100)
	defer unsubOrders()
	drift, unsubDrift := s.Bus.Subscribe(events.EventPositionDrift, 10)
	defer unsubDrift()

	// Reads only detect the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		var msg streamMessage
		select {
		case <-closed:
			return
		case v := <-bars:
			msg = streamMessage{Event: events.EventBar, Data: v}
		case v := <-orders:
			msg = streamMessage{Event: events.EventOrderTerminal, Data: v}
		case v := <-drift:
			msg = streamMessage{Event: events.EventPositionDrift, Data: v}
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.WithError(err).Debug("ws write failed")
			return
		}
	}
}
