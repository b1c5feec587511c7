package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventBuffer       = 32
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams job events to a websocket client until the client
// goes away or the server stops
func (s *Server) handleEvents(c *gin.Context) {
	s.mu.Lock()
	if !s.running && s.httpServer != nil {
		s.mu.Unlock()
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "Server stopping"})
		return
	}
	quit := s.quit
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	// Subscribed before the handshake completes so a connected client
	// sees every later event.
	events, unsubscribe := s.opts.Events.Subscribe(eventBuffer)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("Websocket upgrade failed for %s: %v", c.ClientIP(), err)
		return
	}
	defer conn.Close()

	client := c.ClientIP()
	s.logger.Printf("Event stream opened for %s", client)
	defer s.logger.Printf("Event stream closed for %s", client)

	// Incoming messages are discarded; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Printf("Event write to %s failed: %v", client, err)
				return
			}
		case <-gone:
			return
		case <-quit:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}
