package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// handleStatusStream pushes the status snapshot over a WebSocket once a
// second until the client goes away. One immediate push lets clients
// render without waiting out the first tick.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	slog.Info("status stream connected", "id", id)
	defer slog.Info("status stream disconnected", "id", id)

	// We never expect inbound frames, but reading is how the close
	// handshake surfaces.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		}
	}
}
