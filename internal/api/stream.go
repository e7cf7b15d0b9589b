package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const maxStreamConns = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is handled by the CORS layer; the stream is read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var streamConns int32

// handleStream upgrades to a WebSocket and pushes the live event feed.
// Sends a recent-event catch-up first, then streams until the client goes
// away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&streamConns, 1)
	if current > maxStreamConns {
		atomic.AddInt32(&streamConns, -1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&streamConns, -1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.Core.Events.Subscribe()
	defer cancel()

	for _, e := range s.Core.RecentEvents(50) {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	slog.Info("stream client connected", "remote", r.RemoteAddr)

	// Reader goroutine only to detect the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			slog.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}
