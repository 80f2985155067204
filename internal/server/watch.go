package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/askmycourse/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

const watchWriteTimeout = 10 * time.Second

// handleWatchLectures pushes the lecture list over a websocket each time it changes.
// The current list is sent right after the upgrade.
func (s *Server) handleWatchLectures(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Debug("lecture watcher connected", "remote", r.RemoteAddr)

	// Read loop: detects the client going away. Incoming messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("lecture watcher read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	var last []models.LectureSummary
	first := true
	for {
		lectures, err := s.lectures.List(r.Context())
		if err != nil {
			s.logger.Warn("lecture watcher list failed", "error", err)
		} else if first || !slices.Equal(last, lectures) {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(lectures); err != nil {
				s.logger.Debug("lecture watcher write failed", "error", err)
				return
			}
			last, first = lectures, false
		}

		select {
		case <-closed:
			s.logger.Debug("lecture watcher disconnected", "remote", r.RemoteAddr)
			return
		case <-s.watchCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}
