package api

import (
	"net/http"
	"time"

	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/gorilla/websocket"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
	feedPongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleFeed streams the store state to a websocket client: once on connect
// and again after every change. A slow client only sees the latest state,
// and never a state older than one it was already sent.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logError("WebSocket upgrade failed: %v", err)

		return
	}
	defer conn.Close()

	updates := make(chan store.State, 1)
	cancel := s.store.Subscribe(func(state store.State) {
		offerLatest(updates, state)
	})
	defer cancel()

	offerLatest(updates, s.store.State())

	closed := make(chan struct{})

	go readUntilClosed(conn, closed)

	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	var cursor feedCursor

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case state := <-updates:
			if !cursor.advance(state) {
				continue
			}

			err = writeState(conn, state)
			if err != nil {
				return
			}
		case <-ticker.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout))
			if err != nil {
				return
			}
		}
	}
}

// feedCursor remembers the revision last sent to a client.
type feedCursor struct {
	sent    uint64
	started bool
}

// advance reports whether state is newer than anything sent so far and,
// if so, records it as sent.
func (c *feedCursor) advance(state store.State) bool {
	if c.started && state.Revision <= c.sent {
		return false
	}

	c.sent = state.Revision
	c.started = true

	return true
}

// offerLatest leaves the newest of state and any pending state in updates
// without blocking.
func offerLatest(updates chan store.State, state store.State) {
	for {
		select {
		case updates <- state:
			return
		default:
		}

		select {
		case pending := <-updates:
			if pending.Revision > state.Revision {
				state = pending
			}
		default:
		}
	}
}

func writeState(conn *websocket.Conn, state store.State) error {
	err := conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	if err != nil {
		return err
	}

	return conn.WriteJSON(NewStateView(state))
}

// readUntilClosed discards client messages and closes done when the
// connection ends.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
	}
}
