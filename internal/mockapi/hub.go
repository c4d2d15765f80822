package mockapi

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/parkwatch/console/internal/client"
	"go.uber.org/zap"
)

type subscriber struct {
	conn  *websocket.Conn
	token string
	send  chan []byte
}

func newSubscriber(conn *websocket.Conn, token string) *subscriber {
	s := &subscriber{
		conn:  conn,
		token: token,
		send:  make(chan []byte, 64),
	}
	go s.writePump()
	return s
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// hub fans live frames out to every connected stream client.
type hub struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[*subscriber]bool
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, subs: make(map[*subscriber]bool)}
}

func (h *hub) add(conn *websocket.Conn, token string) *subscriber {
	s := newSubscriber(conn, token)
	h.mu.Lock()
	h.subs[s] = true
	h.mu.Unlock()
	return s
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	if h.subs[s] {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// dropWhere disconnects every subscriber match selects.
func (h *hub) dropWhere(match func(*subscriber) bool) int {
	h.mu.Lock()
	var dropped []*subscriber
	for s := range h.subs {
		if match(s) {
			delete(h.subs, s)
			close(s.send)
			dropped = append(dropped, s)
		}
	}
	h.mu.Unlock()

	// Closing the socket makes the client see a drop even when the write
	// pump is idle.
	for _, s := range dropped {
		s.conn.Close()
	}
	return len(dropped)
}

func (h *hub) broadcast(tag client.EventTag, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(client.Envelope{Type: tag, Payload: raw})
	if err != nil {
		return err
	}
	h.broadcastRaw(data)
	return nil
}

func (h *hub) broadcastRaw(data []byte) {
	// Sends happen under the read lock so remove cannot close a channel
	// mid-send.
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("stream client too slow, disconnecting")
		h.remove(s)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
