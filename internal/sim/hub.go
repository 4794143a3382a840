package sim

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"aviator-client/internal/protocol"
)

// Session is one connected player socket.
type Session struct {
	conn   *websocket.Conn
	userID int64
	mu     sync.Mutex
}

// Send marshals the event with its type tag and writes it to this session
// only. Used for correlated replies (pong, game_state, cashout results).
func (s *Session) Send(ev protocol.Event) {
	data, err := protocol.Marshal(ev)
	if err != nil {
		log.Printf("[SIM] Marshal error: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[SIM] Write error for user %d: %v", s.userID, err)
	}
}

// Hub fans game events out to every connected session.
type Hub struct {
	sessions   map[*Session]bool
	broadcast  chan protocol.Event
	register   chan *Session
	unregister chan *Session
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan protocol.Event, 100),
		register:   make(chan *Session),
		unregister: make(chan *Session),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case session := <-h.register:
			h.mu.Lock()
			h.sessions[session] = true
			total := len(h.sessions)
			h.mu.Unlock()
			log.Printf("[SIM] Player %d connected (total: %d)", session.userID, total)

		case session := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[session]; ok {
				delete(h.sessions, session)
				session.conn.Close()
			}
			total := len(h.sessions)
			h.mu.Unlock()
			log.Printf("[SIM] Player %d disconnected (total: %d)", session.userID, total)

		case ev := <-h.broadcast:
			h.mu.RLock()
			for session := range h.sessions {
				go session.Send(ev)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event for every session. Never blocks the game loop;
// a full queue drops the event.
func (h *Hub) Broadcast(ev protocol.Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Println("[SIM] Broadcast queue full, dropping event")
	}
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Register(conn *websocket.Conn, userID int64) *Session {
	session := &Session{conn: conn, userID: userID}
	h.register <- session
	return session
}

func (h *Hub) Unregister(session *Session) {
	h.unregister <- session
}
