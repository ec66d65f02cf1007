package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ActivityStream broadcasts newly appended LogEntry records to every
// connected websocket client, a live-tail variant of get_activity_log.
// Grounded on the teacher's cmd/server/handlers/silence_ws.go
// WebSocketHub (register/unregister/broadcast channels driven by one
// goroutine), repurposed from silence events to LogEntry records.
type ActivityStream struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	broadcast  chan domain.LogEntry
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	logger *slog.Logger
}

// NewActivityStream constructs an ActivityStream. Run must be started in
// its own goroutine before any client connects.
func NewActivityStream(logger *slog.Logger) *ActivityStream {
	return &ActivityStream{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan domain.LogEntry, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed.
func (s *ActivityStream) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			s.closeAll()
			return
		case conn := <-s.register:
			s.mu.Lock()
			s.clients[conn] = true
			s.mu.Unlock()
		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				_ = conn.Close()
			}
			s.mu.Unlock()
		case entry := <-s.broadcast:
			s.mu.RLock()
			for conn := range s.clients {
				go s.send(conn, entry)
			}
			s.mu.RUnlock()
		}
	}
}

func (s *ActivityStream) send(conn *websocket.Conn, entry domain.LogEntry) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(entry); err != nil {
		s.logger.Warn("activity stream write failed", "error", err)
		s.unregister <- conn
	}
}

// Publish queues entry for broadcast to every connected client, dropping
// it rather than blocking if the broadcast channel is full.
func (s *ActivityStream) Publish(entry domain.LogEntry) {
	select {
	case s.broadcast <- entry:
	default:
		s.logger.Warn("activity stream broadcast channel full, dropping entry", "entry_id", entry.Id)
	}
}

func (s *ActivityStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
}

// ServeHTTP upgrades GET /activity/stream to a websocket connection and
// registers it with the hub.
func (s *ActivityStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("activity stream upgrade failed", "error", err)
		return
	}
	s.register <- conn
	go s.readPump(conn)
}

// readPump keeps the connection alive with pings and drains client
// frames (the protocol is server-to-client only).
func (s *ActivityStream) readPump(conn *websocket.Conn) {
	defer func() { s.unregister <- conn }()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
