package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Server is the WebSocket front door: it owns the live connections and the
// identity-to-connection binding the room service broadcasts through.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	byPlayer    map[string]*Connection
	register    chan *Connection
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	httpServer  *http.Server
	roomService *RoomService
}

// NewServer creates a new WebSocket server listening on addr.
func NewServer(addr string, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		byPlayer:    make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	return s
}

// SetRoomService wires the room service the server routes messages into.
func (s *Server) SetRoomService(roomService *RoomService) {
	s.roomService = roomService
}

// Start runs the connection lifecycle loop and serves until Stop.
func (s *Server) Start() error {
	go s.run()

	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down, closing all connections.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close() // Ignore close errors during shutdown
	}
	s.mu.Unlock()

	return s.httpServer.Shutdown(context.Background())
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "total", total)

		case conn := <-s.unregister:
			playerID := conn.GetPlayer()
			dropped := false

			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				// Only treat this as a player disconnect if no newer
				// connection has taken over the identity.
				if playerID != "" && s.byPlayer[playerID] == conn {
					delete(s.byPlayer, playerID)
					dropped = true
				}
				_ = conn.Close() // Ignore close errors during unregistration
			}
			total := len(s.connections)
			s.mu.Unlock()

			if dropped && s.roomService != nil {
				s.roomService.Disconnect(playerID)
			}
			s.logger.Info("Client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s, s.logger, s.roomService)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister <- client
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

// BindPlayer routes an identity to a live connection, superseding (and
// closing) any previous connection for the same identity.
func (s *Server) BindPlayer(playerID string, conn *Connection) {
	s.mu.Lock()
	old := s.byPlayer[playerID]
	s.byPlayer[playerID] = conn
	s.mu.Unlock()

	if old != nil && old != conn {
		_ = old.Close()
	}
}

// UnbindPlayer drops the identity binding if it still points at conn.
func (s *Server) UnbindPlayer(playerID string, conn *Connection) {
	s.mu.Lock()
	if s.byPlayer[playerID] == conn {
		delete(s.byPlayer, playerID)
	}
	s.mu.Unlock()
}

// SendToPlayer sends a message to the connection bound to a player identity.
func (s *Server) SendToPlayer(playerID string, msg *Message) error {
	s.mu.RLock()
	conn := s.byPlayer[playerID]
	s.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("player not connected: %s", playerID)
	}
	return conn.SendMessage(msg)
}
