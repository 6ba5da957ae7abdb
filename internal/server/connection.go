package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/blackjackd/internal/game"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn        *websocket.Conn
	send        chan *Message
	playerID    string
	roomCode    string
	server      *Server
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	closeOnce   sync.Once
	roomService *RoomService
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger, roomService *RoomService) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:        conn,
		send:        make(chan *Message, 256),
		server:      server,
		logger:      logger.WithPrefix("conn"),
		ctx:         ctx,
		cancel:      cancel,
		roomService: roomService,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

// SetSeat associates this connection with a player identity and room
func (c *Connection) SetSeat(playerID, roomCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.roomCode = roomCode
}

// GetPlayer returns the associated player identity
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// GetRoom returns the associated room code
func (c *Connection) GetRoom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client. Join, rejoin,
// and create failures are reported back with a reason; in-round rejections
// are silent no-ops since the last snapshot already told the client what is
// allowed.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	switch msg.Type {
	case MessageTypeCreateRoom:
		var data CreateRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse create room data")
			return
		}
		c.handleCreateRoom(data)

	case MessageTypeJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join room data")
			return
		}
		c.handleJoinRoom(data)

	case MessageTypeRejoinRoom:
		var data RejoinRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse rejoin room data")
			return
		}
		c.handleRejoinRoom(data)

	case MessageTypeStartGame:
		c.handleStartGame()

	case MessageTypePlaceBet:
		var data PlaceBetData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		c.handlePlaceBet(data)

	case MessageTypePlayerAction:
		var data PlayerActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return
		}
		c.handlePlayerAction(data)

	case MessageTypeNextRound:
		c.handleNextRound()

	case MessageTypeLeaveRoom:
		c.handleLeaveRoom()

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg) // Ignore send errors during error handling
}

func (c *Connection) handleCreateRoom(data CreateRoomData) {
	if data.Name == "" {
		c.sendError("invalid_name", "Display name required")
		return
	}
	if c.GetPlayer() != "" {
		c.sendError("already-seated", "Leave your current room first")
		return
	}

	roomCode, playerID, err := c.roomService.CreateRoom(data.Name)
	if err != nil {
		c.sendError(rejectionCode(err), err.Error())
		return
	}

	c.SetSeat(playerID, roomCode)
	c.server.BindPlayer(playerID, c)

	response, _ := NewMessage(MessageTypeRoomCreated, RoomCreatedData{
		RoomCode: roomCode,
		PlayerID: playerID,
	})
	_ = c.SendMessage(response) // Ignore send errors
	c.roomService.BroadcastRoom(roomCode)
}

func (c *Connection) handleJoinRoom(data JoinRoomData) {
	if data.Name == "" {
		c.sendError("invalid_name", "Display name required")
		return
	}
	if c.GetPlayer() != "" {
		c.sendError("already-seated", "Leave your current room first")
		return
	}

	playerID, err := c.roomService.Join(data.RoomCode, data.Name)
	if err != nil {
		c.sendError(rejectionCode(err), err.Error())
		return
	}

	c.SetSeat(playerID, data.RoomCode)
	c.server.BindPlayer(playerID, c)

	response, _ := NewMessage(MessageTypeRoomJoined, RoomJoinedData{
		RoomCode: data.RoomCode,
		PlayerID: playerID,
	})
	_ = c.SendMessage(response) // Ignore send errors
	c.roomService.BroadcastRoom(data.RoomCode)
}

func (c *Connection) handleRejoinRoom(data RejoinRoomData) {
	if err := c.roomService.Rejoin(data.RoomCode, data.PlayerID); err != nil {
		c.sendError(rejectionCode(err), err.Error())
		return
	}

	c.SetSeat(data.PlayerID, data.RoomCode)
	c.server.BindPlayer(data.PlayerID, c)

	response, _ := NewMessage(MessageTypeRoomRejoined, RoomRejoinedData{
		RoomCode: data.RoomCode,
		PlayerID: data.PlayerID,
	})
	_ = c.SendMessage(response) // Ignore send errors
	c.roomService.BroadcastRoom(data.RoomCode)
}

func (c *Connection) handleStartGame() {
	playerID, roomCode := c.GetPlayer(), c.GetRoom()
	if playerID == "" || roomCode == "" {
		return
	}
	if err := c.roomService.StartGame(roomCode, playerID); err != nil {
		c.logger.Debug("Start game rejected", "player", playerID, "error", err)
	}
}

func (c *Connection) handlePlaceBet(data PlaceBetData) {
	playerID, roomCode := c.GetPlayer(), c.GetRoom()
	if playerID == "" || roomCode == "" {
		return
	}
	if err := c.roomService.PlaceBet(roomCode, playerID, data.Amount); err != nil {
		c.logger.Debug("Bet rejected", "player", playerID, "amount", data.Amount, "error", err)
	}
}

func (c *Connection) handlePlayerAction(data PlayerActionData) {
	playerID, roomCode := c.GetPlayer(), c.GetRoom()
	if playerID == "" || roomCode == "" {
		return
	}
	if err := c.roomService.Action(roomCode, playerID, data.Action, data.HandIndex); err != nil {
		c.logger.Debug("Action rejected", "player", playerID, "action", data.Action, "error", err)
	}
}

func (c *Connection) handleNextRound() {
	playerID, roomCode := c.GetPlayer(), c.GetRoom()
	if playerID == "" || roomCode == "" {
		return
	}
	if err := c.roomService.NextRound(roomCode, playerID); err != nil {
		c.logger.Debug("Next round rejected", "player", playerID, "error", err)
	}
}

func (c *Connection) handleLeaveRoom() {
	playerID, roomCode := c.GetPlayer(), c.GetRoom()
	if playerID == "" || roomCode == "" {
		return
	}
	_ = c.roomService.Leave(roomCode, playerID)
	c.server.UnbindPlayer(playerID, c)
	c.SetSeat("", "")
}

// rejectionCode maps service errors to the wire reason strings.
func rejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room-not-found"
	case errors.Is(err, ErrRoomGone):
		return "room-gone"
	case errors.Is(err, ErrNotAMember):
		return "not-a-member"
	case errors.Is(err, game.ErrGameInProgress):
		return "game-in-progress"
	case errors.Is(err, game.ErrRoomFull):
		return "room-full"
	case errors.Is(err, game.ErrAlreadySeated):
		return "already-seated"
	default:
		return "rejected"
	}
}
