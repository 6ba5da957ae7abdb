package server

import (
	"encoding/json"
	"time"

	"github.com/lox/blackjackd/internal/deck"
	"github.com/lox/blackjackd/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type CreateRoomData struct {
	Name string `json:"name"`
}

type JoinRoomData struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

type RejoinRoomData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type StartGameData struct {
	RoomCode string `json:"roomCode"`
}

type PlaceBetData struct {
	RoomCode string `json:"roomCode"`
	Amount   int    `json:"amount"`
}

type PlayerActionData struct {
	RoomCode  string `json:"roomCode"`
	Action    string `json:"action"` // hit, stand, double, split
	HandIndex int    `json:"handIndex"`
}

type NextRoundData struct {
	RoomCode string `json:"roomCode"`
}

type LeaveRoomData struct {
	RoomCode string `json:"roomCode"`
}

// Server → Client Messages

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomCreatedData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type RoomJoinedData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type RoomRejoinedData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// HandState is the wire form of a single hand.
type HandState struct {
	Cards  []deck.Card `json:"cards"`
	Wager  int         `json:"wager"`
	Status string      `json:"status"`
	Result string      `json:"result,omitempty"`
	Total  int         `json:"total"`
	Soft   bool        `json:"soft"`
}

// PlayerSnapshot is the wire form of a seated player.
type PlayerSnapshot struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Chips        int         `json:"chips"`
	Hands        []HandState `json:"hands"`
	Bet          int         `json:"bet"`
	HasBet       bool        `json:"hasBet"`
	Done         bool        `json:"done"`
	Disconnected bool        `json:"disconnected"`
}

// RoomStateData is the full-room snapshot broadcast after every mutation.
// Clients render from the complete snapshot rather than reconciling diffs.
type RoomStateData struct {
	RoomCode       string           `json:"roomCode"`
	HostID         string           `json:"hostId"`
	Phase          string           `json:"phase"`
	Players        []PlayerSnapshot `json:"players"`
	Dealer         HandState        `json:"dealer"`
	ActivePlayerID string           `json:"activePlayerId,omitempty"`
}

// Helper functions to convert between internal types and message types

func HandStateFromGame(h *game.Hand) HandState {
	total, soft := h.Value()
	return HandState{
		Cards:  h.Cards,
		Wager:  h.Wager,
		Status: h.Status.String(),
		Result: h.Result.String(),
		Total:  total,
		Soft:   soft,
	}
}

func PlayerSnapshotFromGame(p *game.Player) PlayerSnapshot {
	hands := make([]HandState, len(p.Hands))
	for i, h := range p.Hands {
		hands[i] = HandStateFromGame(h)
	}
	return PlayerSnapshot{
		ID:           p.ID,
		Name:         p.Name,
		Chips:        p.Chips,
		Hands:        hands,
		Bet:          p.Bet,
		HasBet:       p.HasBet,
		Done:         p.Done,
		Disconnected: p.Disconnected,
	}
}

func RoomStateFromGame(r *game.Room) RoomStateData {
	players := make([]PlayerSnapshot, len(r.Players))
	for i, p := range r.Players {
		players[i] = PlayerSnapshotFromGame(p)
	}
	return RoomStateData{
		RoomCode:       r.Code,
		HostID:         r.HostID,
		Phase:          r.Phase.String(),
		Players:        players,
		Dealer:         HandStateFromGame(r.Dealer),
		ActivePlayerID: r.ActiveID,
	}
}
