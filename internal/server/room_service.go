package server

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/lox/blackjackd/internal/game"
	"github.com/lox/blackjackd/internal/stats"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomGone     = errors.New("room no longer exists")
	ErrNotAMember   = errors.New("identity is not a member of this room")
)

// Sender delivers a message to the live connection bound to a player
// identity. The websocket server implements it; tests substitute a fake.
type Sender interface {
	SendToPlayer(playerID string, msg *Message) error
}

// Settings carries the room engine's tunables.
type Settings struct {
	MaxSeats       int
	StartingChips  int
	AutoStandDelay time.Duration // active player disconnected mid-turn
	GracePeriod    time.Duration // disconnected player permanently removed
	DealPause      time.Duration // between initial-deal card broadcasts
	DealerPause    time.Duration // between dealer-turn card broadcasts
}

// DefaultSettings returns the standard table rules and pacing.
func DefaultSettings() Settings {
	return Settings{
		MaxSeats:       7,
		StartingChips:  1000,
		AutoStandDelay: 5 * time.Second,
		GracePeriod:    45 * time.Second,
		DealPause:      300 * time.Millisecond,
		DealerPause:    600 * time.Millisecond,
	}
}

// RoomService is the connection manager: it maps identities to rooms, applies
// every inbound operation to room state under the room's lock, and broadcasts
// a full room snapshot after each mutation. All timing runs on the injected
// clock so tests can drive it synthetically.
type RoomService struct {
	registry *Registry
	sender   Sender
	logger   *log.Logger
	clock    quartz.Clock
	settings Settings
	stats    *stats.Collector
}

// NewRoomService creates a room service. seed makes every shoe in the process
// reproducible.
func NewRoomService(sender Sender, logger *log.Logger, clock quartz.Clock, settings Settings, seed int64) *RoomService {
	return &RoomService{
		registry: NewRegistry(seed, logger),
		sender:   sender,
		logger:   logger.WithPrefix("rooms"),
		clock:    clock,
		settings: settings,
		stats:    stats.NewCollector(logger),
	}
}

// Registry exposes the room registry, mainly for tests and admin surfaces.
func (s *RoomService) Registry() *Registry {
	return s.registry
}

// Stats exposes the round statistics collector.
func (s *RoomService) Stats() *stats.Collector {
	return s.stats
}

// CreateRoom creates a room with the caller as host and first seat. Returns
// the room code and the caller's stable identity.
func (s *RoomService) CreateRoom(name string) (roomCode, playerID string, err error) {
	h := s.registry.CreateRoom(s.settings.MaxSeats)
	p := &game.Player{ID: uuid.NewString(), Name: name, Chips: s.settings.StartingChips}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Room.Seat(p); err != nil {
		return "", "", err
	}
	s.registry.BindMember(p.ID, h.Room.Code)
	s.logger.Info("Player created room", "room", h.Room.Code, "player", p.Name)
	return h.Room.Code, p.ID, nil
}

// Join seats a new player in an existing lobby. Returns the player's stable
// identity on success.
func (s *RoomService) Join(roomCode, name string) (string, error) {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return "", ErrRoomNotFound
	}
	p := &game.Player{ID: uuid.NewString(), Name: name, Chips: s.settings.StartingChips}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Room.Seat(p); err != nil {
		return "", err
	}
	s.registry.BindMember(p.ID, h.Room.Code)
	s.logger.Info("Player joined room", "room", roomCode, "player", name)
	return p.ID, nil
}

// Rejoin restores a disconnected player's seat. The player's hands and chips
// were preserved throughout, so no special mid-turn handling is needed.
func (s *RoomService) Rejoin(roomCode, playerID string) error {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return ErrRoomGone
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.Room.Player(playerID)
	if p == nil {
		return ErrNotAMember
	}
	s.stopTimersLocked(h, playerID)
	p.Disconnected = false
	s.registry.BindMember(playerID, roomCode)
	s.logger.Info("Player rejoined room", "room", roomCode, "player", p.Name)
	return nil
}

// BroadcastRoom pushes the current snapshot to every connected member. The
// connection layer calls this once a join or rejoin has bound the identity to
// its live connection, so the new member receives the state too.
func (s *RoomService) BroadcastRoom(roomCode string) {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s.broadcastLocked(h)
}

// StartGame begins the first betting phase. Host only.
func (s *RoomService) StartGame(roomCode, callerID string) error {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return ErrRoomNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Room.StartGame(callerID); err != nil {
		return err
	}
	s.broadcastLocked(h)
	return nil
}

// PlaceBet validates and records a bet, kicking off the deal once every
// connected player has bet.
func (s *RoomService) PlaceBet(roomCode, playerID string, amount int) error {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return ErrRoomNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dealing {
		return game.ErrWrongPhase
	}
	if err := h.Room.PlaceBet(playerID, amount); err != nil {
		return err
	}
	s.broadcastLocked(h)
	s.maybeStartDealLocked(h)
	return nil
}

// Action applies an in-round player action to the given hand. Validation
// failures leave the room untouched and cause no broadcast.
func (s *RoomService) Action(roomCode, playerID, action string, handIdx int) error {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return ErrRoomNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	switch action {
	case "hit":
		err = h.Room.Hit(playerID, handIdx)
	case "stand":
		err = h.Room.Stand(playerID, handIdx)
	case "double":
		err = h.Room.Double(playerID, handIdx)
	case "split":
		err = h.Room.SplitHand(playerID, handIdx)
	default:
		err = game.ErrInvalidAction
	}
	if err != nil {
		return err
	}

	s.broadcastLocked(h)
	s.maybeStartDealerLocked(h)
	return nil
}

// NextRound moves results back to betting, purging any player whose
// disconnect grace period is still running. Host only.
func (s *RoomService) NextRound(roomCode, callerID string) error {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return ErrRoomNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	removed, err := h.Room.NextRound(callerID)
	if err != nil {
		return err
	}
	for _, p := range removed {
		s.stopTimersLocked(h, p.ID)
		s.registry.UnbindMember(p.ID)
		s.logger.Info("Purged disconnected player", "room", roomCode, "player", p.Name)
	}
	if h.Room.Empty() {
		s.registry.Remove(h.Room.Code)
		return nil
	}
	s.broadcastLocked(h)
	return nil
}

// Leave removes a player immediately: explicit departure rather than a
// connection drop.
func (s *RoomService) Leave(roomCode, playerID string) error {
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return ErrRoomNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s.removeLocked(h, playerID)
	return nil
}

// Disconnect marks a player disconnected and starts the two recovery timers:
// a short auto-stand if the room is waiting on their turn, and the long grace
// period after which the seat is forfeited.
func (s *RoomService) Disconnect(playerID string) {
	roomCode, ok := s.registry.MemberRoom(playerID)
	if !ok {
		return
	}
	h, ok := s.registry.Lookup(roomCode)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.Room.Player(playerID)
	if p == nil || p.Disconnected {
		return
	}
	p.Disconnected = true
	s.logger.Info("Player disconnected", "room", roomCode, "player", p.Name)

	t := &disconnectTimers{}
	if h.Room.Phase == game.PhasePlayerTurns && h.Room.ActiveID == playerID {
		t.autoStand = s.clock.AfterFunc(s.settings.AutoStandDelay, func() {
			s.autoStandFired(h, playerID, t)
		})
	}
	t.grace = s.clock.AfterFunc(s.settings.GracePeriod, func() {
		s.graceFired(h, playerID, t)
	})
	h.timers[playerID] = t

	s.broadcastLocked(h)
	// A room waiting only on this player's bet can now deal.
	s.maybeStartDealLocked(h)
}

// autoStandFired is the short disconnect timer: stand the player's live hands
// and move on so one dropped connection cannot stall the room. Conditions are
// rechecked because arbitrary time may have passed.
func (s *RoomService) autoStandFired(h *RoomHandle, playerID string, t *disconnectTimers) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timers[playerID] != t {
		return // reconnected or removed before the timer fired
	}
	p := h.Room.Player(playerID)
	if p == nil || !p.Disconnected {
		return
	}
	if h.Room.Phase != game.PhasePlayerTurns || h.Room.ActiveID != playerID {
		return
	}

	s.logger.Info("Auto-standing disconnected player", "room", h.Room.Code, "player", p.Name)
	h.Room.AutoStand(playerID)
	s.broadcastLocked(h)
	s.maybeStartDealerLocked(h)
}

// graceFired is the long disconnect timer: the player is permanently removed.
func (s *RoomService) graceFired(h *RoomHandle, playerID string, t *disconnectTimers) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timers[playerID] != t {
		return
	}
	p := h.Room.Player(playerID)
	if p == nil || !p.Disconnected {
		return
	}

	s.logger.Info("Disconnect grace period expired", "room", h.Room.Code, "player", p.Name)
	s.removeLocked(h, playerID)
}

// removeLocked takes a player out of the room, destroying the room when the
// roster empties. Callers hold h.mu.
func (s *RoomService) removeLocked(h *RoomHandle, playerID string) {
	s.stopTimersLocked(h, playerID)
	if !h.Room.RemovePlayer(playerID) {
		return
	}
	s.registry.UnbindMember(playerID)

	if h.Room.Empty() {
		s.registry.Remove(h.Room.Code)
		return
	}

	s.broadcastLocked(h)
	s.maybeStartDealLocked(h)   // departure may complete the betting round
	s.maybeStartDealerLocked(h) // or hand the turn to the dealer
}

// stopTimersLocked cancels any pending disconnect timers for the player.
// Stopping a timer that already fired is a no-op; the fired callback bails
// out when it finds its map entry replaced.
func (s *RoomService) stopTimersLocked(h *RoomHandle, playerID string) {
	t, ok := h.timers[playerID]
	if !ok {
		return
	}
	delete(h.timers, playerID)
	if t.autoStand != nil {
		t.autoStand.Stop()
	}
	if t.grace != nil {
		t.grace.Stop()
	}
}

// maybeStartDealLocked launches the paced initial deal once all bets are in.
func (s *RoomService) maybeStartDealLocked(h *RoomHandle) {
	if h.dealing || !h.Room.AllBetsIn() {
		return
	}
	h.dealing = true
	go s.runDeal(h)
}

// maybeStartDealerLocked launches the paced dealer turn.
func (s *RoomService) maybeStartDealerLocked(h *RoomHandle) {
	if h.dealer || h.Room.Phase != game.PhaseDealerTurn {
		return
	}
	h.dealer = true
	go s.runDealer(h)
}

// runDeal deals two cards to each betting player and the dealer, one card per
// broadcast, then resolves naturals and enters the next phase. Runs off the
// caller's goroutine; the room lock is only held per step so disconnects and
// departures interleave safely.
func (s *RoomService) runDeal(h *RoomHandle) {
	h.mu.Lock()
	if h.Room.Phase != game.PhaseBetting {
		h.dealing = false
		h.mu.Unlock()
		return
	}
	h.Room.BeginDeal()
	order := h.Room.DealOrder()
	h.mu.Unlock()

	for round := 0; round < 2; round++ {
		for _, id := range order {
			h.mu.Lock()
			h.Room.DealTo(id)
			s.broadcastLocked(h)
			h.mu.Unlock()
			s.pause(s.settings.DealPause)
		}
		h.mu.Lock()
		h.Room.DealToDealer()
		s.broadcastLocked(h)
		h.mu.Unlock()
		s.pause(s.settings.DealPause)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	phase := h.Room.ResolveDeal()
	h.dealing = false
	s.broadcastLocked(h)
	if phase == game.PhaseResults {
		s.recordRoundLocked(h)
	}
	s.maybeStartDealerLocked(h)
}

// runDealer draws for the dealer one observable card at a time (H17), then
// settles. The dealer-turn phase itself blocks any player action while this
// sequence is in flight.
func (s *RoomService) runDealer(h *RoomHandle) {
	for {
		h.mu.Lock()
		if h.Room.Phase != game.PhaseDealerTurn {
			h.dealer = false
			h.mu.Unlock()
			return
		}
		if !h.Room.DealerNeedsCard() {
			h.Room.FinishRound()
			h.dealer = false
			s.broadcastLocked(h)
			s.recordRoundLocked(h)
			h.mu.Unlock()
			return
		}
		h.Room.DealerDraw()
		s.broadcastLocked(h)
		h.mu.Unlock()
		s.pause(s.settings.DealerPause)
	}
}

// recordRoundLocked hands the settled round to the statistics sink,
// fire-and-forget.
func (s *RoomService) recordRoundLocked(h *RoomHandle) {
	outcomes := make([]stats.HandOutcome, 0, len(h.Room.Players))
	for _, p := range h.Room.Players {
		for _, hand := range p.Hands {
			outcomes = append(outcomes, stats.HandOutcome{
				PlayerID:  p.ID,
				Name:      p.Name,
				Result:    hand.Result.String(),
				Blackjack: hand.Status == game.StatusBlackjack,
				Wager:     hand.Wager,
			})
		}
	}
	roomCode := h.Room.Code
	go s.stats.RecordRound(roomCode, outcomes)
}

// broadcastLocked sends the full room snapshot to every connected member.
// Broadcasts happen strictly after each mutation, so clients observe phase
// transitions in room order. Callers hold h.mu.
func (s *RoomService) broadcastLocked(h *RoomHandle) {
	msg, err := NewMessage(MessageTypeRoomState, RoomStateFromGame(h.Room))
	if err != nil {
		s.logger.Error("Failed to build room snapshot", "error", err)
		return
	}
	for _, p := range h.Room.Players {
		if p.Disconnected {
			continue
		}
		if err := s.sender.SendToPlayer(p.ID, msg); err != nil {
			s.logger.Debug("Failed to send snapshot", "player", p.ID, "error", err)
		}
	}
}

// pause blocks for d on the service clock. Cooperative wait, not blocking
// I/O: nothing holds the room lock while paused.
func (s *RoomService) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	fired := make(chan struct{})
	timer := s.clock.AfterFunc(d, func() {
		close(fired)
	})
	defer timer.Stop()
	<-fired
}
