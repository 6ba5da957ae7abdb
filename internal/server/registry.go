package server

import (
	rand "math/rand/v2"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/blackjackd/internal/game"
	"github.com/lox/blackjackd/internal/randutil"
)

// RoomHandle pairs a room with the mutex that serializes all access to it and
// the per-player disconnect timers. Everything under mu is room-owned state.
type RoomHandle struct {
	mu      sync.Mutex
	Room    *game.Room
	dealing bool
	dealer  bool
	timers  map[string]*disconnectTimers
}

// disconnectTimers tracks the two pending timers for a disconnected player.
// Callbacks compare pointer identity against the handle's map entry before
// acting, so a timer that fires after a reconnect is a no-op.
type disconnectTimers struct {
	autoStand *quartz.Timer
	grace     *quartz.Timer
}

// Registry is the process-wide set of live rooms, keyed by room code, plus
// the identity-to-room index used to route disconnects and rejoins. Rooms are
// created on demand and garbage-collected when their last player departs.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*RoomHandle
	members map[string]string // player ID -> room code
	seedRng *rand.Rand
	logger  *log.Logger
}

// NewRegistry creates an empty registry. seed feeds the per-room shoe rngs
// and the room code generator.
func NewRegistry(seed int64, logger *log.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*RoomHandle),
		members: make(map[string]string),
		seedRng: randutil.New(seed),
		logger:  logger.WithPrefix("registry"),
	}
}

// CreateRoom allocates a collision-checked 4-digit room code and a room with
// its own seeded rng.
func (reg *Registry) CreateRoom(maxSeats int) *RoomHandle {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for {
		code = strconv.Itoa(1000 + reg.seedRng.IntN(9000))
		if _, taken := reg.rooms[code]; !taken {
			break
		}
	}

	handle := &RoomHandle{
		Room:   game.NewRoom(code, randutil.New(reg.seedRng.Int64()), maxSeats),
		timers: make(map[string]*disconnectTimers),
	}
	reg.rooms[code] = handle
	reg.logger.Info("Room created", "code", code, "rooms", len(reg.rooms))
	return handle
}

// Lookup returns the handle for a room code.
func (reg *Registry) Lookup(code string) (*RoomHandle, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	handle, ok := reg.rooms[code]
	return handle, ok
}

// Remove drops a room from the registry.
func (reg *Registry) Remove(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[code]; ok {
		delete(reg.rooms, code)
		reg.logger.Info("Room destroyed", "code", code, "rooms", len(reg.rooms))
	}
}

// BindMember records which room a player identity is seated in.
func (reg *Registry) BindMember(playerID, code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.members[playerID] = code
}

// UnbindMember forgets a player identity.
func (reg *Registry) UnbindMember(playerID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.members, playerID)
}

// MemberRoom returns the room code a player identity is seated in.
func (reg *Registry) MemberRoom(playerID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	code, ok := reg.members[playerID]
	return code, ok
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
