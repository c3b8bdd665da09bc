// internal/registry/registry.go
package registry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/WalterHenri/blackjack-rendezvous/internal/auth"
)

// Registry operation errors. The dispatcher maps these onto the wire reason
// vocabulary.
var (
	ErrNotFound      = errors.New("room not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrRoomFull      = errors.New("room is full")
	ErrNotHost       = errors.New("connection is not the room host")
	ErrAlreadyBound  = errors.New("connection already occupies a room slot")
)

const maxRoomNameLen = 64

// Options configures a Registry.
type Options struct {
	// IDLength is the number of decimal digits in generated room ids.
	IDLength int
	// TTL is the maximum host silence before a room is reapable.
	TTL time.Duration
	// Grace is the minimum room age before it is reapable, absorbing
	// start-up jitter between create and the first ping.
	Grace time.Duration
}

// Registry owns every room record. It is the only shared mutable state in
// the server; a single mutex makes each operation externally atomic, and
// listing copies out so callers never hold the lock.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[uuid.UUID]string // conn key -> room id; enforces one slot per connection

	opts Options
	log  *logrus.Logger

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates an empty registry.
func New(opts Options, log *logrus.Logger) *Registry {
	if opts.IDLength < 4 {
		opts.IDLength = 4
	}
	if opts.IDLength > 8 {
		opts.IDLength = 8
	}
	return &Registry{
		rooms:  make(map[string]*Room),
		byConn: make(map[uuid.UUID]string),
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// Create allocates a fresh room with conn as host and returns it. The
// password, when non-empty, is stored hashed. Fails with ErrAlreadyBound if
// the connection already occupies a slot in any room.
func (reg *Registry) Create(host Peer, name, hostEndpoint, password string) (*Room, error) {
	if len(name) > maxRoomNameLen {
		name = name[:maxRoomNameLen]
	}

	var passwordHash string
	if password != "" {
		h, err := auth.HashRoomPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		passwordHash = h
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, bound := reg.byConn[host.Key()]; bound {
		return nil, ErrAlreadyBound
	}

	id, err := reg.generateIDLocked()
	if err != nil {
		return nil, err
	}

	now := reg.now()
	room := &Room{
		ID:           id,
		Name:         name,
		HostEndpoint: hostEndpoint,
		passwordHash: passwordHash,
		CreatedAt:    now,
		LastPingAt:   now,
		host:         host,
	}
	reg.rooms[id] = room
	reg.byConn[host.Key()] = id

	reg.log.WithFields(logrus.Fields{
		"room_id":      id,
		"room_name":    name,
		"has_password": room.HasPassword(),
	}).Info("room created")
	return room, nil
}

// Join binds conn into the joiner slot of the identified room. On success it
// returns the room and the host peer so the caller can notify it. Fails with
// ErrNotFound, ErrWrongPassword, ErrRoomFull, or ErrAlreadyBound.
func (reg *Registry) Join(conn Peer, roomID, password string) (*Room, Peer, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, bound := reg.byConn[conn.Key()]; bound {
		return nil, nil, ErrAlreadyBound
	}
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	// A password presented to an open room is simply ignored.
	if room.HasPassword() {
		match, err := auth.VerifyRoomPassword(password, room.passwordHash)
		if err != nil {
			return nil, nil, fmt.Errorf("verify room password: %w", err)
		}
		if !match {
			return nil, nil, ErrWrongPassword
		}
	}
	if room.joiner != nil {
		return nil, nil, ErrRoomFull
	}

	room.joiner = conn
	reg.byConn[conn.Key()] = roomID

	reg.log.WithField("room_id", roomID).Info("joiner bound")
	return room, room.host, nil
}

// List returns a snapshot of all rooms. The result is a copy; no registry
// lock is held by the caller.
func (reg *Registry) List() []Summary {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]Summary, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room.summary())
	}
	return out
}

// Get returns the summary of one room.
func (reg *Registry) Get(roomID string) (Summary, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return Summary{}, false
	}
	return room.summary(), true
}

// Ping refreshes the room's TTL clock. Only the current host may ping.
func (reg *Registry) Ping(conn Peer, roomID string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if room.host == nil || room.host.Key() != conn.Key() {
		return ErrNotHost
	}
	room.LastPingAt = reg.now()
	return nil
}

// Delete removes the room. Only the host may delete. The surviving joiner
// (if any) is returned so the caller can synthesize a host_left notification.
func (reg *Registry) Delete(conn Peer, roomID string) (Peer, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if room.host == nil || room.host.Key() != conn.Key() {
		return nil, ErrNotHost
	}

	reg.removeRoomLocked(room)
	reg.log.WithField("room_id", roomID).Info("room deleted by host")
	return room.joiner, nil
}

// Detach clears whichever slot conn occupies. A departing host destroys the
// room; a departing joiner leaves it hosted. It returns the room id, the
// surviving peer (nil if the room had none), the role the departing
// connection held, and whether the connection was bound at all.
func (reg *Registry) Detach(conn Peer) (roomID string, survivor Peer, role Role, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, bound := reg.byConn[conn.Key()]
	if !bound {
		return "", nil, "", false
	}
	room := reg.rooms[roomID]
	delete(reg.byConn, conn.Key())
	if room == nil {
		return "", nil, "", false
	}

	if room.host != nil && room.host.Key() == conn.Key() {
		// Host departure removes the room outright; a joiner cannot keep a
		// room alive because only hosts may ping.
		room.host = nil
		survivor = room.joiner
		reg.removeRoomLocked(room)
		reg.log.WithField("room_id", roomID).Info("host detached, room removed")
		return roomID, survivor, RoleHost, true
	}

	if room.joiner != nil && room.joiner.Key() == conn.Key() {
		room.joiner = nil
		survivor = room.host
		if room.playerCount() == 0 {
			reg.removeRoomLocked(room)
		}
		reg.log.WithField("room_id", roomID).Info("joiner detached")
		return roomID, survivor, RoleJoiner, true
	}

	// byConn pointed at a room that no longer references the connection;
	// treat as unbound.
	return "", nil, "", false
}

// RoomFor resolves the room a connection is bound to, the role it holds,
// and its paired peer (nil when the opposite slot is empty). Used by the
// relay engine on every forwarded frame.
func (reg *Registry) RoomFor(conn Peer) (roomID string, role Role, peer Peer, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, bound := reg.byConn[conn.Key()]
	if !bound {
		return "", "", nil, false
	}
	room := reg.rooms[roomID]
	if room == nil {
		return "", "", nil, false
	}
	if room.host != nil && room.host.Key() == conn.Key() {
		return roomID, RoleHost, room.joiner, true
	}
	if room.joiner != nil && room.joiner.Key() == conn.Key() {
		return roomID, RoleJoiner, room.host, true
	}
	return "", "", nil, false
}

// Reaped describes one room removed by a TTL sweep or an admin force-close.
type Reaped struct {
	ID        string
	Occupants []Peer
}

// Reap removes every room whose host has been silent longer than the TTL
// and that is older than the grace period, returning them so the caller can
// notify the occupants. Each removal is a single atomic mutation.
func (reg *Registry) Reap(now time.Time) []Reaped {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var out []Reaped
	for _, room := range reg.rooms {
		if now.Sub(room.CreatedAt) < reg.opts.Grace {
			continue
		}
		if now.Sub(room.LastPingAt) <= reg.opts.TTL {
			continue
		}
		out = append(out, Reaped{ID: room.ID, Occupants: room.occupants()})
		reg.removeRoomLocked(room)
		reg.log.WithFields(logrus.Fields{
			"room_id": room.ID,
			"idle":    now.Sub(room.LastPingAt).String(),
		}).Info("room reaped")
	}
	return out
}

// ForceClose removes a room regardless of ownership (admin surface only),
// returning its occupants for notification.
func (reg *Registry) ForceClose(roomID string) (Reaped, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return Reaped{}, false
	}
	r := Reaped{ID: room.ID, Occupants: room.occupants()}
	reg.removeRoomLocked(room)
	reg.log.WithField("room_id", roomID).Warn("room force-closed")
	return r, true
}

// Stats reports current room and player counts for the status surface.
func (reg *Registry) Stats() (rooms, players int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rooms = len(reg.rooms)
	for _, room := range reg.rooms {
		players += room.playerCount()
	}
	return rooms, players
}

// removeRoomLocked unlinks a room and both slot bindings. Caller holds the lock.
func (reg *Registry) removeRoomLocked(room *Room) {
	if room.host != nil {
		delete(reg.byConn, room.host.Key())
	}
	if room.joiner != nil {
		delete(reg.byConn, room.joiner.Key())
	}
	delete(reg.rooms, room.ID)
}

// generateIDLocked draws a random decimal id, retrying on the (unlikely)
// collision. Caller holds the lock.
func (reg *Registry) generateIDLocked() (string, error) {
	const maxAttempts = 32
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := randomDigits(reg.opts.IDLength)
		if err != nil {
			return "", err
		}
		if _, taken := reg.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", errors.New("room id space exhausted")
}

func randomDigits(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	digits := make([]byte, n)
	for i, b := range raw {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}
