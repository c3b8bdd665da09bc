// internal/registry/room.go
package registry

import (
	"time"

	"github.com/google/uuid"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
)

// Peer is a live client connection as the registry sees it. The registry
// holds references for slot bookkeeping and peer lookup but never owns the
// connection; delivery is dispatched to the peer, which serializes its own
// writes.
type Peer interface {
	// Key identifies the connection for slot bookkeeping.
	Key() uuid.UUID
	// Deliver enqueues a frame for the peer. It must not block; a peer that
	// cannot keep up tears itself down.
	Deliver(f protocol.Frame)
}

// Role names the slot a connection occupies in its room.
type Role string

const (
	RoleHost   Role = "host"
	RoleJoiner Role = "joiner"
)

// Room is one rendezvous room: exactly one host slot and one joiner slot.
// All fields are guarded by the owning Registry's mutex.
type Room struct {
	ID           string
	Name         string
	HostEndpoint string

	// passwordHash is the argon2id-encoded shared secret, empty when the
	// room is open. The clear password is never stored.
	passwordHash string

	CreatedAt  time.Time
	LastPingAt time.Time

	host   Peer
	joiner Peer
}

// HasPassword reports whether joining requires the shared secret.
func (r *Room) HasPassword() bool {
	return r.passwordHash != ""
}

// occupants returns the non-empty slots.
func (r *Room) occupants() []Peer {
	var out []Peer
	if r.host != nil {
		out = append(out, r.host)
	}
	if r.joiner != nil {
		out = append(out, r.joiner)
	}
	return out
}

func (r *Room) playerCount() int {
	return len(r.occupants())
}

// Summary is the externally visible view of a room. It never carries the
// password in any form.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Host        string `json:"host"`
	HasPassword bool   `json:"has_password"`
	Players     int    `json:"players"`
}

func (r *Room) summary() Summary {
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		Host:        r.HostEndpoint,
		HasPassword: r.HasPassword(),
		Players:     r.playerCount(),
	}
}
