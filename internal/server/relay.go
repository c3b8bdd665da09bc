// internal/server/relay.go
package server

import (
	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
	"github.com/WalterHenri/blackjack-rendezvous/internal/registry"
)

// Relay is a routing rule over the registry rather than a stateful engine: a
// frame from a connection occupying one slot of a room is forwarded to the
// opposite slot. It tags every forwarded payload with the sender's role so
// receivers never have to trust client-supplied identity.
type Relay struct {
	reg *registry.Registry
}

// NewRelay builds a relay over the given registry.
func NewRelay(reg *registry.Registry) *Relay {
	return &Relay{reg: reg}
}

// Forward routes one opaque payload from sender to its paired peer and
// returns the acknowledgement owed to the sender. Frames toward an empty
// peer slot are dropped, not queued.
func (r *Relay) Forward(sender registry.Peer, data map[string]interface{}) protocol.Frame {
	_, role, peer, ok := r.reg.RoomFor(sender)
	if !ok || peer == nil {
		return protocol.Frame{
			"command": protocol.CmdRelayFailed,
			"reason":  protocol.ReasonNotFound,
		}
	}

	tagged := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		tagged[k] = v
	}
	tagged[protocol.RelayFromKey] = originTag(role)

	peer.Deliver(protocol.Frame{
		"command": protocol.CmdRelayReceived,
		"data":    tagged,
	})
	return protocol.Frame{"command": protocol.CmdRelaySent}
}

// NotifyPeerLeft synthesizes the disconnect frame owed to a surviving peer
// when its counterpart departs. It rides the relay_received channel so
// clients consume it like any other peer message.
func (r *Relay) NotifyPeerLeft(survivor registry.Peer, departed registry.Role) {
	if survivor == nil {
		return
	}
	leftType := protocol.TypeJoinerLeft
	if departed == registry.RoleHost {
		leftType = protocol.TypeHostLeft
	}
	survivor.Deliver(protocol.Frame{
		"command": protocol.CmdRelayReceived,
		"data": map[string]interface{}{
			"type":                leftType,
			protocol.RelayFromKey: originTag(departed),
		},
	})
}

func originTag(role registry.Role) string {
	if role == registry.RoleHost {
		return protocol.FromHost
	}
	return protocol.FromJoiner
}
