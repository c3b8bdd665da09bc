// internal/server/dispatcher.go
package server

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
	"github.com/WalterHenri/blackjack-rendezvous/internal/registry"
)

// Dispatcher maps command verbs onto registry and relay operations. Every
// command gets exactly one synchronous reply; some verbs additionally fan
// out notifications to the paired peer. Protocol errors never terminate the
// connection.
type Dispatcher struct {
	reg   *registry.Registry
	relay *Relay
	log   *logrus.Logger
}

// NewDispatcher wires a dispatcher over the registry and relay.
func NewDispatcher(reg *registry.Registry, relay *Relay, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, relay: relay, log: log}
}

// Dispatch handles one inbound frame from a session.
func (d *Dispatcher) Dispatch(sess registry.Peer, frame protocol.Frame) {
	var reply protocol.Frame
	switch cmd := frame.Command(); cmd {
	case protocol.CmdListRooms:
		reply = d.handleListRooms()
	case protocol.CmdCreateRoom:
		reply = d.handleCreateRoom(sess, frame)
	case protocol.CmdJoinRoom:
		reply = d.handleJoinRoom(sess, frame)
	case protocol.CmdPingRoom:
		reply = d.handlePingRoom(sess, frame)
	case protocol.CmdDeleteRoom:
		reply = d.handleDeleteRoom(sess, frame)
	case protocol.CmdLeaveRoom:
		reply = d.handleLeaveRoom(sess)
	case protocol.CmdRelayMessage:
		reply = d.handleRelayMessage(sess, frame)
	default:
		d.log.WithField("command", cmd).Debug("unknown command")
		reply = protocol.ErrorFrame(protocol.ReasonUnknownCommand, "unknown command")
	}
	sess.Deliver(reply)
}

// Disconnected runs the teardown path for a closed connection: clear
// whichever slot it occupied and tell the survivor. Safe to call for
// sessions that never joined a room.
func (d *Dispatcher) Disconnected(sess registry.Peer) {
	roomID, survivor, role, ok := d.reg.Detach(sess)
	if !ok {
		return
	}
	d.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"role":    role,
	}).Info("connection detached from room")
	d.relay.NotifyPeerLeft(survivor, role)
}

func (d *Dispatcher) handleListRooms() protocol.Frame {
	return protocol.Frame{
		"command": protocol.CmdRoomList,
		"rooms":   d.reg.List(),
	}
}

func (d *Dispatcher) handleCreateRoom(sess registry.Peer, frame protocol.Frame) protocol.Frame {
	name := frame.String("room_name")
	hostIP := frame.String("host_ip")
	if name == "" || hostIP == "" {
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "create_room requires room_name and host_ip")
	}

	room, err := d.reg.Create(sess, name, hostIP, frame.String("password"))
	switch {
	case errors.Is(err, registry.ErrAlreadyBound):
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "connection already bound to a room")
	case err != nil:
		d.log.WithError(err).Error("create_room failed")
		return protocol.ErrorFrame(protocol.ReasonInternal, "room creation failed")
	}
	return protocol.Frame{
		"command": protocol.CmdRoomCreated,
		"room_id": room.ID,
	}
}

func (d *Dispatcher) handleJoinRoom(sess registry.Peer, frame protocol.Frame) protocol.Frame {
	roomID := frame.String("room_id")
	if roomID == "" {
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "join_room requires room_id")
	}

	room, host, err := d.reg.Join(sess, roomID, frame.String("password"))
	if err != nil {
		reason := protocol.ReasonInternal
		switch {
		case errors.Is(err, registry.ErrNotFound):
			reason = protocol.ReasonNotFound
		case errors.Is(err, registry.ErrWrongPassword):
			reason = protocol.ReasonWrongPassword
		case errors.Is(err, registry.ErrRoomFull):
			reason = protocol.ReasonFull
		case errors.Is(err, registry.ErrAlreadyBound):
			reason = protocol.ReasonInvalidRequest
		default:
			d.log.WithError(err).Error("join_room failed")
		}
		return protocol.Frame{
			"command": protocol.CmdJoinFailed,
			"reason":  reason,
		}
	}

	if host != nil {
		host.Deliver(protocol.Frame{
			"command": protocol.CmdClientConnected,
			"room_id": room.ID,
		})
	}
	return protocol.Frame{
		"command": protocol.CmdJoinSuccess,
		"room_id": room.ID,
		"host_ip": room.HostEndpoint,
	}
}

func (d *Dispatcher) handlePingRoom(sess registry.Peer, frame protocol.Frame) protocol.Frame {
	roomID := frame.String("room_id")
	if roomID == "" {
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "ping_room requires room_id")
	}

	switch err := d.reg.Ping(sess, roomID); {
	case errors.Is(err, registry.ErrNotFound):
		return protocol.Frame{"command": protocol.CmdRoomNotFound}
	case errors.Is(err, registry.ErrNotHost):
		return protocol.ErrorFrame(protocol.ReasonNotAuthorized, "only the host may ping its room")
	case err != nil:
		d.log.WithError(err).Error("ping_room failed")
		return protocol.ErrorFrame(protocol.ReasonInternal, "ping failed")
	}
	return protocol.Frame{"command": protocol.CmdPong}
}

func (d *Dispatcher) handleDeleteRoom(sess registry.Peer, frame protocol.Frame) protocol.Frame {
	roomID := frame.String("room_id")
	if roomID == "" {
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "delete_room requires room_id")
	}

	survivor, err := d.reg.Delete(sess, roomID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return protocol.Frame{"command": protocol.CmdRoomNotFound}
	case errors.Is(err, registry.ErrNotHost):
		return protocol.ErrorFrame(protocol.ReasonNotAuthorized, "only the host may delete its room")
	case err != nil:
		d.log.WithError(err).Error("delete_room failed")
		return protocol.ErrorFrame(protocol.ReasonInternal, "delete failed")
	}

	// A deliberate delete looks like a host departure to the joiner.
	d.relay.NotifyPeerLeft(survivor, registry.RoleHost)
	return protocol.Frame{"command": protocol.CmdRoomDeleted}
}

func (d *Dispatcher) handleLeaveRoom(sess registry.Peer) protocol.Frame {
	roomID, survivor, role, ok := d.reg.Detach(sess)
	if !ok {
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "connection is not in a room")
	}
	d.relay.NotifyPeerLeft(survivor, role)
	return protocol.Frame{
		"command": protocol.CmdRoomLeft,
		"room_id": roomID,
	}
}

func (d *Dispatcher) handleRelayMessage(sess registry.Peer, frame protocol.Frame) protocol.Frame {
	data, ok := frame.Object("data")
	if !ok {
		return protocol.ErrorFrame(protocol.ReasonInvalidRequest, "relay_message requires a data object")
	}
	return d.relay.Forward(sess, data)
}
