// internal/server/reaper.go
package server

import (
	"context"
	"time"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
)

// runReaper sweeps the registry every interval, delivering room_expired to
// each occupant of an evicted room. Sockets are left open; the connections
// simply stop belonging to a room. Cancellation is cooperative: the loop
// notices ctx at its next wake.
func (s *Server) runReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, reaped := range s.reg.Reap(time.Now()) {
				for _, peer := range reaped.Occupants {
					peer.Deliver(protocol.Frame{
						"command": protocol.CmdRoomExpired,
						"room_id": reaped.ID,
					})
				}
			}
		}
	}
}
