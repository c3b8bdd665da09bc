// internal/server/session.go
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
)

// MessageConn abstracts one framed-JSON transport. The TCP listener and the
// WebSocket endpoint both produce these; sessions built on either are
// indistinguishable to the registry and relay.
type MessageConn interface {
	// ReadFrame blocks until one complete frame arrives. A frame that fails
	// to parse is reported as an error wrapping protocol.ErrGarbage; the
	// connection remains usable afterwards.
	ReadFrame(ctx context.Context) (protocol.Frame, error)
	// WriteFrame serializes and writes one frame.
	WriteFrame(ctx context.Context, f protocol.Frame) error
	RemoteAddr() string
	Close() error
}

const writeTimeout = 30 * time.Second

// Session is the per-connection actor: one read loop feeding the dispatcher
// and one write pump draining a bounded queue. All outbound writes for a
// connection pass through the queue, so they are totally ordered and never
// interleave.
type Session struct {
	id   uuid.UUID
	conn MessageConn
	disp *Dispatcher
	log  *logrus.Logger

	// out is the bounded send queue. Deliver drops the connection, not the
	// frame, when the queue is full: a peer that far behind is stuck and
	// would otherwise pin memory.
	out chan protocol.Frame

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn MessageConn, disp *Dispatcher, queueMax int, log *logrus.Logger) *Session {
	return &Session{
		id:   uuid.New(),
		conn: conn,
		disp: disp,
		log:  log,
		out:  make(chan protocol.Frame, queueMax),
		done: make(chan struct{}),
	}
}

// Key implements registry.Peer.
func (s *Session) Key() uuid.UUID { return s.id }

// Deliver implements registry.Peer. It never blocks; exceeding the queue cap
// tears the session down, which surfaces to the peer as a disconnect.
func (s *Session) Deliver(f protocol.Frame) {
	select {
	case <-s.done:
	case s.out <- f:
	default:
		s.log.WithFields(logrus.Fields{
			"conn":   s.id,
			"remote": s.conn.RemoteAddr(),
		}).Warn("send queue full, tearing down stuck connection")
		s.teardown()
	}
}

// teardown is idempotent. Closing the underlying conn unblocks the read
// loop, which then runs the disconnect path exactly once.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// run drives the session until its connection dies, then detaches it from
// any room it occupies. Must be called on its own goroutine.
func (s *Session) run(ctx context.Context) {
	log := s.log.WithFields(logrus.Fields{
		"conn":   s.id,
		"remote": s.conn.RemoteAddr(),
	})
	log.Info("connection open")

	go s.writePump(ctx)

	for {
		frame, err := s.conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, protocol.ErrGarbage) {
				// Framing error: the decoder already dropped its buffer.
				// The connection stays open; the client may resynchronize.
				log.WithError(err).Warn("framing error")
				s.Deliver(protocol.ErrorFrame(protocol.ReasonInvalidRequest, "malformed frame"))
				continue
			}
			log.WithError(err).Debug("read loop ended")
			break
		}
		s.disp.Dispatch(s, frame)
	}

	s.teardown()
	s.disp.Disconnected(s)
	log.Info("connection closed")
}

// writePump serializes every outbound frame for this connection.
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.teardown()
			return
		case frame := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.WriteFrame(wctx, frame)
			cancel()
			if err != nil {
				s.log.WithFields(logrus.Fields{
					"conn":  s.id,
					"error": err,
				}).Debug("write failed, closing connection")
				s.teardown()
				return
			}
		}
	}
}
