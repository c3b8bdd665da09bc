// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/WalterHenri/blackjack-rendezvous/internal/config"
	"github.com/WalterHenri/blackjack-rendezvous/internal/registry"
)

// Server is the rendezvous TCP listener plus the shared machinery (registry,
// relay, dispatcher, reaper) that the WebSocket transport also plugs into.
type Server struct {
	cfg  config.Config
	log  *logrus.Logger
	reg  *registry.Registry
	disp *Dispatcher

	ln net.Listener

	mu       sync.Mutex
	sessions sync.WaitGroup
	closed   bool
}

// New assembles a server from configuration. Call Listen then Serve.
func New(cfg config.Config, log *logrus.Logger) *Server {
	reg := registry.New(registry.Options{
		IDLength: cfg.RoomIDLength,
		TTL:      cfg.RoomTTL,
		Grace:    cfg.GracePeriod,
	}, log)
	relay := NewRelay(reg)
	return &Server{
		cfg:  cfg,
		log:  log,
		reg:  reg,
		disp: NewDispatcher(reg, relay, log),
	}
}

// Registry exposes the room registry for the status surface.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Listen binds the rendezvous TCP port. Bind failure is the one fatal error
// class; the caller aborts on it.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.BindPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind rendezvous listener on %s: %w", addr, err)
	}
	s.ln = ln
	s.log.WithField("addr", ln.Addr().String()).Info("rendezvous listening")
	return nil
}

// Addr returns the bound listener address (useful with port 0 in tests).
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, then drains: the accept
// loop stops first, each session finishes its current frame and closes, and
// the reaper exits at its next wake.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go s.runReaper(reaperCtx, s.cfg.SweepInterval)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.ln.Close()
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				break
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}
		s.startSession(ctx, newTCPConn(nc))
	}

	s.sessions.Wait()
	stopReaper()
	return nil
}

// HandleConn runs a session over an externally accepted transport (the
// WebSocket endpoint). It blocks until the connection closes.
func (s *Server) HandleConn(ctx context.Context, mc MessageConn) {
	sess := newSession(mc, s.disp, s.cfg.SendQueueMax, s.log)
	sess.run(ctx)
}

func (s *Server) startSession(ctx context.Context, mc MessageConn) {
	sess := newSession(mc, s.disp, s.cfg.SendQueueMax, s.log)
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		sess.run(ctx)
	}()
}
