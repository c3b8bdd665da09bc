// internal/server/tcp_conn.go
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
)

// tcpConn adapts a raw TCP socket to MessageConn using the streaming codec.
// Frame boundaries come from JSON self-delimiting, not from TCP segment
// boundaries, so reads are buffered through the decoder.
type tcpConn struct {
	nc  net.Conn
	dec protocol.Decoder
	buf []byte
}

func newTCPConn(nc net.Conn) *tcpConn {
	return &tcpConn{nc: nc, buf: make([]byte, 4096)}
}

func (c *tcpConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	for {
		frame, err := c.dec.Next()
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, protocol.ErrIncomplete) {
			return nil, err
		}

		// Need more bytes. The blocking read is interrupted by Close, which
		// the session's teardown calls on cancellation.
		n, err := c.nc.Read(c.buf)
		if n > 0 {
			c.dec.Feed(c.buf[:n])
		}
		if err != nil {
			// Drain whatever a final segment completed before surfacing the
			// error on the next call.
			if frame, derr := c.dec.Next(); derr == nil {
				return frame, nil
			}
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (c *tcpConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
		defer c.nc.SetWriteDeadline(time.Time{})
	}
	_, err = c.nc.Write(data)
	return err
}

func (c *tcpConn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

func (c *tcpConn) Close() error {
	return c.nc.Close()
}
