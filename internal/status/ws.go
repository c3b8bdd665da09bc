// internal/status/ws.go
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
)

// The WebSocket endpoint exists because browser clients cannot open raw TCP
// sockets. It speaks the identical command protocol; one text message
// carries exactly one JSON frame, so the websocket layer supplies the
// framing the TCP codec otherwise would.

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.WithError(err).Warn("websocket accept failed")
		return
	}

	mc := &wsConn{c: c, remote: r.RemoteAddr}
	// Blocks until the socket closes; session cleanup (detach, peer
	// notification) runs inside HandleConn.
	h.srv.HandleConn(r.Context(), mc)
}

// wsConn adapts a websocket connection to the server's MessageConn.
type wsConn struct {
	c      *websocket.Conn
	remote string
}

func (w *wsConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	for {
		typ, data, err := w.c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrGarbage, err)
		}
		return f, nil
	}
}

func (w *wsConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) RemoteAddr() string {
	return w.remote
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "session closed")
}
