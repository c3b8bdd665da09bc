// internal/status/status.go
package status

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
	"github.com/WalterHenri/blackjack-rendezvous/internal/registry"
	"github.com/WalterHenri/blackjack-rendezvous/internal/server"
)

// Handler serves the read-only HTTP status surface, the admin force-close
// endpoint, and the WebSocket rendezvous transport. It only ever reads
// registry snapshots; it never holds registry locks across a response.
type Handler struct {
	reg      *registry.Registry
	srv      *server.Server
	adminKey string
	started  time.Time
	log      *logrus.Logger
}

// New builds the HTTP handler tree. adminKey empty disables admin mutations.
func New(srv *server.Server, adminKey string, log *logrus.Logger) http.Handler {
	h := &Handler{
		reg:      srv.Registry(),
		srv:      srv,
		adminKey: adminKey,
		started:  time.Now(),
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/rooms", h.handleRooms)
	mux.HandleFunc("/room/", h.handleRoom)
	mux.HandleFunc("/admin/rooms/", h.handleAdminClose)
	mux.HandleFunc("/ws", h.handleWS)
	return logMiddleware(log)(mux)
}

// logMiddleware logs method, path, and duration of each request.
func logMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP request")
		})
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rooms, players := h.reg.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"total_rooms":   rooms,
		"total_players": players,
		"uptime":        int64(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": h.reg.List(),
	})
}

func (h *Handler) handleRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/room/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	summary, ok := h.reg.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"reason": protocol.ReasonNotFound,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAdminClose force-closes a room: POST /admin/rooms/{id}/close with a
// matching X-Admin-Key. Occupants get room_expired, same as a TTL eviction.
func (h *Handler) handleAdminClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.adminKey == "" || r.Header.Get("X-Admin-Key") != h.adminKey {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"reason": protocol.ReasonNotAuthorized,
		})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/admin/rooms/")
	id, ok := strings.CutSuffix(rest, "/close")
	if !ok || id == "" || strings.Contains(id, "/") {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}

	reaped, found := h.reg.ForceClose(id)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"reason": protocol.ReasonNotFound,
		})
		return
	}
	for _, peer := range reaped.Occupants {
		peer.Deliver(protocol.Frame{
			"command": protocol.CmdRoomExpired,
			"room_id": reaped.ID,
		})
	}
	h.log.WithField("room_id", id).Warn("room closed via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"closed": id,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	// Read surface is open; browsers polling room lists come from anywhere.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
