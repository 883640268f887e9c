package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/pkg/httputil"
)

// Handler upgrades authenticated requests and keeps track of live
// clients so they can be closed on shutdown
type Handler struct {
	sessions       Sessions
	authService    *auth.Service
	log            *slog.Logger
	allowedOrigins []string

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHandler(sessions Sessions, authService *auth.Service, allowedOrigins []string, log *slog.Logger) *Handler {
	return &Handler{
		sessions:       sessions,
		authService:    authService,
		log:            log,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*Client]struct{}),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleConnection)
}

// bearerToken reads the token from the Authorization header, falling
// back to ?token= for browsers that cannot set headers on upgrade
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.RespondError(w, r, httputil.Unauthorized("Missing authorization token"), h.log)
		return
	}

	claims, err := h.authService.ValidateAccessToken(token)
	if err != nil {
		httputil.RespondError(w, r, httputil.Unauthorized("Invalid or expired token"), h.log)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		// Accept has already written the response
		h.log.Warn("websocket upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	client := NewClient(claims.Identity, conn, h.sessions, h.log)
	h.track(client)
	defer h.untrack(client)

	h.log.Info("websocket connection established",
		"conn_id", client.ID(),
		"user_id", claims.UserID,
		"username", claims.Username,
		"guest", claims.Guest)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go client.writePump(ctx)
	client.readPump(ctx)

	h.log.Debug("websocket connection closed", "conn_id", client.ID())
}

func (h *Handler) track(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Handler) untrack(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Count returns the number of open connections
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll closes every open connection with StatusGoingAway. Each
// read pump then runs its normal disconnect path.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}

	h.log.Info("closed websocket connections", "count", len(clients))
}
