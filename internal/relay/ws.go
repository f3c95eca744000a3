package relay

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Identity is the authenticated principal bound to a connection for its
// whole lifetime.
type Identity struct {
	UserID   string
	UserName string
}

// IdentityFunc authenticates an upgrade request, typically by verifying a
// bearer token carried in the query string or Authorization header.
type IdentityFunc func(r *http.Request) (Identity, error)

// Handler upgrades authenticated HTTP requests into relay connections.
type Handler struct {
	relay    *Relay
	identify IdentityFunc
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates the websocket endpoint for the relay. allowedOrigins
// mirrors the REST API's CORS allow-list; connections whose declared
// origin is not listed are refused at handshake.
func NewHandler(relay *Relay, allowedOrigins []string, identify IdentityFunc, logger zerolog.Logger) *Handler {
	return &Handler{
		relay:    relay,
		identify: identify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// ServeHTTP authenticates the request, upgrades the transport, and starts
// the connection's pumps. Each connection gets a fresh ephemeral ID; a
// reconnecting client is a brand-new connection and must re-issue a join.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identify(r)
	if err != nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure response.
		h.logger.Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}

	client := newClient(uuid.New().String(), identity, h.relay, conn, h.logger)
	h.relay.Register(client.id, identity.UserID, identity.UserName, client)

	go client.writePump()
	go client.readPump()
}

// originChecker builds the handshake origin filter. Requests without an
// Origin header (non-browser clients) are allowed; browsers must match
// the allow-list.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
