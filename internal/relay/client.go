package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client is one live websocket connection bound to the relay. A read pump
// decodes inbound envelopes and dispatches them to the relay; a write pump
// drains the egress buffer back to the socket. Separating the two avoids
// head-of-line blocking when a browser is slow.
type Client struct {
	id       string
	userID   string
	userName string
	relay    *Relay
	conn     *websocket.Conn
	send     chan []byte
	logger   zerolog.Logger

	closeOnce sync.Once
}

func newClient(id string, identity Identity, relay *Relay, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		id:       id,
		userID:   identity.UserID,
		userName: identity.UserName,
		relay:    relay,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		logger:   logger,
	}
}

// Deliver implements Sink. It must not block: the relay calls it under its
// lock. A client whose egress buffer is full is dropped instead of
// stalling delivery to the rest of the room.
func (c *Client) Deliver(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("marshal payload")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Str("conn_id", c.id).Msg("egress buffer full, dropping connection")
		c.close()
	}
}

// close shuts the socket down, which unblocks both pumps.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump consumes client events until the transport fails, then treats
// the disconnect as an implicit leave. A malformed or unknown event is
// dropped silently; it never terminates the connection or the relay.
func (c *Client) readPump() {
	defer func() {
		c.relay.Disconnect(c.id)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Str("conn_id", c.id).Msg("unexpected close")
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound envelope. Identity fields carried in the
// payloads are ignored; the connection's authenticated identity is
// authoritative.
func (c *Client) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug().Str("conn_id", c.id).Msg("dropping malformed frame")
		return
	}

	switch env.Event {
	case EventJoinSession:
		var p JoinSessionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.SessionID == "" {
			return
		}
		c.relay.Join(c.id, p.SessionID)

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Content == "" {
			return
		}
		c.relay.Send(c.id, p.Content)

	case EventTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		c.relay.SetTyping(c.id, p.IsTyping)

	case EventSessionCreated:
		var p SessionCreatedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || len(p.Session) == 0 {
			return
		}
		c.relay.AnnounceSessionCreated(p.Session, c.userID)

	default:
		c.logger.Debug().Str("event", env.Event).Msg("dropping unknown event")
	}
}

// writePump drains the egress buffer to the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
