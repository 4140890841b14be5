package hub

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabboard/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20 // images travel inline as data URIs
	sendBuffer     = 256
)

// Client is one websocket connection attached to the hub.
type Client struct {
	ID       string
	Identity string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger
}

// NewClient wraps conn. identity may be empty for anonymous connections.
func NewClient(h *Hub, conn *websocket.Conn, identity string) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		Identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		log:      h.log.With().Str("client", id).Str("identity", identity).Logger(),
	}
}

// Serve registers c and runs its pumps until the connection drops. It blocks
// on the read side; leaving every room is implicit on return.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("connection closed unexpectedly")
			} else {
				c.log.Debug().Err(err).Msg("client disconnected")
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	r, err := protocol.Route(data)
	if err != nil {
		lvl := c.log.Warn()
		if errors.Is(err, protocol.ErrUnknownType) {
			lvl = c.log.Debug()
		}
		lvl.Err(err).Msg("dropping message")
		return
	}
	if r.Type == protocol.TypeJoin {
		c.hub.Join(c, r.RoomID)
		return
	}
	c.log.Trace().Str("type", string(r.Type)).Str("room", r.RoomID).Int("bytes", len(r.Payload)).Msg("relaying")
	c.hub.Broadcast(ctx, c, r.RoomID, r.Type, r.Payload)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Write errors mean the peer is gone; the read side will notice.
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
