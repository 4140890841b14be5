// Package hub relays room messages between websocket connections.
package hub

import (
	"context"

	"github.com/rs/zerolog"

	"collabboard/internal/metrics"
	"collabboard/internal/protocol"
)

// Relay carries room traffic to hub instances in other processes.
type Relay interface {
	Publish(ctx context.Context, room string, typ protocol.Type, payload []byte) error
	Subscribe(room string)
	Unsubscribe(room string)
}

type membership struct {
	client *Client
	room   string
}

type envelope struct {
	origin  *Client
	room    string
	typ     protocol.Type
	payload []byte
}

// Hub owns the room membership registry. All registry changes happen on the
// Run goroutine; other goroutines talk to it over channels.
type Hub struct {
	clients     map[*Client]struct{}
	rooms       map[string]map[*Client]struct{}
	memberships map[*Client]map[string]struct{}

	register   chan *Client
	unregister chan *Client
	join       chan membership
	broadcast  chan envelope
	inspect    chan func()
	done       chan struct{}

	relay   Relay
	metrics *metrics.Metrics
	log     zerolog.Logger
}

type Option func(*Hub)

// WithRelay fans local broadcasts out to other instances through r.
func WithRelay(r Relay) Option { return func(h *Hub) { h.relay = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(h *Hub) { h.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(h *Hub) { h.log = l } }

func New(opts ...Option) *Hub {
	h := &Hub{
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		join:        make(chan membership),
		broadcast:   make(chan envelope),
		inspect:     make(chan func()),
		done:        make(chan struct{}),
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run processes registry events until ctx is done. Every client still
// registered at that point is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.SetConnections(len(h.clients))
			h.log.Debug().Str("client", c.ID).Int("clients", len(h.clients)).Msg("client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug().Str("client", c.ID).Int("clients", len(h.clients)).Msg("client unregistered")
			}
		case m := <-h.join:
			h.addMember(m.client, m.room)
		case e := <-h.broadcast:
			h.fanOut(e)
		case f := <-h.inspect:
			f()
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// Register adds c to the hub. It must precede any Join for c.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

// Unregister removes c from all rooms. It is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join adds c to room. Joining a room twice is a no-op and a client may be in
// any number of rooms.
func (h *Hub) Join(c *Client, room string) {
	select {
	case h.join <- membership{client: c, room: room}:
	case <-h.done:
	}
}

// Broadcast hands payload to every member of room except origin, then to the
// relay. It returns once local fan-out is queued; it never waits on a peer.
func (h *Hub) Broadcast(ctx context.Context, origin *Client, room string, typ protocol.Type, payload []byte) {
	select {
	case h.broadcast <- envelope{origin: origin, room: room, typ: typ, payload: payload}:
	case <-h.done:
		return
	}
	if h.relay != nil {
		if err := h.relay.Publish(ctx, room, typ, payload); err != nil {
			h.log.Warn().Err(err).Str("room", room).Msg("relay publish failed")
		}
	}
}

// Deliver hands a payload that arrived through the relay to every local
// member of room.
func (h *Hub) Deliver(room string, typ protocol.Type, payload []byte) {
	select {
	case h.broadcast <- envelope{room: room, typ: typ, payload: payload}:
	case <-h.done:
	}
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	out := make(chan int, 1)
	select {
	case h.inspect <- func() { out <- len(h.rooms[room]) }:
		return <-out
	case <-h.done:
		return 0
	}
}

// RoomsOf returns the rooms c has joined.
func (h *Hub) RoomsOf(c *Client) []string {
	out := make(chan []string, 1)
	f := func() {
		var rooms []string
		for r := range h.memberships[c] {
			rooms = append(rooms, r)
		}
		out <- rooms
	}
	select {
	case h.inspect <- f:
		return <-out
	case <-h.done:
		return nil
	}
}

func (h *Hub) addMember(c *Client, room string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
		h.metrics.SetRooms(len(h.rooms))
		if h.relay != nil {
			h.relay.Subscribe(room)
		}
	}
	if _, ok := members[c]; ok {
		return
	}
	members[c] = struct{}{}
	if h.memberships[c] == nil {
		h.memberships[c] = make(map[string]struct{})
	}
	h.memberships[c][room] = struct{}{}
	h.log.Info().Str("client", c.ID).Str("room", room).Int("members", len(members)).Msg("joined room")
}

func (h *Hub) fanOut(e envelope) {
	members := h.rooms[e.room]
	for c := range members {
		if c == e.origin {
			continue
		}
		select {
		case c.send <- e.payload:
		default:
			// A full buffer means the peer is not keeping up. Dropping it keeps
			// the rest of the room moving.
			h.log.Warn().Str("client", c.ID).Str("room", e.room).Msg("send buffer full, evicting client")
			h.metrics.IncEvicted()
			h.drop(c)
		}
	}
	h.metrics.IncRelayed(string(e.typ))
}

// drop removes c from every room and closes its send channel.
func (h *Hub) drop(c *Client) {
	for room := range h.memberships[c] {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
			if h.relay != nil {
				h.relay.Unsubscribe(room)
			}
		}
	}
	delete(h.memberships, c)
	delete(h.clients, c)
	close(c.send)
	h.metrics.SetConnections(len(h.clients))
	h.metrics.SetRooms(len(h.rooms))
}
