package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/protocol"
)

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

// fakeClient is a hub member without a websocket behind it.
func fakeClient(h *Hub, id string, buffer int) *Client {
	c := &Client{ID: id, hub: h, send: make(chan []byte, buffer), log: h.log}
	h.Register(c)
	return c
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel of %s closed", c.ID)
		return string(msg)
	case <-time.After(time.Second):
		t.Fatalf("%s received nothing", c.ID)
		return ""
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("%s unexpectedly received %q", c.ID, msg)
	default:
	}
}

func TestBroadcastStaysInRoom(t *testing.T) {
	h := newTestHub(t)
	a := fakeClient(h, "a", 8)
	b := fakeClient(h, "b", 8)
	c := fakeClient(h, "c", 8)
	h.Join(a, "R")
	h.Join(b, "R")
	h.Join(c, "R2")

	h.Broadcast(context.Background(), a, "R", protocol.TypeDraw, []byte(`{"type":"draw"}`))

	assert.Equal(t, `{"type":"draw"}`, receive(t, b))
	// RoomSize goes through the run loop, so the fan-out above is done
	assert.Equal(t, 2, h.RoomSize("R"))
	assertSilent(t, a)
	assertSilent(t, c)
}

func TestJoinIsIdempotentAndMultiRoom(t *testing.T) {
	h := newTestHub(t)
	a := fakeClient(h, "a", 8)
	b := fakeClient(h, "b", 8)
	h.Join(a, "one")
	h.Join(a, "one")
	h.Join(a, "two")
	h.Join(b, "two")

	assert.Equal(t, 1, h.RoomSize("one"))
	assert.ElementsMatch(t, []string{"one", "two"}, h.RoomsOf(a))

	h.Broadcast(context.Background(), b, "two", protocol.TypeClear, []byte(`{"type":"clear"}`))
	assert.Equal(t, `{"type":"clear"}`, receive(t, a))
	h.RoomSize("two")
	assertSilent(t, a)
}

func TestOriginNeedNotBeMember(t *testing.T) {
	h := newTestHub(t)
	a := fakeClient(h, "a", 8)
	b := fakeClient(h, "b", 8)
	h.Join(b, "R")

	h.Broadcast(context.Background(), a, "R", protocol.TypeDraw, []byte(`x`))
	assert.Equal(t, "x", receive(t, b))
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	h := newTestHub(t)
	a := fakeClient(h, "a", 8)
	b := fakeClient(h, "b", 8)
	h.Join(a, "one")
	h.Join(a, "two")
	h.Join(b, "two")

	h.Unregister(a)
	h.Unregister(a)

	assert.Equal(t, 0, h.RoomSize("one"))
	assert.Equal(t, 1, h.RoomSize("two"))
	_, ok := <-a.send
	assert.False(t, ok, "send channel should be closed")

	h.Broadcast(context.Background(), b, "two", protocol.TypeDraw, []byte(`x`))
	h.RoomSize("two")
}

func TestNoReplayForLateJoiner(t *testing.T) {
	h := newTestHub(t)
	a := fakeClient(h, "a", 8)
	b := fakeClient(h, "b", 8)
	h.Join(a, "R")
	h.Broadcast(context.Background(), a, "R", protocol.TypeDraw, []byte(`early`))
	h.Join(b, "R")
	h.Broadcast(context.Background(), a, "R", protocol.TypeDraw, []byte(`late`))

	assert.Equal(t, "late", receive(t, b))
}

func TestSlowClientIsEvictedWithoutBlockingOthers(t *testing.T) {
	h := newTestHub(t)
	a := fakeClient(h, "a", 8)
	slow := fakeClient(h, "slow", 1)
	fast := fakeClient(h, "fast", 8)
	for _, c := range []*Client{a, slow, fast} {
		h.Join(c, "R")
	}

	for i := 0; i < 3; i++ {
		h.Broadcast(context.Background(), a, "R", protocol.TypeDraw, []byte{byte('0' + i)})
	}

	assert.Equal(t, "0", receive(t, fast))
	assert.Equal(t, "1", receive(t, fast))
	assert.Equal(t, "2", receive(t, fast))
	assert.Equal(t, 2, h.RoomSize("R"))

	assert.Equal(t, "0", receive(t, slow))
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestRunStopClosesClients(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	a := fakeClient(h, "a", 1)
	h.Join(a, "R")
	cancel()
	<-done

	_, ok := <-a.send
	assert.False(t, ok)
	// calls after shutdown return instead of blocking
	h.Unregister(a)
	h.Join(a, "R")
	assert.Equal(t, 0, h.RoomSize("R"))
}

type recordingRelay struct {
	mu        sync.Mutex
	published []string
	subs      []string
}

func (r *recordingRelay) Publish(_ context.Context, room string, _ protocol.Type, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, room+":"+string(payload))
	return nil
}

func (r *recordingRelay) Subscribe(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, "+"+room)
}

func (r *recordingRelay) Unsubscribe(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, "-"+room)
}

func TestRelayWiring(t *testing.T) {
	relay := &recordingRelay{}
	h := newTestHub(t, WithRelay(relay))
	a := fakeClient(h, "a", 8)
	b := fakeClient(h, "b", 8)
	h.Join(a, "R")
	h.Join(b, "R")

	h.Broadcast(context.Background(), a, "R", protocol.TypeDraw, []byte(`x`))
	h.Deliver("R", protocol.TypeDraw, []byte(`remote`))

	assert.Equal(t, "x", receive(t, b))
	assert.Equal(t, "remote", receive(t, a))
	assert.Equal(t, "remote", receive(t, b))

	h.Unregister(a)
	h.Unregister(b)
	h.RoomSize("R")

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Equal(t, []string{"R:x"}, relay.published)
	assert.Equal(t, []string{"+R", "-R"}, relay.subs)
}
