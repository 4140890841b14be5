package hub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/protocol"
)

// TestRedisRelayAcrossInstances needs a live Redis, e.g.
// TEST_REDIS_ADDR=localhost:6379.
func TestRedisRelayAcrossInstances(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	start := func(instance string) *Hub {
		relay := NewRedisRelay(rdb, instance, zerolog.Nop())
		h := newTestHub(t, WithRelay(relay))
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = relay.Run(ctx, h) }()
		t.Cleanup(cancel)
		return h
	}
	h1, h2 := start("one"), start("two")

	room := "relay-test-" + time.Now().Format("150405.000000")
	a := fakeClient(h1, "a", 8)
	b := fakeClient(h1, "b", 8)
	c := fakeClient(h2, "c", 8)
	h1.Join(a, room)
	h1.Join(b, room)
	h2.Join(c, room)

	// subscriptions are applied asynchronously
	require.Eventually(t, func() bool {
		n, err := rdb.PubSubNumSub(context.Background(), channelPrefix+room).Result()
		return err == nil && n[channelPrefix+room] == 2
	}, 3*time.Second, 20*time.Millisecond)

	h1.Broadcast(context.Background(), a, room, protocol.TypeClear, []byte(`{"type":"clear"}`))

	assert.Equal(t, `{"type":"clear"}`, receive(t, b))
	assert.Equal(t, `{"type":"clear"}`, receive(t, c))
	// the originating instance ignores its own echo
	time.Sleep(100 * time.Millisecond)
	assertSilent(t, a)
	assertSilent(t, b)
}

func TestRelayQueueNeverBlocks(t *testing.T) {
	r := NewRedisRelay(nil, "one", zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Subscribe("room")
			r.Unsubscribe("room")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queueing subscription changes blocked without a running relay")
	}

	ops := r.takePending()
	require.Len(t, ops, 2000)
	assert.True(t, ops[0].on)
	assert.False(t, ops[1].on)
	assert.Empty(t, r.takePending())
}
