package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"collabboard/internal/protocol"
)

const channelPrefix = "board:room:"

type relayEnvelope struct {
	Instance string          `json:"instance"`
	Type     protocol.Type   `json:"type"`
	Payload  json.RawMessage `json:"payload"`
}

type subscription struct {
	room string
	on   bool
}

// RedisRelay shares room traffic between relay instances over Redis pub/sub.
// Each instance subscribes to a room channel only while it has local members.
type RedisRelay struct {
	rdb      *redis.Client
	instance string
	log      zerolog.Logger

	mu      sync.Mutex
	pending []subscription
	stopped bool
	wake    chan struct{}
}

// NewRedisRelay wraps rdb. instance identifies this process; an empty value
// picks a random one.
func NewRedisRelay(rdb *redis.Client, instance string, log zerolog.Logger) *RedisRelay {
	if instance == "" {
		instance = uuid.NewString()
	}
	return &RedisRelay{
		rdb:      rdb,
		instance: instance,
		log:      log,
		wake:     make(chan struct{}, 1),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, room string, typ protocol.Type, payload []byte) error {
	data, err := json.Marshal(relayEnvelope{Instance: r.instance, Type: typ, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	return r.rdb.Publish(ctx, channelPrefix+room, data).Err()
}

func (r *RedisRelay) Subscribe(room string) { r.queue(subscription{room: room, on: true}) }
func (r *RedisRelay) Unsubscribe(room string) { r.queue(subscription{room: room, on: false}) }

// queue hands op to Run without blocking the hub loop. Once Run has
// returned, changes are dropped.
func (r *RedisRelay) queue(op subscription) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, op)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *RedisRelay) takePending() []subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := r.pending
	r.pending = nil
	return ops
}

// Run applies subscription changes in order and hands messages from other
// instances to h until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, h *Hub) error {
	defer func() {
		r.mu.Lock()
		r.stopped = true
		r.pending = nil
		r.mu.Unlock()
	}()
	pubsub := r.rdb.Subscribe(ctx)
	defer pubsub.Close()
	msgs := pubsub.Channel()

	for {
		select {
		case <-r.wake:
			for _, op := range r.takePending() {
				r.apply(ctx, pubsub, op)
			}
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handle(h, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *RedisRelay) apply(ctx context.Context, pubsub *redis.PubSub, op subscription) {
	var err error
	if op.on {
		err = pubsub.Subscribe(ctx, channelPrefix+op.room)
	} else {
		err = pubsub.Unsubscribe(ctx, channelPrefix+op.room)
	}
	if err != nil {
		r.log.Error().Err(err).Str("room", op.room).Bool("subscribe", op.on).Msg("relay subscription change failed")
	}
}

func (r *RedisRelay) handle(h *Hub, msg *redis.Message) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed relay message")
		return
	}
	// Local members already got it from the originating hub.
	if env.Instance == r.instance {
		return
	}
	h.Deliver(strings.TrimPrefix(msg.Channel, channelPrefix), env.Type, env.Payload)
}
