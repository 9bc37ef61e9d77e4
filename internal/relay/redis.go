package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"slateboard/overlay/internal/wire"
)

// RedisChannel relays overlay traffic over Redis pub/sub. Data and presence
// share one connection; presence events are ordinary published messages on a
// sibling topic, so there is no retained history to replay for late joiners.
type RedisChannel struct {
	client *redis.Client
	name   string
	sub    *redis.PubSub
	cancel context.CancelFunc

	mu               sync.RWMutex
	handlers         []Handler
	presenceHandlers []PresenceHandler
}

// NewRedisChannel connects to Redis and subscribes to the scope's data and
// presence topics.
func NewRedisChannel(redisURL, scope string) (*RedisChannel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	name := ChannelName(scope)
	runCtx, cancelRun := context.WithCancel(context.Background())
	ch := &RedisChannel{
		client: client,
		name:   name,
		cancel: cancelRun,
	}
	ch.sub = client.Subscribe(runCtx, name, presenceTopic(name))
	go ch.run(runCtx)
	return ch, nil
}

func (c *RedisChannel) run(ctx context.Context) {
	inbound := c.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-inbound:
			if !ok {
				return
			}
			c.dispatch(m.Channel, []byte(m.Payload))
		}
	}
}

func (c *RedisChannel) dispatch(topic string, payload []byte) {
	if topic == presenceTopic(c.name) {
		var ev PresenceEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		for _, h := range c.snapshotPresenceHandlers() {
			h(ev)
		}
		return
	}

	msg, err := wire.DecodeMessage(payload)
	if err != nil {
		log.Printf("relay: dropping undecodable message on %s: %v", topic, err)
		return
	}
	for _, h := range c.snapshotHandlers() {
		h(msg)
	}
}

func (c *RedisChannel) Publish(ctx context.Context, msg wire.Message) error {
	payload, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.name, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

func (c *RedisChannel) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *RedisChannel) PresenceEnter(ctx context.Context, clientID string, meta map[string]string) error {
	payload, err := json.Marshal(PresenceEvent{Action: PresenceActionEnter, ClientID: clientID, Meta: meta})
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	if err := c.client.Publish(ctx, presenceTopic(c.name), payload).Err(); err != nil {
		return fmt.Errorf("publish presence enter: %w", err)
	}
	return nil
}

func (c *RedisChannel) PresenceSubscribe(h PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presenceHandlers = append(c.presenceHandlers, h)
}

func (c *RedisChannel) Close() error {
	c.cancel()
	_ = c.sub.Close()
	return c.client.Close()
}

func (c *RedisChannel) snapshotHandlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Handler, len(c.handlers))
	copy(out, c.handlers)
	return out
}

func (c *RedisChannel) snapshotPresenceHandlers() []PresenceHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PresenceHandler, len(c.presenceHandlers))
	copy(out, c.presenceHandlers)
	return out
}
