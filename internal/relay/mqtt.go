package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"slateboard/overlay/internal/wire"
)

const mqttConnectTimeout = 5 * time.Second

// MQTTChannel relays overlay traffic over an MQTT broker at QoS 0. Delivery
// matches the protocol's expectations exactly: fire-and-forget, no retained
// messages, reconnects handled by the client library.
type MQTTChannel struct {
	client mqtt.Client
	name   string

	mu               sync.RWMutex
	handlers         []Handler
	presenceHandlers []PresenceHandler
}

// NewMQTTChannel connects to the broker and subscribes to the scope's data
// and presence topics. Subscriptions are re-established on reconnect.
func NewMQTTChannel(broker, clientID, scope string) (*MQTTChannel, error) {
	name := ChannelName(scope)
	ch := &MQTTChannel{name: name}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("relay: mqtt connected to %s", broker)
		ch.subscribeTopics(c)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("relay: mqtt connection lost, will auto-reconnect: %v", err)
	}

	ch.client = mqtt.NewClient(opts)
	token := ch.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}
	return ch, nil
}

func (c *MQTTChannel) subscribeTopics(client mqtt.Client) {
	client.Subscribe(c.name, 0, func(_ mqtt.Client, m mqtt.Message) {
		msg, err := wire.DecodeMessage(m.Payload())
		if err != nil {
			log.Printf("relay: dropping undecodable message on %s: %v", c.name, err)
			return
		}
		for _, h := range c.snapshotHandlers() {
			h(msg)
		}
	})
	client.Subscribe(presenceTopic(c.name), 0, func(_ mqtt.Client, m mqtt.Message) {
		var ev PresenceEvent
		if err := json.Unmarshal(m.Payload(), &ev); err != nil {
			return
		}
		for _, h := range c.snapshotPresenceHandlers() {
			h(ev)
		}
	})
}

func (c *MQTTChannel) Publish(_ context.Context, msg wire.Message) error {
	payload, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	// QoS 0 and no token wait: the overlay treats every publish as
	// fire-and-forget, so there is nothing useful to block on.
	c.client.Publish(c.name, 0, false, payload)
	return nil
}

func (c *MQTTChannel) Subscribe(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *MQTTChannel) PresenceEnter(_ context.Context, clientID string, meta map[string]string) error {
	payload, err := json.Marshal(PresenceEvent{Action: PresenceActionEnter, ClientID: clientID, Meta: meta})
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	c.client.Publish(presenceTopic(c.name), 0, false, payload)
	return nil
}

func (c *MQTTChannel) PresenceSubscribe(h PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presenceHandlers = append(c.presenceHandlers, h)
}

func (c *MQTTChannel) Close() error {
	c.client.Disconnect(250)
	return nil
}

func (c *MQTTChannel) snapshotHandlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Handler, len(c.handlers))
	copy(out, c.handlers)
	return out
}

func (c *MQTTChannel) snapshotPresenceHandlers() []PresenceHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PresenceHandler, len(c.presenceHandlers))
	copy(out, c.presenceHandlers)
	return out
}
