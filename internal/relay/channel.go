// Package relay abstracts the dumb pub/sub relay the overlay synchronizes
// over. The relay retains no history: a message reaches whoever is subscribed
// at publish time, and nobody else. Two transports are provided, Redis
// pub/sub and MQTT.
package relay

import (
	"context"
	"strings"

	"slateboard/overlay/internal/wire"
)

// ChannelPrefix namespaces overlay traffic away from other users of a shared
// broker.
const ChannelPrefix = "slateboard:"

const presenceSuffix = ":presence"

// PresenceActionEnter is the only presence action the overlay reacts to.
const PresenceActionEnter = "enter"

// PresenceEvent announces a participant arriving on the channel.
type PresenceEvent struct {
	Action   string            `json:"action"`
	ClientID string            `json:"clientId"`
	Meta     map[string]string `json:"meta,omitempty"`
}

type Handler func(msg wire.Message)

type PresenceHandler func(ev PresenceEvent)

// Channel is the relay seen by the engine. Publish is best-effort: a returned
// error means the message was certainly not sent, a nil return means nothing
// stronger than "handed to the transport".
type Channel interface {
	Publish(ctx context.Context, msg wire.Message) error
	Subscribe(h Handler)
	PresenceEnter(ctx context.Context, clientID string, meta map[string]string) error
	PresenceSubscribe(h PresenceHandler)
	Close() error
}

// ChannelName derives the relay topic for a classroom scope: characters
// outside [a-zA-Z0-9_-] are stripped, the rest lowercased and prefixed.
func ChannelName(scope string) string {
	var b strings.Builder
	for _, r := range scope {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return ChannelPrefix + b.String()
}

func presenceTopic(name string) string {
	return name + presenceSuffix
}
