package authority

import (
	"context"
	"fmt"

	"slateboard/overlay/internal/relay"
)

// Monitor wires presence to resync. The relay retains no history, so a
// just-joined viewer sees nothing until the presenter republishes; every
// "enter" therefore triggers a full broadcast from the presenter.
type Monitor struct {
	store *Store
}

func NewMonitor(store *Store) *Monitor {
	return &Monitor{store: store}
}

// Attach subscribes the store to the channel, announces this client, and
// fires one full broadcast to cover the presenter joining after viewers.
func (m *Monitor) Attach(ctx context.Context, channel relay.Channel, meta map[string]string) error {
	channel.Subscribe(m.store.Apply)
	channel.PresenceSubscribe(func(ev relay.PresenceEvent) {
		if ev.Action != relay.PresenceActionEnter {
			return
		}
		if ev.ClientID == m.store.ClientID() {
			return
		}
		m.store.BroadcastFull(context.Background())
	})

	if err := channel.PresenceEnter(ctx, m.store.ClientID(), meta); err != nil {
		return fmt.Errorf("presence enter: %w", err)
	}
	m.store.BroadcastFull(ctx)
	return nil
}
