// Package authority owns the canonical overlay state. Every participant runs
// a Store; only the presenter's publishes, and the most recently applied full
// broadcast entirely replaces the matching slice of state.
package authority

import (
	"context"
	"log"
	"sync"
	"time"

	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/wire"
)

type BoxListener func(prev, next []wire.Box)

type TrayListener func(prev, next wire.TrayState)

type Store struct {
	clientID  string
	presenter bool
	channel   relay.Channel // nil in no-realtime mode
	now       func() int64  // unix millis on the wire

	mu            sync.Mutex
	boxes         []wire.Box
	tray          wire.TrayState
	boxListeners  []BoxListener
	trayListeners []TrayListener
}

func NewStore(clientID string, presenter bool, channel relay.Channel) *Store {
	return &Store{
		clientID:  clientID,
		presenter: presenter,
		channel:   channel,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Store) ClientID() string { return s.clientID }

func (s *Store) Presenter() bool { return s.presenter }

// OnBoxes registers a listener invoked after every boxes replacement, staged
// or authoritative. Listeners run outside the store lock.
func (s *Store) OnBoxes(fn BoxListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxListeners = append(s.boxListeners, fn)
}

func (s *Store) OnTray(fn TrayListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trayListeners = append(s.trayListeners, fn)
}

func (s *Store) Boxes() []wire.Box {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Box, len(s.boxes))
	copy(out, s.boxes)
	return out
}

func (s *Store) Tray() wire.TrayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tray
}

// SetTray updates local tray state immediately and broadcasts it when the
// local client is the presenter.
func (s *Store) SetTray(ctx context.Context, next wire.TrayState) {
	s.mu.Lock()
	prev := s.tray
	s.tray = next
	listeners := append([]TrayListener(nil), s.trayListeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	s.publishState(ctx, next)
}

// SetBoxes normalizes and stores a full replacement array, then broadcasts it
// when the local client is the presenter.
func (s *Store) SetBoxes(ctx context.Context, next []wire.Box) {
	normalized := s.replaceBoxes(next)
	s.publishBoxes(ctx, normalized)
}

// StageBoxes stores a replacement array locally without publishing. Used for
// optimistic gesture feedback; Commit sends the final array once on release.
func (s *Store) StageBoxes(next []wire.Box) {
	s.replaceBoxes(next)
}

// Commit broadcasts the current boxes array. One call per gesture.
func (s *Store) Commit(ctx context.Context) {
	s.publishBoxes(ctx, s.Boxes())
}

// Apply ingests a message from the relay. Self-originated messages are
// dropped; everything else replaces the whole relevant slice of state.
func (s *Store) Apply(msg wire.Message) {
	if msg.Sender == s.clientID {
		return
	}
	switch msg.Kind {
	case wire.KindBoxes:
		s.replaceBoxes(msg.Boxes)
	case wire.KindState:
		if msg.State == nil {
			return
		}
		s.mu.Lock()
		prev := s.tray
		s.tray = *msg.State
		listeners := append([]TrayListener(nil), s.trayListeners...)
		s.mu.Unlock()
		for _, fn := range listeners {
			fn(prev, *msg.State)
		}
	}
}

// BroadcastFull republishes both slices. Used for late-joiner resync; no-op
// for viewers.
func (s *Store) BroadcastFull(ctx context.Context) {
	if !s.presenter {
		return
	}
	s.publishState(ctx, s.Tray())
	s.publishBoxes(ctx, s.Boxes())
}

func (s *Store) replaceBoxes(next []wire.Box) []wire.Box {
	normalized := wire.NormalizeBoxes(next)
	s.mu.Lock()
	prev := s.boxes
	s.boxes = normalized
	listeners := append([]BoxListener(nil), s.boxListeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, normalized)
	}
	return normalized
}

func (s *Store) publishState(ctx context.Context, state wire.TrayState) {
	if !s.presenter || s.channel == nil {
		return
	}
	msg := wire.Message{Kind: wire.KindState, State: &state, TS: s.now(), Sender: s.clientID}
	if err := s.channel.Publish(ctx, msg); err != nil {
		log.Printf("authority: state publish failed, discarding: %v", err)
	}
}

func (s *Store) publishBoxes(ctx context.Context, boxes []wire.Box) {
	if !s.presenter || s.channel == nil {
		return
	}
	msg := wire.Message{Kind: wire.KindBoxes, Boxes: boxes, TS: s.now(), Sender: s.clientID}
	if err := s.channel.Publish(ctx, msg); err != nil {
		log.Printf("authority: boxes publish failed, discarding: %v", err)
	}
}
