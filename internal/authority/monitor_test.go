package authority

import (
	"context"
	"errors"
	"testing"

	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/wire"
)

func TestPresenterBroadcastsOnAttach(t *testing.T) {
	ch := &fakeChannel{}
	s := NewStore("presenter-1", true, ch)
	s.StageBoxes([]wire.Box{{ID: "a", Visible: true}})

	if err := NewMonitor(s).Attach(context.Background(), ch, map[string]string{"role": "presenter"}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if len(ch.entered) != 1 || ch.entered[0] != "presenter-1" {
		t.Fatalf("expected presence enter, got %v", ch.entered)
	}
	sent := ch.sent()
	if len(sent) != 2 {
		t.Fatalf("expected state+boxes self-broadcast after attach, got %d", len(sent))
	}
	if sent[0].Kind != wire.KindState || sent[1].Kind != wire.KindBoxes {
		t.Errorf("expected state then boxes, got %s then %s", sent[0].Kind, sent[1].Kind)
	}
}

func TestPresenterRebroadcastsOnEnter(t *testing.T) {
	ch := &fakeChannel{}
	s := NewStore("presenter-1", true, ch)
	if err := NewMonitor(s).Attach(context.Background(), ch, nil); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	before := len(ch.sent())

	ch.deliverPresence(relay.PresenceEvent{Action: relay.PresenceActionEnter, ClientID: "viewer-7"})
	if got := len(ch.sent()) - before; got != 2 {
		t.Fatalf("expected full rebroadcast on enter, got %d messages", got)
	}

	// The presenter's own enter echo must not trigger another broadcast.
	ch.deliverPresence(relay.PresenceEvent{Action: relay.PresenceActionEnter, ClientID: "presenter-1"})
	if got := len(ch.sent()) - before; got != 2 {
		t.Errorf("self-enter must not rebroadcast, got %d extra messages", got-2)
	}

	ch.deliverPresence(relay.PresenceEvent{Action: "leave", ClientID: "viewer-7"})
	if got := len(ch.sent()) - before; got != 2 {
		t.Errorf("non-enter actions must be ignored")
	}
}

func TestViewerAttachAppliesInbound(t *testing.T) {
	ch := &fakeChannel{}
	s := NewStore("viewer-1", false, ch)
	if err := NewMonitor(s).Attach(context.Background(), ch, nil); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if len(ch.sent()) != 0 {
		t.Fatalf("viewer attach must not publish")
	}

	ch.deliver(wire.Message{
		Kind:   wire.KindBoxes,
		Boxes:  []wire.Box{{ID: "from-presenter", Visible: true}},
		Sender: "presenter-1",
	})
	if boxes := s.Boxes(); len(boxes) != 1 || boxes[0].ID != "from-presenter" {
		t.Fatalf("inbound message not applied: %+v", boxes)
	}
}

func TestAttachSurfacesPresenceError(t *testing.T) {
	ch := &fakeChannel{enterErr: errors.New("broker gone")}
	s := NewStore("viewer-1", false, ch)
	if err := NewMonitor(s).Attach(context.Background(), ch, nil); err == nil {
		t.Fatalf("expected error from failed presence enter")
	}
}
