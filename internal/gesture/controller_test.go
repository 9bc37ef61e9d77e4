package gesture

import (
	"context"
	"sync"
	"testing"

	"slateboard/overlay/internal/authority"
	"slateboard/overlay/internal/clock"
	"slateboard/overlay/internal/override"
	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/wire"
)

// countingChannel counts publishes and remembers the last message.
type countingChannel struct {
	mu    sync.Mutex
	count int
	last  wire.Message
}

func (f *countingChannel) Publish(_ context.Context, msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.last = msg
	return nil
}

func (f *countingChannel) Subscribe(relay.Handler)                 {}
func (f *countingChannel) PresenceSubscribe(relay.PresenceHandler) {}
func (f *countingChannel) PresenceEnter(context.Context, string, map[string]string) error {
	return nil
}
func (f *countingChannel) Close() error { return nil }

func (f *countingChannel) published() (int, wire.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.last
}

const canvasW, canvasH = 1000.0, 500.0

func seedBox() wire.Box {
	return wire.Box{ID: "b1", Text: "note", X: 0.1, Y: 0.1, W: 0.45, H: 0.18, Z: 1, Visible: true}
}

func presenterSetup(t *testing.T, boxes ...wire.Box) (*Controller, *authority.Store, *countingChannel, *clock.Manual) {
	t.Helper()
	ch := &countingChannel{}
	store := authority.NewStore("presenter-1", true, ch)
	store.StageBoxes(boxes)
	sched := clock.NewManual()
	menu := NewMenu(nil)
	c := NewController(store, override.NewLayer("shared-prompt"), menu, sched, nil)
	return c, store, ch, sched
}

func TestTapBelowThresholdNeverPublishes(t *testing.T) {
	c, store, ch, _ := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(101, 102) // distSq = 5 < 9
	c.PointerUp(context.Background())

	if count, _ := ch.published(); count != 0 {
		t.Fatalf("tap must have no network effect, got %d publishes", count)
	}
	if store.Boxes()[0].X != 0.1 {
		t.Errorf("tap must not move the box")
	}
	if c.Phase() != Idle {
		t.Errorf("controller must return to idle")
	}
}

func TestDragPublishesOnceOnRelease(t *testing.T) {
	c, store, ch, _ := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(150, 100)
	c.PointerMove(200, 150)
	c.PointerMove(300, 200)

	if count, _ := ch.published(); count != 0 {
		t.Fatalf("moves must stay local, got %d publishes", count)
	}
	// Local optimistic feedback: dx=200px of 1000 → +0.2.
	if got := store.Boxes()[0].X; got != 0.3 {
		t.Fatalf("expected staged x=0.3, got %v", got)
	}

	c.PointerUp(context.Background())
	count, last := ch.published()
	if count != 1 {
		t.Fatalf("expected exactly one publish per gesture, got %d", count)
	}
	if last.Kind != wire.KindBoxes || last.Boxes[0].X != 0.3 {
		t.Errorf("final publish must carry the final geometry: %+v", last)
	}
}

func TestDragClampedToCanvas(t *testing.T) {
	c, store, _, _ := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(2000, -900)

	box := store.Boxes()[0]
	if box.X != 1-box.W {
		t.Errorf("expected x clamped to %v, got %v", 1-box.W, box.X)
	}
	if box.Y != 0 {
		t.Errorf("expected y clamped to 0, got %v", box.Y)
	}
}

func TestResizeHonorsMinimumPixelSize(t *testing.T) {
	c, store, _, _ := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1", Resize: true}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(-900, -900)

	box := store.Boxes()[0]
	if box.W != MinBoxWidthPx/canvasW {
		t.Errorf("expected w clamped to min fraction %v, got %v", MinBoxWidthPx/canvasW, box.W)
	}
	if box.H != MinBoxHeightPx/canvasH {
		t.Errorf("expected h clamped to min fraction %v, got %v", MinBoxHeightPx/canvasH, box.H)
	}
}

func TestLockedBoxRefusedForPresenter(t *testing.T) {
	locked := seedBox()
	locked.Locked = true
	c, store, ch, _ := presenterSetup(t, locked)

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	if c.Phase() != Idle {
		t.Fatalf("locked box must refuse the gesture")
	}
	c.PointerMove(300, 300)
	c.PointerUp(context.Background())

	if count, _ := ch.published(); count != 0 {
		t.Errorf("expected no publish, got %d", count)
	}
	if store.Boxes()[0].X != 0.1 {
		t.Errorf("locked box must not move")
	}
}

func TestViewerCannotDragSharedBox(t *testing.T) {
	store := authority.NewStore("viewer-1", false, &countingChannel{})
	store.StageBoxes([]wire.Box{seedBox()})
	c := NewController(store, override.NewLayer("shared-prompt"), NewMenu(nil), clock.NewManual(), nil)

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	if c.Phase() != Idle {
		t.Fatalf("viewer gesture on a shared box must be refused")
	}
}

func TestViewerDragOnReservedBoxStaysPrivate(t *testing.T) {
	ch := &countingChannel{}
	store := authority.NewStore("viewer-1", false, ch)
	reserved := seedBox()
	reserved.ID = "shared-prompt"
	reserved.Locked = true // locked does not stop the override path
	store.StageBoxes([]wire.Box{reserved})

	layer := override.NewLayer("shared-prompt")
	changed := 0
	c := NewController(store, layer, NewMenu(nil), clock.NewManual(), func() { changed++ })

	c.PointerDown(Target{BoxID: "shared-prompt"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(200, 150)
	c.PointerUp(context.Background())

	if count, _ := ch.published(); count != 0 {
		t.Fatalf("override moves must never publish, got %d", count)
	}
	if store.Boxes()[0].X != 0.1 {
		t.Fatalf("override moves must not touch the authoritative store")
	}
	eff, _ := layer.Effective(store.Boxes()[0])
	if eff.X != 0.2 || eff.Y != 0.2 {
		t.Errorf("expected override geometry x=0.2 y=0.2, got %+v", eff)
	}
	if changed == 0 {
		t.Errorf("expected render notifications for override moves")
	}
}

func TestLongPressOpensMenu(t *testing.T) {
	ch := &countingChannel{}
	store := authority.NewStore("presenter-1", true, ch)
	store.StageBoxes([]wire.Box{seedBox()})
	sched := clock.NewManual()
	menu := NewMenu(nil)
	c := NewController(store, override.NewLayer("shared-prompt"), menu, sched, nil)

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(101, 101) // within the long-press radius
	sched.Advance(LongPressDelay)

	if id, open := menu.Current(); !open || id != "b1" {
		t.Fatalf("expected menu open on b1, got %q open=%t", id, open)
	}
	if c.Phase() != Idle {
		t.Errorf("long-press must consume the gesture")
	}

	// Release after the menu opened: still no publish.
	c.PointerUp(context.Background())
	if count, _ := ch.published(); count != 0 {
		t.Errorf("long-press must not publish, got %d", count)
	}
}

func TestMovementCancelsLongPress(t *testing.T) {
	c, _, _, sched := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(110, 110) // beyond the radius
	sched.Advance(LongPressDelay)

	if sched.Pending() != 0 {
		t.Errorf("expected long-press timer canceled")
	}
	if c.Phase() != Committing {
		t.Errorf("movement past threshold should commit a drag, got phase %v", c.Phase())
	}
}

func TestPointerUpCancelsPendingLongPress(t *testing.T) {
	c, _, _, sched := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerUp(context.Background())
	sched.Advance(LongPressDelay)

	if sched.Pending() != 0 {
		t.Errorf("expected long-press timer canceled on release")
	}
}

func TestPointerCancelRevertsStagedGeometry(t *testing.T) {
	c, store, ch, _ := presenterSetup(t, seedBox())

	c.PointerDown(Target{BoxID: "b1"}, 100, 100, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(300, 300)
	if store.Boxes()[0].X == 0.1 {
		t.Fatalf("expected staged movement before cancel")
	}

	c.PointerCancel()
	if count, _ := ch.published(); count != 0 {
		t.Errorf("cancel must not publish")
	}
	box := store.Boxes()[0]
	if box.X != 0.1 || box.Y != 0.1 {
		t.Errorf("cancel must restore origin geometry, got %+v", box)
	}
	if c.Phase() != Idle {
		t.Errorf("controller must return to idle")
	}
}

func TestContextClickPresenterOnly(t *testing.T) {
	menu := NewMenu(nil)
	viewerStore := authority.NewStore("viewer-1", false, nil)
	viewer := NewController(viewerStore, nil, menu, clock.NewManual(), nil)
	viewer.ContextClick("b1")
	if _, open := menu.Current(); open {
		t.Fatalf("viewer context click must not open the menu")
	}

	presenterStore := authority.NewStore("presenter-1", true, nil)
	presenter := NewController(presenterStore, nil, menu, clock.NewManual(), nil)
	presenter.ContextClick("b1")
	if id, open := menu.Current(); !open || id != "b1" {
		t.Fatalf("presenter context click must open the menu")
	}
}

func TestUnknownBoxIgnored(t *testing.T) {
	c, _, ch, _ := presenterSetup(t, seedBox())
	c.PointerDown(Target{BoxID: "ghost"}, 0, 0, Bounds{W: canvasW, H: canvasH})
	c.PointerMove(500, 500)
	c.PointerUp(context.Background())
	if count, _ := ch.published(); count != 0 {
		t.Errorf("gesture on unknown box must be inert")
	}
}
