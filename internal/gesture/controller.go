// Package gesture turns raw pointer events into drag/resize commits, menu
// long-presses, and local override moves. Candidate geometry is written
// locally on every move; the relay sees at most one boxes message per
// gesture, on release.
package gesture

import (
	"context"
	"sync"
	"time"

	"slateboard/overlay/internal/authority"
	"slateboard/overlay/internal/clock"
	"slateboard/overlay/internal/override"
	"slateboard/overlay/internal/wire"
)

const (
	// A pending interaction becomes a drag/resize once the squared pixel
	// displacement reaches this value; below it the gesture is a tap.
	MoveThresholdSq = 9.0

	// Long-press opens the context menu if the pointer stays within the
	// radius for the whole delay.
	LongPressDelay    = 520 * time.Millisecond
	LongPressRadiusSq = 25.0

	// Minimum box size in pixels, translated into fractional space against
	// the live canvas bounds.
	MinBoxWidthPx  = 140.0
	MinBoxHeightPx = 56.0
)

type Phase int

const (
	Idle Phase = iota
	Pending
	Committing
)

// Target identifies what the pointer went down on.
type Target struct {
	BoxID  string
	Resize bool
}

// Bounds is the host canvas size in pixels at gesture start.
type Bounds struct {
	W, H float64
}

type Controller struct {
	store    *authority.Store
	layer    *override.Layer
	menu     *Menu
	sched    clock.Scheduler
	onChange func()

	mu           sync.Mutex
	phase        Phase
	target       Target
	bounds       Bounds
	startX       float64
	startY       float64
	origin       wire.Box
	viaOverride  bool
	lpTask       clock.Task
}

func NewController(store *authority.Store, layer *override.Layer, menu *Menu, sched clock.Scheduler, onChange func()) *Controller {
	return &Controller{store: store, layer: layer, menu: menu, sched: sched, onChange: onChange}
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// PointerDown starts a gesture on a box. Viewers may only grab reserved
// boxes; presenters may grab anything not locked. Locked boxes still accept
// gestures on the override path, where moves are private anyway.
func (c *Controller) PointerDown(target Target, x, y float64, bounds Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()

	box, found := c.findBox(target.BoxID)
	if !found {
		return
	}
	presenter := c.store.Presenter()
	reserved := c.layer != nil && c.layer.IsReserved(target.BoxID)

	switch {
	case reserved && !presenter:
		box, _ = c.layer.Effective(box)
		c.viaOverride = true
	case !presenter:
		return
	case box.Locked:
		return
	default:
		c.viaOverride = false
	}

	c.phase = Pending
	c.target = target
	c.bounds = bounds
	c.startX, c.startY = x, y
	c.origin = box

	if presenter && c.menu != nil {
		boxID := target.BoxID
		c.lpTask = c.sched.AfterFunc(LongPressDelay, func() { c.longPress(boxID) })
	}
}

// PointerMove advances the state machine and, once committing, writes the
// candidate geometry locally only.
func (c *Controller) PointerMove(x, y float64) {
	c.mu.Lock()
	if c.phase == Idle {
		c.mu.Unlock()
		return
	}

	dx, dy := x-c.startX, y-c.startY
	distSq := dx*dx + dy*dy

	if c.lpTask != nil && distSq > LongPressRadiusSq {
		c.lpTask.Cancel()
		c.lpTask = nil
	}
	if c.phase == Pending && distSq >= MoveThresholdSq {
		c.phase = Committing
	}
	if c.phase != Committing {
		c.mu.Unlock()
		return
	}

	candidate := c.candidateLocked(dx, dy)
	viaOverride := c.viaOverride
	boxID := c.target.BoxID
	c.mu.Unlock()

	if viaOverride {
		c.layer.SetGeometry(boxID, candidate.X, candidate.Y, candidate.W, candidate.H)
		c.notify()
		return
	}
	c.stageGeometry(boxID, candidate)
}

// PointerUp finishes the gesture. A gesture that never crossed the movement
// threshold has no network effect; override-path moves never do.
func (c *Controller) PointerUp(ctx context.Context) {
	c.mu.Lock()
	committed := c.phase == Committing
	viaOverride := c.viaOverride
	c.resetLocked()
	c.mu.Unlock()

	if committed && !viaOverride {
		c.store.Commit(ctx)
	}
}

// PointerCancel aborts an in-flight gesture, restoring staged geometry so
// nothing unpublished lingers in local state.
func (c *Controller) PointerCancel() {
	c.mu.Lock()
	committed := c.phase == Committing
	viaOverride := c.viaOverride
	origin := c.origin
	boxID := c.target.BoxID
	c.resetLocked()
	c.mu.Unlock()

	if committed && !viaOverride {
		c.stageGeometry(boxID, origin)
	}
}

// ContextClick opens the menu from a secondary click. Presenter only.
func (c *Controller) ContextClick(boxID string) {
	if c.menu == nil || !c.store.Presenter() {
		return
	}
	c.menu.Open(boxID)
}

func (c *Controller) longPress(boxID string) {
	c.mu.Lock()
	if c.phase != Pending || c.target.BoxID != boxID {
		c.mu.Unlock()
		return
	}
	// The press becomes a menu open, not a drag.
	c.resetLocked()
	c.mu.Unlock()

	if c.menu != nil {
		c.menu.Open(boxID)
	}
}

// candidateLocked computes the next geometry for the grabbed box, clamped so
// the box stays on canvas and above the minimum pixel size. Assumes c.mu held.
func (c *Controller) candidateLocked(dx, dy float64) wire.Box {
	box := c.origin
	fw, fh := c.bounds.W, c.bounds.H
	if fw <= 0 || fh <= 0 {
		return box
	}
	dxFrac, dyFrac := dx/fw, dy/fh

	if c.target.Resize {
		minW := wire.Clamp(MinBoxWidthPx/fw, 0, 1)
		minH := wire.Clamp(MinBoxHeightPx/fh, 0, 1)
		box.W = wire.Clamp(box.W+dxFrac, minW, 1-box.X)
		box.H = wire.Clamp(box.H+dyFrac, minH, 1-box.Y)
		return box
	}
	box.X = wire.Clamp(box.X+dxFrac, 0, 1-box.W)
	box.Y = wire.Clamp(box.Y+dyFrac, 0, 1-box.H)
	return box
}

func (c *Controller) stageGeometry(boxID string, candidate wire.Box) {
	boxes := c.store.Boxes()
	for i := range boxes {
		if boxes[i].ID == boxID {
			boxes[i].X, boxes[i].Y = candidate.X, candidate.Y
			boxes[i].W, boxes[i].H = candidate.W, candidate.H
		}
	}
	c.store.StageBoxes(boxes)
}

func (c *Controller) findBox(id string) (wire.Box, bool) {
	for _, box := range c.store.Boxes() {
		if box.ID == id {
			return box, true
		}
	}
	return wire.Box{}, false
}

// resetLocked assumes c.mu is held.
func (c *Controller) resetLocked() {
	if c.lpTask != nil {
		c.lpTask.Cancel()
		c.lpTask = nil
	}
	c.phase = Idle
	c.viaOverride = false
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
