// Package override holds viewer-only state that never reaches the relay:
// per-client geometry/visibility overrides for reserved boxes, and the
// ephemeral feedback popup.
package override

import (
	"fmt"
	"sync"

	"slateboard/overlay/internal/wire"
)

// Override carries the fields a viewer has changed locally for one reserved
// box. Nil geometry pointers mean "use the shared value".
type Override struct {
	X, Y, W, H *float64
	Hidden     bool
}

// Layer redirects gestures on reserved box ids away from the authoritative
// store into per-client records, and merges them back at render time.
type Layer struct {
	mu         sync.Mutex
	reserved   map[string]bool
	overrides  map[string]*Override
	signatures map[string]string
}

func NewLayer(reservedIDs ...string) *Layer {
	reserved := make(map[string]bool, len(reservedIDs))
	for _, id := range reservedIDs {
		reserved[id] = true
	}
	return &Layer{
		reserved:   reserved,
		overrides:  make(map[string]*Override),
		signatures: make(map[string]string),
	}
}

func (l *Layer) IsReserved(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved[id]
}

// SetGeometry records a viewer-chosen position and size for a reserved box.
// Non-reserved ids are ignored.
func (l *Layer) SetGeometry(id string, x, y, w, h float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.reserved[id] {
		return
	}
	ov := l.ensure(id)
	ov.X, ov.Y, ov.W, ov.H = &x, &y, &w, &h
}

// Hide dismisses a reserved box for this viewer only.
func (l *Layer) Hide(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.reserved[id] {
		return
	}
	l.ensure(id).Hidden = true
}

// Observe inspects an incoming authoritative box array. When a reserved box's
// signature (visible + text) changes, the viewer's dismissal is cleared so a
// reissued prompt becomes visible again; geometry overrides are kept so it
// reappears at the viewer's last-chosen spot.
func (l *Layer) Observe(boxes []wire.Box) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, box := range boxes {
		if !l.reserved[box.ID] {
			continue
		}
		sig := signature(box)
		if last, seen := l.signatures[box.ID]; seen && last != sig {
			if ov, ok := l.overrides[box.ID]; ok {
				ov.Hidden = false
			}
		}
		l.signatures[box.ID] = sig
	}
}

// Effective merges any override over the shared box. The second return is
// false when the viewer has dismissed the box.
func (l *Layer) Effective(box wire.Box) (wire.Box, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ov, ok := l.overrides[box.ID]
	if !ok || !l.reserved[box.ID] {
		return box, true
	}
	if ov.X != nil {
		box.X = *ov.X
	}
	if ov.Y != nil {
		box.Y = *ov.Y
	}
	if ov.W != nil {
		box.W = *ov.W
	}
	if ov.H != nil {
		box.H = *ov.H
	}
	return box, !ov.Hidden
}

// Snapshot returns a copy of the override for a given id, if any.
func (l *Layer) Snapshot(id string) (Override, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ov, ok := l.overrides[id]
	if !ok {
		return Override{}, false
	}
	return *ov, true
}

// ensure assumes l.mu is held.
func (l *Layer) ensure(id string) *Override {
	ov, ok := l.overrides[id]
	if !ok {
		ov = &Override{}
		l.overrides[id] = ov
	}
	return ov
}

func signature(box wire.Box) string {
	return fmt.Sprintf("%t|%s", box.Visible, box.Text)
}
