package override

import (
	"sync"
	"time"

	"slateboard/overlay/internal/clock"
	"slateboard/overlay/internal/wire"
)

// Popup lifecycle timing. Closing is a distinct, briefly observable phase so
// the host UI can play an exit transition before the record disappears.
const (
	PopupAutoHide = 30 * time.Second
	PopupClosing  = 230 * time.Millisecond
)

type popupPhase int

const (
	phaseAbsent popupPhase = iota
	phaseVisible
	phaseClosing
)

// Popup is the viewer-only ephemeral feedback box. It exists purely in local
// memory and never touches the authoritative store or the relay.
type Popup struct {
	mu       sync.Mutex
	id       string
	sched    clock.Scheduler
	onChange func()

	phase    popupPhase
	text     string
	hideTask clock.Task
	dropTask clock.Task
}

func NewPopup(id string, sched clock.Scheduler, onChange func()) *Popup {
	return &Popup{id: id, sched: sched, onChange: onChange}
}

// Apply drives the popup from a local-apply command. A nil text keeps the
// current text; visible=false closes, anything else (re)shows and resets the
// auto-hide timer.
func (p *Popup) Apply(text *string, visible *bool) {
	p.mu.Lock()
	if visible != nil && !*visible {
		p.beginCloseLocked()
		p.mu.Unlock()
		p.notify()
		return
	}

	if text != nil {
		p.text = *text
	}
	p.phase = phaseVisible
	p.cancelTasksLocked()
	p.hideTask = p.sched.AfterFunc(PopupAutoHide, p.autoHide)
	p.mu.Unlock()
	p.notify()
}

// Close dismisses the popup manually, entering the closing phase.
func (p *Popup) Close() {
	p.mu.Lock()
	p.beginCloseLocked()
	p.mu.Unlock()
	p.notify()
}

func (p *Popup) autoHide() {
	p.mu.Lock()
	p.beginCloseLocked()
	p.mu.Unlock()
	p.notify()
}

// beginCloseLocked assumes p.mu is held.
func (p *Popup) beginCloseLocked() {
	if p.phase != phaseVisible {
		return
	}
	p.phase = phaseClosing
	p.cancelTasksLocked()
	p.dropTask = p.sched.AfterFunc(PopupClosing, p.drop)
}

func (p *Popup) drop() {
	p.mu.Lock()
	if p.phase == phaseClosing {
		p.phase = phaseAbsent
	}
	p.mu.Unlock()
	p.notify()
}

// Snapshot returns the popup's box for the render set. present is false while
// absent; closing is true during the exit-animation window.
func (p *Popup) Snapshot() (box wire.Box, closing, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == phaseAbsent {
		return wire.Box{}, false, false
	}
	return wire.Box{
		ID:      p.id,
		Text:    p.text,
		X:       wire.DefaultX,
		Y:       wire.DefaultY,
		W:       wire.DefaultW,
		H:       wire.DefaultH,
		Z:       1 << 20, // paints above every shared box
		Visible: true,
	}, p.phase == phaseClosing, true
}

// Stop cancels outstanding timers on teardown.
func (p *Popup) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelTasksLocked()
}

// cancelTasksLocked assumes p.mu is held.
func (p *Popup) cancelTasksLocked() {
	if p.hideTask != nil {
		p.hideTask.Cancel()
		p.hideTask = nil
	}
	if p.dropTask != nil {
		p.dropTask.Cancel()
		p.dropTask = nil
	}
}

func (p *Popup) notify() {
	if p.onChange != nil {
		p.onChange()
	}
}
