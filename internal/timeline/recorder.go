// Package timeline derives a bounded audit log from authoritative state
// changes. Events are computed by diffing, never authoritative themselves.
package timeline

import (
	"strings"
	"sync"
	"time"

	"slateboard/overlay/internal/wire"
)

type Kind string

const (
	KindOverlayState Kind = "overlay-state"
	KindBox          Kind = "box"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionShow   Action = "show"
	ActionHide   Action = "hide"
	ActionText   Action = "text"
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
)

// Capacity bounds the ring buffer; the oldest event is evicted first.
const Capacity = 250

const snippetLimit = 60

type Event struct {
	TS          time.Time `json:"ts"`
	Kind        Kind      `json:"kind"`
	Action      Action    `json:"action"`
	BoxID       string    `json:"boxId,omitempty"`
	Visible     *bool     `json:"visible,omitempty"`
	TextSnippet string    `json:"textSnippet,omitempty"`
}

type Recorder struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// RecordBoxes diffs two authoritative box arrays by id and appends one event
// per observed change.
func (r *Recorder) RecordBoxes(prev, next []wire.Box) {
	prevByID := make(map[string]wire.Box, len(prev))
	for _, box := range prev {
		prevByID[box.ID] = box
	}
	nextIDs := make(map[string]bool, len(next))

	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now()

	for _, box := range next {
		nextIDs[box.ID] = true
		before, existed := prevByID[box.ID]
		if !existed {
			visible := box.Visible
			r.append(Event{TS: ts, Kind: KindBox, Action: ActionCreate, BoxID: box.ID, Visible: &visible, TextSnippet: snippet(box.Text)})
			continue
		}
		if before.Visible != box.Visible {
			action := ActionHide
			if box.Visible {
				action = ActionShow
			}
			visible := box.Visible
			r.append(Event{TS: ts, Kind: KindBox, Action: action, BoxID: box.ID, Visible: &visible})
		}
		if strings.TrimSpace(before.Text) != strings.TrimSpace(box.Text) {
			r.append(Event{TS: ts, Kind: KindBox, Action: ActionText, BoxID: box.ID, TextSnippet: snippet(box.Text)})
		}
	}
	for _, box := range prev {
		if !nextIDs[box.ID] {
			r.append(Event{TS: ts, Kind: KindBox, Action: ActionDelete, BoxID: box.ID})
		}
	}
}

// RecordTray appends an open/close event when the tray state flips.
func (r *Recorder) RecordTray(prev, next wire.TrayState) {
	if prev.IsOpen == next.IsOpen {
		return
	}
	action := ActionClose
	if next.IsOpen {
		action = ActionOpen
	}
	boxID := ""
	if next.ActiveID != nil {
		boxID = *next.ActiveID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(Event{TS: r.now(), Kind: KindOverlayState, Action: action, BoxID: boxID})
}

// Recent returns up to n events, oldest first. n <= 0 returns nothing.
func (r *Recorder) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(r.events) {
		n = len(r.events)
	}
	out := make([]Event, n)
	copy(out, r.events[len(r.events)-n:])
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// append assumes r.mu is held.
func (r *Recorder) append(ev Event) {
	r.events = append(r.events, ev)
	if len(r.events) > Capacity {
		r.events = append(r.events[:0], r.events[len(r.events)-Capacity:]...)
	}
}

func snippet(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > snippetLimit {
		return trimmed[:snippetLimit]
	}
	return trimmed
}
