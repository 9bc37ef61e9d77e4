// Package bus is the typed in-process command/query surface between the host
// canvas page and the overlay session. Dispatch is synchronous and
// at-most-once: a command with no bound handler is dropped.
package bus

import (
	"errors"
	"sync"

	"slateboard/overlay/internal/timeline"
	"slateboard/overlay/internal/wire"
)

var ErrNoHandler = errors.New("no handler bound")

// ScriptApply upserts or hides a shared box. A nil ID targets the session's
// reserved prompt box. Presenter only.
type ScriptApply struct {
	ID      *string `json:"id,omitempty"`
	Text    *string `json:"text,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
}

// LocalApply drives the viewer's ephemeral feedback popup.
type LocalApply struct {
	Text    *string `json:"text,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
}

// ContextRequest asks for a synchronous "what just happened" summary.
type ContextRequest struct {
	RequestID string `json:"requestId"`
}

type BoxSummary struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
	Z       int    `json:"z"`
}

type ContextReply struct {
	RequestID    string           `json:"requestId"`
	TS           int64            `json:"ts"`
	OverlayState wire.TrayState   `json:"overlayState"`
	Boxes        []BoxSummary     `json:"boxes"`
	Timeline     []timeline.Event `json:"timeline"`
}

// Handlers are the session-side bindings for each named command.
type Handlers struct {
	ToggleTray     func()
	ScriptApply    func(ScriptApply)
	LocalApply     func(LocalApply)
	RequestContext func(ContextRequest) ContextReply
}

type Bus struct {
	mu sync.RWMutex
	h  Handlers
}

func New() *Bus {
	return &Bus{}
}

// Bind replaces the full handler set.
func (b *Bus) Bind(h Handlers) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.h = h
}

func (b *Bus) ToggleTray() {
	if fn := b.handlers().ToggleTray; fn != nil {
		fn()
	}
}

func (b *Bus) ScriptApply(cmd ScriptApply) {
	if fn := b.handlers().ScriptApply; fn != nil {
		fn(cmd)
	}
}

func (b *Bus) LocalApply(cmd LocalApply) {
	if fn := b.handlers().LocalApply; fn != nil {
		fn(cmd)
	}
}

// RequestContext returns the synchronous context reply, or ErrNoHandler when
// nothing is bound (e.g. the command reached a viewer session).
func (b *Bus) RequestContext(req ContextRequest) (ContextReply, error) {
	fn := b.handlers().RequestContext
	if fn == nil {
		return ContextReply{}, ErrNoHandler
	}
	return fn(req), nil
}

func (b *Bus) handlers() Handlers {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.h
}
