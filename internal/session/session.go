// Package session composes one participant's overlay engine: authoritative
// store, presence monitor, gesture controller, override layer, popup,
// timeline and the command bus, for either role.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"slateboard/overlay/internal/authority"
	"slateboard/overlay/internal/bus"
	"slateboard/overlay/internal/clock"
	"slateboard/overlay/internal/gesture"
	"slateboard/overlay/internal/override"
	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/timeline"
	"slateboard/overlay/internal/util"
	"slateboard/overlay/internal/wire"
)

type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

const (
	DefaultPromptBoxID   = "shared-prompt"
	DefaultFeedbackBoxID = "local-feedback"

	// request-context returns at most this many timeline entries.
	contextTimelineLimit = 80
)

type Config struct {
	Role    Role
	Channel relay.Channel // nil degrades to local-only mode

	Scheduler     clock.Scheduler
	PromptBoxID   string
	FeedbackBoxID string

	// OnTrayToggle is an optional external callback (e.g. a sibling
	// audio/video module). It runs guarded: a panic inside it is logged
	// and contained.
	OnTrayToggle func(open bool)
}

// RenderBox is one entry of the render set: the effective box after local
// overrides, plus popup lifecycle flags.
type RenderBox struct {
	wire.Box
	Closing   bool `json:"closing,omitempty"`
	Ephemeral bool `json:"ephemeral,omitempty"`
}

type Session struct {
	cfg      Config
	clientID string
	store    *authority.Store
	monitor  *authority.Monitor
	recorder *timeline.Recorder
	layer    *override.Layer
	popup    *override.Popup
	menu     *gesture.Menu
	gestures *gesture.Controller
	commands *bus.Bus

	mu              sync.Mutex
	renderListeners []func()
}

func New(cfg Config) *Session {
	if cfg.Scheduler == nil {
		cfg.Scheduler = clock.System()
	}
	if cfg.PromptBoxID == "" {
		cfg.PromptBoxID = DefaultPromptBoxID
	}
	if cfg.FeedbackBoxID == "" {
		cfg.FeedbackBoxID = DefaultFeedbackBoxID
	}
	if cfg.Role != RolePresenter {
		cfg.Role = RoleViewer
	}

	s := &Session{cfg: cfg, clientID: util.NewID("client")}
	s.store = authority.NewStore(s.clientID, cfg.Role == RolePresenter, cfg.Channel)
	s.monitor = authority.NewMonitor(s.store)
	s.recorder = timeline.NewRecorder()
	s.layer = override.NewLayer(cfg.PromptBoxID)
	s.popup = override.NewPopup(cfg.FeedbackBoxID, cfg.Scheduler, s.notifyRender)
	s.menu = gesture.NewMenu(s.notifyRender)
	s.gestures = gesture.NewController(s.store, s.layer, s.menu, cfg.Scheduler, s.notifyRender)
	s.commands = bus.New()

	s.store.OnBoxes(s.recorder.RecordBoxes)
	s.store.OnTray(s.recorder.RecordTray)
	s.store.OnBoxes(func(_, next []wire.Box) { s.layer.Observe(next) })
	s.store.OnBoxes(func(_, _ []wire.Box) { s.notifyRender() })
	s.store.OnTray(func(_, _ wire.TrayState) { s.notifyRender() })

	s.bindCommands()
	return s
}

func (s *Session) ClientID() string { return s.clientID }

func (s *Session) Role() Role { return s.cfg.Role }

func (s *Session) Bus() *bus.Bus { return s.commands }

func (s *Session) Tray() wire.TrayState { return s.store.Tray() }

func (s *Session) Menu() (string, bool) { return s.menu.Current() }

// Attach joins the relay. A nil channel or a failed attach degrades to
// no-realtime mode: the overlay keeps working locally, nothing retries.
func (s *Session) Attach(ctx context.Context) {
	if s.cfg.Channel == nil {
		log.Printf("session %s: no relay configured, running local-only", s.clientID)
		return
	}
	meta := map[string]string{"role": string(s.cfg.Role)}
	if err := s.monitor.Attach(ctx, s.cfg.Channel, meta); err != nil {
		log.Printf("session %s: relay attach failed, degrading to local-only: %v", s.clientID, err)
	}
}

func (s *Session) bindCommands() {
	h := bus.Handlers{}
	if s.cfg.Role == RolePresenter {
		h.ToggleTray = func() { s.ToggleTray(context.Background()) }
		h.ScriptApply = func(cmd bus.ScriptApply) { s.ScriptApply(context.Background(), cmd) }
		h.RequestContext = s.contextReply
	} else {
		h.LocalApply = func(cmd bus.LocalApply) { s.popup.Apply(cmd.Text, cmd.Visible) }
	}
	s.commands.Bind(h)
}

// ToggleTray flips the authoring tray and notifies the optional sibling
// callback.
func (s *Session) ToggleTray(ctx context.Context) {
	if s.cfg.Role != RolePresenter {
		return
	}
	next := s.store.Tray()
	next.IsOpen = !next.IsOpen
	s.store.SetTray(ctx, next)
	s.invokeTrayCallback(next.IsOpen)
}

func (s *Session) invokeTrayCallback(open bool) {
	if s.cfg.OnTrayToggle == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: tray callback panicked: %v", s.clientID, r)
		}
	}()
	s.cfg.OnTrayToggle(open)
}

// AddBox creates a new shared box above everything else, selects it in the
// tray, and broadcasts both slices through the usual presenter path.
func (s *Session) AddBox(ctx context.Context, text string) string {
	if s.cfg.Role != RolePresenter {
		return ""
	}
	boxes := s.store.Boxes()
	id := util.NewID("box")
	boxes = append(boxes, wire.Box{
		ID:      id,
		Text:    text,
		X:       wire.DefaultX,
		Y:       wire.DefaultY,
		W:       wire.DefaultW,
		H:       wire.DefaultH,
		Z:       maxZ(boxes) + 1,
		Visible: true,
	})
	s.store.SetBoxes(ctx, boxes)
	s.store.SetTray(ctx, wire.TrayState{IsOpen: true, ActiveID: &id})
	return id
}

// ScriptApply upserts a box. A nil id targets the reserved prompt box. Empty
// text with visible=false hides rather than deletes, and hiding a box that
// does not exist is a no-op.
func (s *Session) ScriptApply(ctx context.Context, cmd bus.ScriptApply) {
	if s.cfg.Role != RolePresenter {
		return
	}
	id := s.cfg.PromptBoxID
	if cmd.ID != nil && *cmd.ID != "" {
		id = *cmd.ID
	}

	boxes := s.store.Boxes()
	for i := range boxes {
		if boxes[i].ID != id {
			continue
		}
		if cmd.Text != nil {
			boxes[i].Text = *cmd.Text
		}
		if cmd.Visible != nil {
			boxes[i].Visible = *cmd.Visible
		}
		s.store.SetBoxes(ctx, boxes)
		return
	}

	if cmd.Visible != nil && !*cmd.Visible {
		return
	}
	text := ""
	if cmd.Text != nil {
		text = *cmd.Text
	}
	boxes = append(boxes, wire.Box{
		ID:      id,
		Text:    text,
		X:       wire.DefaultX,
		Y:       wire.DefaultY,
		W:       wire.DefaultW,
		H:       wire.DefaultH,
		Z:       maxZ(boxes) + 1,
		Visible: true,
	})
	s.store.SetBoxes(ctx, boxes)
}

// SetBoxText edits a box's text from the authoring tray.
func (s *Session) SetBoxText(ctx context.Context, id, text string) {
	if s.cfg.Role != RolePresenter {
		return
	}
	boxes := s.store.Boxes()
	for i := range boxes {
		if boxes[i].ID == id {
			boxes[i].Text = text
			s.store.SetBoxes(ctx, boxes)
			return
		}
	}
}

// RemoveBox hard-deletes a box from the shared array.
func (s *Session) RemoveBox(ctx context.Context, id string) {
	if s.cfg.Role != RolePresenter {
		return
	}
	boxes := s.store.Boxes()
	kept := boxes[:0]
	removed := false
	for _, box := range boxes {
		if box.ID == id {
			removed = true
			continue
		}
		kept = append(kept, box)
	}
	if !removed {
		return
	}
	s.store.SetBoxes(ctx, kept)

	tray := s.store.Tray()
	if tray.ActiveID != nil && *tray.ActiveID == id {
		tray.ActiveID = nil
		s.store.SetTray(ctx, tray)
	}
}

// DismissPrompt hides the reserved prompt for this viewer only.
func (s *Session) DismissPrompt() {
	s.layer.Hide(s.cfg.PromptBoxID)
	s.notifyRender()
}

// Pointer events, forwarded from the host canvas. Any pointerdown lands
// outside the menu chrome, so it closes an open menu first.
func (s *Session) PointerDown(target gesture.Target, x, y float64, bounds gesture.Bounds) {
	s.menu.Close()
	s.gestures.PointerDown(target, x, y, bounds)
}

func (s *Session) PointerMove(x, y float64) { s.gestures.PointerMove(x, y) }

func (s *Session) PointerUp(ctx context.Context) { s.gestures.PointerUp(ctx) }

func (s *Session) PointerCancel() { s.gestures.PointerCancel() }

func (s *Session) ContextClick(boxID string) { s.gestures.ContextClick(boxID) }

func (s *Session) Escape() { s.menu.Close() }

// MenuAction applies a context-menu action to the menu's box and closes the
// menu.
func (s *Session) MenuAction(ctx context.Context, action string) {
	id, open := s.menu.Current()
	s.menu.Close()
	if !open || s.cfg.Role != RolePresenter {
		return
	}

	boxes := s.store.Boxes()
	switch action {
	case "hide", "show", "lock", "unlock", "front":
	case "delete":
		s.RemoveBox(ctx, id)
		return
	default:
		return
	}
	for i := range boxes {
		if boxes[i].ID != id {
			continue
		}
		switch action {
		case "hide":
			boxes[i].Visible = false
		case "show":
			boxes[i].Visible = true
		case "lock":
			boxes[i].Locked = true
		case "unlock":
			boxes[i].Locked = false
		case "front":
			boxes[i].Z = maxZ(boxes) + 1
		}
		s.store.SetBoxes(ctx, boxes)
		return
	}
}

// Render computes the current render set: visible shared boxes with local
// overrides merged in, plus the ephemeral popup, in (z, id) paint order.
func (s *Session) Render() []RenderBox {
	out := make([]RenderBox, 0, len(s.store.Boxes())+1)
	for _, box := range s.store.Boxes() {
		eff := box
		show := true
		if s.cfg.Role != RolePresenter {
			eff, show = s.layer.Effective(box)
		}
		if !eff.Visible || !show {
			continue
		}
		out = append(out, RenderBox{Box: eff})
	}
	if box, closing, present := s.popup.Snapshot(); present {
		out = append(out, RenderBox{Box: box, Closing: closing, Ephemeral: true})
	}
	return out
}

// OnRender registers a listener invoked after any change that affects the
// render set.
func (s *Session) OnRender(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderListeners = append(s.renderListeners, fn)
}

func (s *Session) notifyRender() {
	s.mu.Lock()
	listeners := make([]func(), len(s.renderListeners))
	copy(listeners, s.renderListeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) contextReply(req bus.ContextRequest) bus.ContextReply {
	boxes := s.store.Boxes()
	summaries := make([]bus.BoxSummary, len(boxes))
	for i, box := range boxes {
		summaries[i] = bus.BoxSummary{ID: box.ID, Text: box.Text, Visible: box.Visible, Z: box.Z}
	}
	return bus.ContextReply{
		RequestID:    req.RequestID,
		TS:           time.Now().UnixMilli(),
		OverlayState: s.store.Tray(),
		Boxes:        summaries,
		Timeline:     s.recorder.Recent(contextTimelineLimit),
	}
}

// Close cancels the session's timers. The relay channel belongs to the
// caller.
func (s *Session) Close() {
	s.popup.Stop()
}

func maxZ(boxes []wire.Box) int {
	max := 0
	for _, box := range boxes {
		if box.Z > max {
			max = box.Z
		}
	}
	return max
}
