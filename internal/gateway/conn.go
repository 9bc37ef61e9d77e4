package gateway

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"slateboard/overlay/internal/bus"
	"slateboard/overlay/internal/gesture"
	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/session"
	"slateboard/overlay/internal/wire"
)

// inboundFrame is the single envelope for everything the host page sends.
// Which fields matter depends on Type.
type inboundFrame struct {
	Type string `json:"type"`

	// pointer-down / pointer-move / pointer-up / pointer-cancel
	BoxID   string  `json:"boxId,omitempty"`
	Resize  bool    `json:"resize,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	CanvasW float64 `json:"canvasW,omitempty"`
	CanvasH float64 `json:"canvasH,omitempty"`

	// script-apply / local-apply / add-box / remove-box / set-text
	ID      *string `json:"id,omitempty"`
	Text    *string `json:"text,omitempty"`
	Visible *bool   `json:"visible,omitempty"`

	// request-context
	RequestID string `json:"requestId,omitempty"`

	// menu-action
	Action string `json:"action,omitempty"`
}

type renderFrame struct {
	Type  string              `json:"type"`
	Boxes []session.RenderBox `json:"boxes"`
	Tray  wire.TrayState      `json:"tray"`
	Menu  string              `json:"menu,omitempty"`
}

type contextFrame struct {
	Type string `json:"type"`
	bus.ContextReply
}

type errorFrame struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

const outboundBuffer = 32

type conn struct {
	id      string
	ws      *websocket.Conn
	sess    *session.Session
	channel relay.Channel
	out     chan any
}

func newConn(ws *websocket.Conn, sess *session.Session, channel relay.Channel, subject string) *conn {
	c := &conn{
		id:      uuid.NewString(),
		ws:      ws,
		sess:    sess,
		channel: channel,
		out:     make(chan any, outboundBuffer),
	}
	log.Printf("gateway: conn %s opened for %s (%s)", c.id, subject, sess.Role())
	return c
}

func (c *conn) run(ctx context.Context) {
	defer c.teardown()

	c.sess.OnRender(func() { c.queue(c.renderSnapshot()) })
	c.sess.Attach(ctx)

	done := make(chan struct{})
	go c.writeLoop(done)

	c.queue(c.renderSnapshot())
	c.readLoop(ctx)
	close(c.out)
	<-done
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		var f inboundFrame
		if err := c.ws.ReadJSON(&f); err != nil {
			return
		}
		c.handle(ctx, f)
	}
}

func (c *conn) handle(ctx context.Context, f inboundFrame) {
	switch f.Type {
	case "pointer-down":
		c.sess.PointerDown(
			gesture.Target{BoxID: f.BoxID, Resize: f.Resize},
			f.X, f.Y,
			gesture.Bounds{W: f.CanvasW, H: f.CanvasH},
		)
	case "pointer-move":
		c.sess.PointerMove(f.X, f.Y)
	case "pointer-up":
		c.sess.PointerUp(ctx)
	case "pointer-cancel":
		c.sess.PointerCancel()
	case "context-click":
		c.sess.ContextClick(f.BoxID)
	case "escape":
		c.sess.Escape()
	case "menu-action":
		c.sess.MenuAction(ctx, f.Action)
	case "toggle-tray":
		c.sess.Bus().ToggleTray()
	case "script-apply":
		c.sess.Bus().ScriptApply(bus.ScriptApply{ID: f.ID, Text: f.Text, Visible: f.Visible})
	case "local-apply":
		c.sess.Bus().LocalApply(bus.LocalApply{Text: f.Text, Visible: f.Visible})
	case "add-box":
		text := ""
		if f.Text != nil {
			text = *f.Text
		}
		c.sess.AddBox(ctx, text)
	case "remove-box":
		if f.ID != nil {
			c.sess.RemoveBox(ctx, *f.ID)
		}
	case "set-text":
		if f.ID != nil && f.Text != nil {
			c.sess.SetBoxText(ctx, *f.ID, *f.Text)
		}
	case "dismiss-prompt":
		c.sess.DismissPrompt()
	case "request-context":
		reply, err := c.sess.Bus().RequestContext(bus.ContextRequest{RequestID: f.RequestID})
		if err != nil {
			c.queue(errorFrame{Type: "error", Code: "NOT_PRESENTER"})
			return
		}
		c.queue(contextFrame{Type: "context", ContextReply: reply})
	default:
		log.Printf("gateway: conn %s sent unknown frame type %q", c.id, f.Type)
	}
}

func (c *conn) renderSnapshot() renderFrame {
	menuID, _ := c.sess.Menu()
	return renderFrame{
		Type:  "render",
		Boxes: c.sess.Render(),
		Tray:  c.sess.Tray(),
		Menu:  menuID,
	}
}

// queue never blocks; under backpressure stale render frames are the first
// casualty, and the next render carries the full state anyway.
func (c *conn) queue(msg any) {
	defer func() {
		// The out channel closes when the read loop ends; a late render
		// notification from a relay message may still race in.
		_ = recover()
	}()
	select {
	case c.out <- msg:
	default:
	}
}

func (c *conn) writeLoop(done chan struct{}) {
	defer close(done)
	for msg := range c.out {
		if err := c.ws.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *conn) teardown() {
	c.sess.Close()
	if c.channel != nil {
		_ = c.channel.Close()
	}
	_ = c.ws.Close()
	log.Printf("gateway: conn %s closed", c.id)
}
