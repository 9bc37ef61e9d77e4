// Package wire defines the message schema shared over the sync channel and
// the defensive decode step that turns arbitrary inbound JSON into typed,
// already-clamped values.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

type Kind string

const (
	KindState Kind = "state"
	KindBoxes Kind = "boxes"
)

// Defaults applied to boxes arriving with missing numeric fields.
const (
	DefaultX = 0.1
	DefaultY = 0.1
	DefaultW = 0.45
	DefaultH = 0.18
)

var ErrUnknownKind = errors.New("unknown message kind")

// Box is one floating annotation. Position and size are fractions of the host
// canvas, so a box renders at the same relative spot on every screen.
type Box struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
	Z       int     `json:"z"`
	Visible bool    `json:"visible"`
	Locked  bool    `json:"locked,omitempty"`
}

// TrayState tracks which box, if any, is selected in the authoring tray.
type TrayState struct {
	IsOpen   bool    `json:"isOpen"`
	ActiveID *string `json:"activeId"`
}

// Message is the envelope published on the channel. Exactly one of State or
// Boxes is meaningful depending on Kind. Sender is the publishing client's
// generated id; receivers drop their own messages.
type Message struct {
	Kind   Kind       `json:"kind"`
	State  *TrayState `json:"state,omitempty"`
	Boxes  []Box      `json:"boxes,omitempty"`
	TS     int64      `json:"ts"`
	Sender string     `json:"sender"`
}

func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Kind, err)
	}
	return payload, nil
}

// rawMessage mirrors Message with untyped fields so a malformed payload can be
// coerced field by field instead of rejected wholesale.
type rawMessage struct {
	Kind   string          `json:"kind"`
	State  json.RawMessage `json:"state"`
	Boxes  []rawBox        `json:"boxes"`
	TS     any             `json:"ts"`
	Sender any             `json:"sender"`
}

type rawBox struct {
	ID      any `json:"id"`
	Text    any `json:"text"`
	X       any `json:"x"`
	Y       any `json:"y"`
	W       any `json:"w"`
	H       any `json:"h"`
	Z       any `json:"z"`
	Visible any `json:"visible"`
	Locked  any `json:"locked"`
}

type rawState struct {
	IsOpen   any `json:"isOpen"`
	ActiveID any `json:"activeId"`
}

// DecodeMessage parses a channel payload into a normalized Message. Box
// entries without a string id are dropped; every surviving box has its
// fractional fields clamped to [0,1] and the array sorted by (z, id).
func DecodeMessage(payload []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	msg := Message{
		TS:     int64(coerceFloat(raw.TS, 0)),
		Sender: coerceString(raw.Sender, ""),
	}

	switch Kind(raw.Kind) {
	case KindState:
		msg.Kind = KindState
		state := decodeState(raw.State)
		msg.State = &state
	case KindBoxes:
		msg.Kind = KindBoxes
		boxes := make([]Box, 0, len(raw.Boxes))
		for _, rb := range raw.Boxes {
			box, ok := decodeBox(rb)
			if !ok {
				continue
			}
			boxes = append(boxes, box)
		}
		msg.Boxes = NormalizeBoxes(boxes)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}
	return msg, nil
}

func decodeState(raw json.RawMessage) TrayState {
	var rs rawState
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &rs)
	}
	state := TrayState{IsOpen: coerceBool(rs.IsOpen, false)}
	if id, ok := rs.ActiveID.(string); ok && id != "" {
		state.ActiveID = &id
	}
	return state
}

func decodeBox(rb rawBox) (Box, bool) {
	id, ok := rb.ID.(string)
	if !ok || id == "" {
		return Box{}, false
	}
	return Box{
		ID:      id,
		Text:    coerceString(rb.Text, ""),
		X:       coerceFloat(rb.X, DefaultX),
		Y:       coerceFloat(rb.Y, DefaultY),
		W:       coerceFloat(rb.W, DefaultW),
		H:       coerceFloat(rb.H, DefaultH),
		Z:       int(coerceFloat(rb.Z, 0)),
		Visible: coerceBool(rb.Visible, true),
		Locked:  coerceBool(rb.Locked, false),
	}, true
}

// NormalizeBoxes clamps fractional fields to [0,1] and sorts by (z asc,
// id asc). The id tie-break keeps paint order stable when z values collide.
func NormalizeBoxes(boxes []Box) []Box {
	out := make([]Box, len(boxes))
	copy(out, boxes)
	for i := range out {
		out[i].X = Clamp(out[i].X, 0, 1)
		out[i].Y = Clamp(out[i].Y, 0, 1)
		out[i].W = Clamp(out[i].W, 0, 1)
		out[i].H = Clamp(out[i].H, 0, 1)
	}
	SortBoxes(out)
	return out
}

func SortBoxes(boxes []Box) {
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Z != boxes[j].Z {
			return boxes[i].Z < boxes[j].Z
		}
		return boxes[i].ID < boxes[j].ID
	})
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func coerceString(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

func coerceFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

func coerceBool(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}
