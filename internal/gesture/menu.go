package gesture

import "sync"

// Menu is the box context menu: closed, or open on exactly one box. The
// session wires its close triggers (outside pointerdown, Escape, action
// selection).
type Menu struct {
	mu       sync.Mutex
	openID   string
	onChange func()
}

func NewMenu(onChange func()) *Menu {
	return &Menu{onChange: onChange}
}

// Open shows the menu for a box, replacing any menu already open.
func (m *Menu) Open(boxID string) {
	if boxID == "" {
		return
	}
	m.mu.Lock()
	changed := m.openID != boxID
	m.openID = boxID
	m.mu.Unlock()
	if changed {
		m.notify()
	}
}

func (m *Menu) Close() {
	m.mu.Lock()
	changed := m.openID != ""
	m.openID = ""
	m.mu.Unlock()
	if changed {
		m.notify()
	}
}

// Current returns the open box id, if any.
func (m *Menu) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openID, m.openID != ""
}

func (m *Menu) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}
