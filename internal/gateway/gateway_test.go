package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"

	"slateboard/overlay/internal/auth"
	"slateboard/overlay/internal/config"
	"slateboard/overlay/internal/relay"
)

func testConfig() config.Config {
	return config.Config{
		TokenSecret:   "test-secret",
		CORSOrigin:    "*",
		Scope:         "room-1",
		PromptBoxID:   "shared-prompt",
		FeedbackBoxID: "local-feedback",
	}
}

func issueToken(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  "user-" + role,
		Role: role,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return token
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until pred is satisfied or the deadline passes.
func readUntil(t *testing.T, ws *websocket.Conn, what string, pred func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = ws.SetReadDeadline(time.Now().Add(time.Second))
		_, payload, err := ws.ReadMessage()
		if err != nil {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("unreadable frame: %v", err)
		}
		if pred(frame) {
			return frame
		}
	}
	t.Fatalf("never received %s", what)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	server := httptest.NewServer(New(testConfig(), nil).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body)
	}
}

func TestWSRejectsBadToken(t *testing.T) {
	server := httptest.NewServer(New(testConfig(), nil).Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestPresenterCommandsRoundTrip(t *testing.T) {
	server := httptest.NewServer(New(testConfig(), nil).Handler())
	defer server.Close()

	ws := dial(t, server, issueToken(t, auth.RolePresenter))

	if err := ws.WriteJSON(map[string]any{"type": "add-box", "text": "hello class"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The tray opens on the new box, so wait for the render that carries both.
	readUntil(t, ws, "render with the new box and open tray", func(f map[string]any) bool {
		if f["type"] != "render" {
			return false
		}
		tray, _ := f["tray"].(map[string]any)
		if tray["isOpen"] != true {
			return false
		}
		boxes, _ := f["boxes"].([]any)
		for _, raw := range boxes {
			box, _ := raw.(map[string]any)
			if box["text"] == "hello class" {
				return true
			}
		}
		return false
	})

	if err := ws.WriteJSON(map[string]any{"type": "request-context", "requestId": "req-1"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ctxFrame := readUntil(t, ws, "context reply", func(f map[string]any) bool {
		return f["type"] == "context"
	})
	if ctxFrame["requestId"] != "req-1" {
		t.Errorf("expected requestId echo, got %v", ctxFrame["requestId"])
	}
}

func TestViewerContextRequestRejected(t *testing.T) {
	server := httptest.NewServer(New(testConfig(), nil).Handler())
	defer server.Close()

	ws := dial(t, server, issueToken(t, auth.RoleViewer))
	if err := ws.WriteJSON(map[string]any{"type": "request-context", "requestId": "r"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frame := readUntil(t, ws, "error frame", func(f map[string]any) bool {
		return f["type"] == "error"
	})
	if frame["code"] != "NOT_PRESENTER" {
		t.Errorf("expected NOT_PRESENTER, got %v", frame["code"])
	}
}

func TestPresenterToViewerOverRedis(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := testConfig()
	factory := func() (relay.Channel, error) {
		return relay.NewRedisChannel("redis://"+s.Addr(), cfg.Scope)
	}
	server := httptest.NewServer(New(cfg, factory).Handler())
	defer server.Close()

	presenter := dial(t, server, issueToken(t, auth.RolePresenter))
	viewer := dial(t, server, issueToken(t, auth.RoleViewer))

	if err := presenter.WriteJSON(map[string]any{"type": "add-box", "text": "synced note"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readUntil(t, viewer, "render with the synced box", func(f map[string]any) bool {
		if f["type"] != "render" {
			return false
		}
		boxes, _ := f["boxes"].([]any)
		for _, raw := range boxes {
			box, _ := raw.(map[string]any)
			if box["text"] == "synced note" {
				return true
			}
		}
		return false
	})
}
