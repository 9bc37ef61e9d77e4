// Package gateway bridges host canvas pages to overlay sessions over
// WebSocket. Each connection gets its own session and relay subscription;
// inbound frames carry pointer events and bus commands, outbound frames carry
// render snapshots and context replies.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"slateboard/overlay/internal/auth"
	"slateboard/overlay/internal/config"
	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/session"
)

// ChannelFactory opens a fresh relay subscription for one connection. A nil
// factory runs every session local-only.
type ChannelFactory func() (relay.Channel, error)

type Gateway struct {
	cfg        config.Config
	newChannel ChannelFactory
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, newChannel ChannelFactory) *Gateway {
	g := &Gateway{cfg: cfg, newChannel: newChannel}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.CORSOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == cfg.CORSOrigin
		},
	}
	return g
}

func (g *Gateway) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", g.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", g.handleWS)
	return router
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseToken([]byte(g.cfg.TokenSecret), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
		return
	}

	role := session.RoleViewer
	if claims.Role == auth.RolePresenter {
		role = session.RolePresenter
	}

	var channel relay.Channel
	if g.newChannel != nil {
		channel, err = g.newChannel()
		if err != nil {
			// Degrade to local-only rather than refusing the page.
			log.Printf("gateway: relay unavailable, session will run local-only: %v", err)
			channel = nil
		}
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if channel != nil {
			_ = channel.Close()
		}
		log.Printf("gateway: upgrade failed: %v", err)
		return
	}

	sess := session.New(session.Config{
		Role:          role,
		Channel:       channel,
		PromptBoxID:   g.cfg.PromptBoxID,
		FeedbackBoxID: g.cfg.FeedbackBoxID,
	})
	newConn(ws, sess, channel, claims.Sub).run(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"code": code, "error": message})
}
