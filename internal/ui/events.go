package ui

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jw6ventures/foodlog/internal/auth"
)

const (
	eventsPingInterval = 25 * time.Second
	eventsWriteTimeout = 10 * time.Second
)

// authEvent is the JSON frame pushed to the browser on every session transition.
type authEvent struct {
	Event         string `json:"event"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

func newAuthEvent(ev auth.Event) authEvent {
	out := authEvent{Event: string(ev.Kind)}
	if ev.Session != nil {
		out.Authenticated = true
		out.Email = ev.Session.Email
	}
	return out
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			o, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if base, err := url.Parse(h.cfg.BaseURL); err == nil && base.Host == o.Host {
				return true
			}
			return o.Host == r.Host
		},
	}
}

// Events streams the workspace's session transitions over a websocket so an
// open page notices a sign-out or token refresh from elsewhere.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)

	// Subscribe before the handshake completes so no transition is missed.
	sub := ws.Controller.Events()
	defer sub.Unsubscribe()

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// read loop ends on client close or error
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteJSON(newAuthEvent(ev)); err != nil {
				return
			}
		}
	}
}
