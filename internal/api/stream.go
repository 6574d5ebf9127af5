package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/staffdesk/internal/events"
)

const streamBuffer = 64

var (
	keepAliveInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Clients authenticate with the bearer token, not cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

// eventFilter reads ?events=a,b. An empty result subscribes to everything.
func eventFilter(r *http.Request) []events.Name {
	var names []events.Name
	for _, part := range strings.Split(r.URL.Query().Get("events"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, events.Name(part))
		}
	}
	return names
}

// handleEventStream relays bus events as server-sent events.
func handleEventStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		stream := deps.Portal.Bus().Stream(streamBuffer, eventFilter(r)...)
		defer stream.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case ev, ok := <-stream.C:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					deps.logger().Warn("dropping unencodable event", "event", ev.Name, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
				flusher.Flush()
			}
		}
	}
}

// handleEventSocket relays bus events over a WebSocket as JSON text frames.
// The first frame is {"event":"connected"}; inbound frames are ignored.
func handleEventSocket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			deps.logger().Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		stream := deps.Portal.Bus().Stream(streamBuffer, eventFilter(r)...)
		defer stream.Close()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		write := func(v any) error {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return conn.WriteJSON(v)
		}
		if err := write(events.Event{Name: "connected", At: time.Now().UTC()}); err != nil {
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			case ev, ok := <-stream.C:
				if !ok {
					return
				}
				if err := write(ev); err != nil {
					deps.logger().Debug("websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
