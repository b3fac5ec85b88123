package api

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	kvErr "github.com/campuskv/campuskv/internal/errors"
)

// SubscribeHandler handles GET /api/v1/subscribe/{key}, upgrading to a
// WebSocket that streams change events for the key until the client
// disconnects or unsubscribes.
func (h *Handler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "key is required", nil))
		return
	}

	if h.isSensitive(key) {
		h.handleError(w, r, kvErr.New(kvErr.ErrorTypeInvalidInput, "sensitive keys cannot be subscribed", nil))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "subscription closed")

	events, cancel := h.hub.Subscribe(key)
	defer cancel()

	if h.metrics != nil {
		h.metrics.SubscriberAdded()
		defer h.metrics.SubscriberRemoved()
	}

	// The feed is write-only; CloseRead discards inbound frames and
	// cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "subscription released")
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
