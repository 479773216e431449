package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/isdelr/practice-server/internal/auth"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/services"
	ws "github.com/isdelr/practice-server/internal/websocket"
	"github.com/rs/zerolog/log"
)

// Websocket actions accepted from clients.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// ChangeViewer applies a caller's read rules to change feed entries.
type ChangeViewer interface {
	ViewChange(rc services.RequestContext, change ws.Change) (models.Record, bool)
}

// TokenAuthenticator resolves an access token passed as a query parameter.
type TokenAuthenticator interface {
	Authenticate(token string) (models.Record, *auth.Session, error)
}

// WebSocketHandler upgrades connections to the change feed.
type WebSocketHandler struct {
	hub      *ws.Hub
	viewer   ChangeViewer
	sessions TokenAuthenticator
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(hub *ws.Hub, viewer ChangeViewer, sessions TokenAuthenticator) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, viewer: viewer, sessions: sessions}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same open policy as the REST surface.
		return true
	},
}

// Serve handles the WebSocket connection request. /ws follows every
// collection, /ws/{collection} only one. The caller is resolved from the
// X-Authorization header or a token query parameter, and every change is
// filtered through that caller's read rules.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	rc := RequestContextFrom(r)
	if token := r.URL.Query().Get("token"); token != "" && rc.User == nil {
		user, session, err := h.sessions.Authenticate(token)
		if err != nil {
			WriteError(w, http.StatusForbidden, "Invalid access token")
			return
		}
		rc.User, rc.Session = user, session
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	view := func(change ws.Change) (models.Record, bool) {
		return h.viewer.ViewChange(rc, change)
	}
	client := ws.NewClient(h.hub, conn, chi.URLParam(r, "collection"), view)
	h.hub.Join(client)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		client.WritePump()
	}()
	go func() {
		defer wg.Done()
		client.ReadPump(h.handleIncomingWSMessage)
	}()

	// Cleanup on disconnect.
	go func() {
		wg.Wait()
		h.hub.Leave(client)
	}()
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Error().Err(err).Bytes("message", message).Msg("Error decoding websocket message")
		h.hub.Reply(client, ws.NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case actionSubscribe:
		payload, _ := msg.Payload.(map[string]interface{})
		collection, _ := payload["collection"].(string)
		if collection == "" {
			h.hub.Reply(client, ws.NewErrorMessage("Missing collection in payload"))
			return
		}
		log.Debug().Str("collection", collection).Msg("Client subscribed to collection")
		h.hub.Subscribe(client, collection)

	case actionUnsubscribe:
		h.hub.Subscribe(client, "")

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		h.hub.Reply(client, ws.NewErrorMessage("Unknown action: "+msg.Action))
	}
}
