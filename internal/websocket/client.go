package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Viewer decides what a client may see of a change: the record to send, and
// false when the change must not reach the client at all.
type Viewer func(Change) (models.Record, bool)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// Collection the client follows; empty means every collection.
	Collection string

	view Viewer
}

// NewClient creates a client following collection. view filters every
// change before it is sent; a nil view sends changes as published.
func NewClient(hub *Hub, conn *websocket.Conn, collection string, view Viewer) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		Send:       make(chan []byte, 256),
		Collection: collection,
		view:       view,
	}
}

// render encodes change as this client may see it, or returns nil. Deletes
// never carry the removed record.
func (c *Client) render(change Change) []byte {
	record := change.Record
	if c.view != nil {
		var ok bool
		if record, ok = c.view(change); !ok {
			return nil
		}
	}
	if change.Action == ActionDelete {
		record = nil
	}
	return NewChangeMessage(change.Action, change.Collection, change.ID, record)
}

// ReadPump reads messages from the connection and hands them to handle. It
// returns when the connection closes.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("Websocket read error")
			}
			return
		}
		if handle != nil {
			handle(c, message)
		}
	}
}

// WritePump writes queued messages and pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
