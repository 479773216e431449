package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishRoutesByCollection(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	all := NewClient(hub, nil, "", nil)
	games := NewClient(hub, nil, "games", nil)
	movies := NewClient(hub, nil, "movies", nil)
	hub.Register <- all
	hub.Register <- games
	hub.Register <- movies

	hub.Publish(Change{Action: ActionCreate, Collection: "games", ID: "g1", Record: models.Record{"title": "Chess"}})

	msg := receive(t, all)
	assert.Equal(t, ActionCreate, msg.Action)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "games", payload["collection"])
	assert.Equal(t, "g1", payload["id"])

	assert.Equal(t, ActionCreate, receive(t, games).Action)
	assertSilent(t, movies)
}

func TestHub_ViewFiltersPerClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	hidden := NewClient(hub, nil, "notes", func(Change) (models.Record, bool) {
		return nil, false
	})
	redacted := NewClient(hub, nil, "notes", func(c Change) (models.Record, bool) {
		out := c.Record.Clone()
		delete(out, "pin")
		return out, true
	})
	hub.Join(hidden)
	hub.Join(redacted)

	hub.Publish(Change{Action: ActionCreate, Collection: "notes", ID: "n1", Record: models.Record{"_id": "n1", "pin": "4321"}})

	msg := receive(t, redacted)
	record := msg.Payload.(map[string]interface{})["record"].(map[string]interface{})
	assert.Equal(t, "n1", record["_id"])
	assert.NotContains(t, record, "pin")
	assertSilent(t, hidden)
}

func TestHub_Subscribe(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := NewClient(hub, nil, "games", nil)
	hub.Register <- c
	hub.Subscribe(c, "movies")

	hub.Publish(Change{Action: ActionDelete, Collection: "games", ID: "g1"})
	assertSilent(t, c)

	hub.Publish(Change{Action: ActionDelete, Collection: "movies", ID: "m1"})
	assert.Equal(t, ActionDelete, receive(t, c).Action)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := NewClient(hub, nil, "", nil)
	hub.Register <- c
	hub.Unregister <- c

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestHub_ReplyAndLeave(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "games", nil)
	hub.Join(client)

	hub.Reply(client, NewErrorMessage("Unknown action: dance"))
	msg := receive(t, client)
	assert.Equal(t, ActionError, msg.Action)

	hub.Leave(client)
	_, open := <-client.Send
	assert.False(t, open)

	hub.Reply(client, NewErrorMessage("ignored"))

	hub.Stop()
	hub.Leave(client)
	hub.Join(client)
}
