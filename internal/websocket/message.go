package websocket

import (
	"encoding/json"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// Change feed actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionError  = "error"
)

// ChangePayload describes a mutated record.
type ChangePayload struct {
	Collection string      `json:"collection"`
	ID         string      `json:"id"`
	Record     interface{} `json:"record,omitempty"`
}

// Change is one record mutation handed to the hub. Record is the stored
// record the action concerns; for deletes it is the removed record.
type Change struct {
	Action     string
	Collection string
	ID         string
	Record     models.Record
}

// NewChangeMessage encodes a change feed message. A nil record is omitted.
func NewChangeMessage(action, collection, id string, record models.Record) []byte {
	payload := ChangePayload{Collection: collection, ID: id}
	if record != nil {
		payload.Record = record
	}
	return encode(Message{Action: action, Payload: payload})
}

// NewErrorMessage encodes an error message for a single client.
func NewErrorMessage(text string) []byte {
	return encode(Message{Action: ActionError, Payload: map[string]string{"message": text}})
}

func encode(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("action", msg.Action).Msg("Failed to encode websocket message")
		return nil
	}
	return data
}
