package models

import (
	"encoding/json"
	"errors"
)

// MessageType tags a line of tap output.
type MessageType string

const (
	MessageRecord          MessageType = "RECORD"
	MessageSchema          MessageType = "SCHEMA"
	MessageState           MessageType = "STATE"
	MessageActivateVersion MessageType = "ACTIVATE_VERSION"
	// MessageUnknown covers valid JSON with a missing or unrecognised type,
	// so newer protocol messages pass through untouched.
	MessageUnknown MessageType = "UNKNOWN"
)

// ErrMalformedMessage is returned by DecodeMessage when the line is not JSON.
var ErrMalformedMessage = errors.New("line is not valid JSON")

var emptyObject = json.RawMessage(`{}`)

// Message is a decoded protocol line. Raw is the line exactly as read;
// Value is only populated for STATE messages.
type Message struct {
	Type   MessageType
	Stream string
	Value  json.RawMessage
	Raw    []byte
}

// DecodeMessage classifies a single line of tap output. Keys are matched
// exactly; fields other than "type" never affect classification.
func DecodeMessage(line []byte) (Message, error) {
	msg := Message{Type: MessageUnknown, Raw: line}
	if !json.Valid(line) {
		return msg, ErrMalformedMessage
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		// Valid JSON that is not an object, e.g. a bare string or array.
		return msg, nil
	}
	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil {
		return msg, nil
	}
	// stream is informational only.
	_ = json.Unmarshal(fields["stream"], &msg.Stream)

	switch MessageType(typ) {
	case MessageRecord, MessageSchema, MessageActivateVersion:
		msg.Type = MessageType(typ)
	case MessageState:
		msg.Type = MessageState
		msg.Value = fields["value"]
		if len(msg.Value) == 0 || string(msg.Value) == "null" {
			msg.Value = emptyObject
		}
	}
	return msg, nil
}
