// Package protocol defines the JSON messages exchanged with edit clients.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypeSelection    = "SELECTION"
	TypeSelectionAck = "SELECTION_ACK"
	TypeAction       = "ACTION"
	TypeUndo         = "UNDO"
	TypeEditAck      = "EDIT_ACK"
	TypeStatus       = "STATUS"
	TypeClientStatus = "CLIENT_STATUS"
	TypeError        = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
