package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	// ResumeToken lets a reconnecting client keep its player id, and with it
	// its undo history and sequence numbers.
	ResumeToken string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	PlayerID        string      `json:"player_id"`
	ResumeToken     string      `json:"resume_token"`
	LastActionSeq   int64       `json:"last_action_seq"`
	LastUndoSeq     int64       `json:"last_undo_seq"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz       int   `json:"tick_rate_hz"`
	ChunkSize        int   `json:"chunk_size"`
	Height           int   `json:"height"`
	Seed             int64 `json:"seed"`
	MaxSelectionEdge int   `json:"max_selection_edge"`
	MaxUndoDepth     int   `json:"max_undo_depth"`
	MaxPayloadBytes  int   `json:"max_payload_bytes"`
}

// SELECTION (client -> server): the reassembled selection upload.
type SelectionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Origin          [3]int `json:"origin"`
	// Payload is base64 of a zstd stream holding the selection and an
	// optional block substrate.
	Payload string `json:"payload"`
}

// SELECTION_ACK (server -> client)
type SelectionAckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	OK              bool   `json:"ok"`
	Size            [3]int `json:"size,omitempty"`
	Voxels          int    `json:"voxels,omitempty"`
	Substrate       bool   `json:"substrate,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ACTION (client -> server)
type ActionMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Seq             int64      `json:"seq"`
	Tool            string     `json:"tool"`
	Pos             [3]int     `json:"pos"`
	FlipX           bool       `json:"flip_x,omitempty"`
	Rotation        int        `json:"rotation,omitempty"`
	Block           *BlockSpec `json:"block,omitempty"`
}

type BlockSpec struct {
	ID   uint16 `json:"id"`
	Meta uint8  `json:"meta,omitempty"`
}

// UNDO (client -> server)
type UndoMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             int64  `json:"seq"`
	// TargetActionSeq names the action to undo; omitted means the most recent.
	TargetActionSeq *int64 `json:"target_action_seq,omitempty"`
}

// Acknowledgement states.
const (
	AckNoUpdate  = "NOUPDATE"
	AckAccepted  = "ACCEPTED"
	AckRejected  = "REJECTED"
	AckCompleted = "COMPLETED"
)

// EDIT_ACK (server -> client)
type EditAckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActionAck       string `json:"action_ack"`
	ActionSeq       int64  `json:"action_seq"`
	UndoAck         string `json:"undo_ack"`
	UndoSeq         int64  `json:"undo_seq"`
	Code            string `json:"code,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// STATUS (server -> client)
type StatusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Status          string `json:"status"`
	Percent         int    `json:"percent"`
	Player          string `json:"player,omitempty"`
}

// CLIENT_STATUS (client -> server)
type ClientStatusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Status          string `json:"status"`
}

// ERROR (server -> client) for messages that could not be routed.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
