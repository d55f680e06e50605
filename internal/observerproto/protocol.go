package observerproto

// Version is the observer protocol version (separate from the player WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// IntervalTicks is how often an unchanged state is re-sent.
	IntervalTicks int `json:"interval_ticks,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz int    `json:"tick_rate_hz"`
	ChunkSize  [3]int `json:"chunk_size"`
	Height     int    `json:"height"`
	Seed       int64  `json:"seed"`
	BoundaryR  int    `json:"boundary_r"`
}

// Server -> Client. Sent when the arbitration state changes and every
// IntervalTicks otherwise.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Status  string `json:"status"`
	Percent int    `json:"percent"`
	Player  string `json:"player,omitempty"`

	Players []PlayerState `json:"players"`
	Edits   []EditInfo    `json:"edits,omitempty"`
}

type PlayerState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	UndoDepth int    `json:"undo_depth"`
}

// EditInfo is an edit that finished since the previous StateMsg.
type EditInfo struct {
	Tick    uint64 `json:"tick"`
	Player  string `json:"player"`
	Kind    string `json:"kind"`
	Seq     int64  `json:"seq"`
	Tool    string `json:"tool,omitempty"`
	Cells   int    `json:"cells"`
	Aborted bool   `json:"aborted,omitempty"`
}
