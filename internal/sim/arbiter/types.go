package arbiter

import "fmt"

type ServerStatus string

const (
	StatusIdle                ServerStatus = "IDLE"
	StatusPerformingBackup    ServerStatus = "PERFORMING_BACKUP"
	StatusPerformingAction    ServerStatus = "PERFORMING_YOUR_ACTION"
	StatusUndoingAction       ServerStatus = "UNDOING_YOUR_ACTION"
	StatusBusyWithOtherPlayer ServerStatus = "BUSY_WITH_OTHER_PLAYER"
)

type ClientStatus string

const (
	ClientIdle    ClientStatus = "IDLE"
	ClientWaiting ClientStatus = "WAITING_FOR_ACTION_COMPLETE"
)

func ParseClientStatus(s string) (ClientStatus, error) {
	switch c := ClientStatus(s); c {
	case ClientIdle, ClientWaiting:
		return c, nil
	}
	return "", fmt.Errorf("unknown client status %q", s)
}

type AckState string

const (
	AckNoUpdate  AckState = "NOUPDATE"
	AckAccepted  AckState = "ACCEPTED"
	AckRejected  AckState = "REJECTED"
	AckCompleted AckState = "COMPLETED"
)

// Ack acknowledges one action and/or one undo request. A stream that the
// packet does not speak for carries AckNoUpdate.
type Ack struct {
	ActionAck AckState
	ActionSeq int64
	UndoAck   AckState
	UndoSeq   int64
	// Code is a protocol error code, empty unless rejected.
	Code   string
	Reason string
}

func (a Ack) String() string {
	s := fmt.Sprintf("action=%s/%d undo=%s/%d", a.ActionAck, a.ActionSeq, a.UndoAck, a.UndoSeq)
	if a.Code != "" {
		s += " code=" + a.Code
	}
	return s
}

// Status is what one player is told about the server.
type Status struct {
	Status  ServerStatus
	Percent int
	// Player is the name of the player being serviced, or empty.
	Player string
}

// Completion describes a finished world edit.
type Completion struct {
	PlayerID string
	Player   string
	Kind     string // "action" or "undo"
	Seq      int64
	// Target is the action sequence number an undo reverted.
	Target  int64
	Tool    string
	Cells   int
	Aborted bool
}

// Sink receives everything the arbiter sends. Implementations must not block.
type Sink interface {
	Ack(playerID string, a Ack)
	Status(playerID string, s Status)
	Completed(c Completion)
}
