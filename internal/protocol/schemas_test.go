package protocol_test

import (
	"encoding/json"
	"testing"

	"voxeledit.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	ok := []struct {
		typ string
		raw string
	}{
		{protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0","player_name":"alice"}`},
		{protocol.TypeSelection, `{"type":"SELECTION","protocol_version":"1.0","id":"s1","origin":[10,5,-3],"payload":"KLUv/QBY"}`},
		{protocol.TypeAction, `{"type":"ACTION","protocol_version":"1.0","seq":1,"tool":"COPY","pos":[0,64,0],"flip_x":true,"rotation":90}`},
		{protocol.TypeAction, `{"type":"ACTION","protocol_version":"1.0","seq":2,"tool":"PLACE","pos":[0,64,0],"block":{"id":3,"meta":1}}`},
		{protocol.TypeUndo, `{"type":"UNDO","protocol_version":"1.0","seq":1}`},
		{protocol.TypeUndo, `{"type":"UNDO","protocol_version":"1.0","seq":2,"target_action_seq":7}`},
		{protocol.TypeClientStatus, `{"type":"CLIENT_STATUS","protocol_version":"1.0","status":"WAITING_FOR_ACTION_COMPLETE"}`},
	}
	for _, c := range ok {
		if err := protocol.Validate(c.typ, []byte(c.raw)); err != nil {
			t.Fatalf("%s sample rejected: %v", c.typ, err)
		}
	}

	bad := []struct {
		typ string
		raw string
	}{
		{protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`},
		{protocol.TypeAction, `{"type":"ACTION","protocol_version":"1.0","seq":0,"tool":"COPY","pos":[0,0,0]}`},
		{protocol.TypeAction, `{"type":"ACTION","protocol_version":"1.0","seq":1,"tool":"SMASH","pos":[0,0,0]}`},
		{protocol.TypeAction, `{"type":"ACTION","protocol_version":"1.0","seq":1,"tool":"COPY","pos":[0,0]}`},
		{protocol.TypeUndo, `{"type":"UNDO","protocol_version":"1.0","seq":1,"target_action_seq":0}`},
		{protocol.TypeClientStatus, `{"type":"CLIENT_STATUS","protocol_version":"1.0","status":"BORED"}`},
	}
	for _, c := range bad {
		if err := protocol.Validate(c.typ, []byte(c.raw)); err == nil {
			t.Fatalf("%s sample should be rejected: %s", c.typ, c.raw)
		}
	}
}

func TestSchemas_OutboundMessagesConform(t *testing.T) {
	msgs := []struct {
		typ string
		v   any
	}{
		{protocol.TypeWelcome, protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version,
			SessionID: "s", PlayerID: "p", ResumeToken: "r",
			WorldParams: protocol.WorldParams{TickRateHz: 20, ChunkSize: 16, Height: 128, MaxSelectionEdge: 256, MaxUndoDepth: 5, MaxPayloadBytes: 1024},
		}},
		{protocol.TypeEditAck, protocol.EditAckMsg{
			Type: protocol.TypeEditAck, ProtocolVersion: protocol.Version,
			ActionAck: protocol.AckCompleted, ActionSeq: 3, UndoAck: protocol.AckAccepted, UndoSeq: 1,
		}},
		{protocol.TypeEditAck, protocol.EditAckMsg{
			Type: protocol.TypeEditAck, ProtocolVersion: protocol.Version,
			ActionAck: protocol.AckRejected, ActionSeq: 4, UndoAck: protocol.AckNoUpdate,
			Code: protocol.ErrBusy, Reason: "server is busy with an action for alice",
		}},
		{protocol.TypeStatus, protocol.StatusMsg{Type: protocol.TypeStatus, ProtocolVersion: protocol.Version, Status: "BUSY_WITH_OTHER_PLAYER", Player: "alice"}},
		{protocol.TypeSelectionAck, protocol.SelectionAckMsg{Type: protocol.TypeSelectionAck, ProtocolVersion: protocol.Version, OK: true, Size: [3]int{3, 3, 3}, Voxels: 27}},
	}
	for _, m := range msgs {
		b, err := json.Marshal(m.v)
		if err != nil {
			t.Fatalf("marshal %s: %v", m.typ, err)
		}
		if err := protocol.Validate(m.typ, b); err != nil {
			t.Fatalf("%s does not conform: %v\n%s", m.typ, err, b)
		}
	}
}
