package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/encoding"
	"voxeledit.ai/internal/sim/voxel"
	"voxeledit.ai/internal/sim/world"
)

func startServer(t *testing.T, cfg Config) string {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "ws_test", Seed: 3, Height: 64, TickRateHz: 50}, log.New(io.Discard, "", 0), nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	srv := httptest.NewServer(NewServer(w, log.New(io.Discard, "", 0), cfg).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil returns the first message of type typ, skipping others.
func readUntil(t *testing.T, c *websocket.Conn, typ string, match func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		_, b, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, _ := protocol.DecodeBase(b)
		if base.Type == typ && (match == nil || match(b)) {
			return b
		}
	}
}

func hello(t *testing.T, c *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	writeJSON(t, c, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "alice"})
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, c, protocol.TypeWelcome, nil), &w); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return w
}

func TestEditRoundTrip(t *testing.T) {
	url := startServer(t, Config{})
	c := dial(t, url)
	w := hello(t, c)
	if w.PlayerID == "" || w.SessionID == "" || w.WorldParams.Height != 64 {
		t.Fatalf("welcome = %+v", w)
	}

	sel := voxel.New(2, 2, 2)
	sel.SetAll()
	payload, err := encoding.EncodePayload(sel, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	writeJSON(t, c, protocol.SelectionMsg{Type: protocol.TypeSelection, ProtocolVersion: protocol.Version, ID: "s1", Origin: [3]int{0, 5, 0}, Payload: payload})
	var sack protocol.SelectionAckMsg
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeSelectionAck, nil), &sack)
	if !sack.OK || sack.Voxels != 8 || sack.ID != "s1" {
		t.Fatalf("selection ack = %+v", sack)
	}

	writeJSON(t, c, protocol.ActionMsg{Type: protocol.TypeAction, ProtocolVersion: protocol.Version, Seq: 1, Tool: "COPY", Pos: [3]int{8, 40, 8}})
	readUntil(t, c, protocol.TypeEditAck, func(b []byte) bool {
		var a protocol.EditAckMsg
		_ = json.Unmarshal(b, &a)
		return a.ActionSeq == 1 && a.ActionAck == protocol.AckCompleted
	})

	writeJSON(t, c, protocol.UndoMsg{Type: protocol.TypeUndo, ProtocolVersion: protocol.Version, Seq: 1})
	readUntil(t, c, protocol.TypeEditAck, func(b []byte) bool {
		var a protocol.EditAckMsg
		_ = json.Unmarshal(b, &a)
		return a.UndoSeq == 1 && a.UndoAck == protocol.AckCompleted
	})
}

func TestBadPayloadGetsSelectionAckError(t *testing.T) {
	url := startServer(t, Config{MaxPayloadBytes: 64})
	c := dial(t, url)
	hello(t, c)

	writeJSON(t, c, protocol.SelectionMsg{Type: protocol.TypeSelection, ProtocolVersion: protocol.Version, ID: "x", Origin: [3]int{0, 0, 0}, Payload: "bm90IHpzdGQ="})
	var ack protocol.SelectionAckMsg
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeSelectionAck, nil), &ack)
	if ack.OK || ack.Code != protocol.ErrBadRequest {
		t.Fatalf("ack = %+v", ack)
	}

	writeJSON(t, c, protocol.SelectionMsg{Type: protocol.TypeSelection, ProtocolVersion: protocol.Version, ID: "y", Origin: [3]int{0, 0, 0}, Payload: strings.Repeat("A", 200)})
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeSelectionAck, nil), &ack)
	if ack.OK || ack.Code != protocol.ErrPayloadTooLarge {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestSchemaViolationGetsError(t *testing.T) {
	url := startServer(t, Config{})
	c := dial(t, url)
	hello(t, c)
	writeJSON(t, c, map[string]any{"type": "ACTION", "protocol_version": protocol.Version, "seq": 0, "tool": "COPY", "pos": []int{1, 2, 3}})
	var e protocol.ErrorMsg
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeError, nil), &e)
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("error = %+v", e)
	}
}

func TestRateLimit(t *testing.T) {
	url := startServer(t, Config{MessagesPerSecond: 0.001, Burst: 1})
	c := dial(t, url)
	hello(t, c)
	status := protocol.ClientStatusMsg{Type: protocol.TypeClientStatus, ProtocolVersion: protocol.Version, Status: "IDLE"}
	writeJSON(t, c, status)
	writeJSON(t, c, status)
	var e protocol.ErrorMsg
	_ = json.Unmarshal(readUntil(t, c, protocol.TypeError, nil), &e)
	if e.Code != protocol.ErrRateLimit {
		t.Fatalf("error = %+v", e)
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	url := startServer(t, Config{})
	c := dial(t, url)
	writeJSON(t, c, protocol.UndoMsg{Type: protocol.TypeUndo, ProtocolVersion: protocol.Version, Seq: 1})
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v", err)
	}
}

func TestResumeKeepsPlayerID(t *testing.T) {
	url := startServer(t, Config{})
	c := dial(t, url)
	first := hello(t, c)
	c.Close()

	c2 := dial(t, url)
	writeJSON(t, c2, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "alice", ResumeToken: first.ResumeToken})
	var w protocol.WelcomeMsg
	_ = json.Unmarshal(readUntil(t, c2, protocol.TypeWelcome, nil), &w)
	if w.PlayerID != first.PlayerID {
		t.Fatalf("resumed as %q, want %q", w.PlayerID, first.PlayerID)
	}
}
