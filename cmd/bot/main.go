package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/encoding"
	"voxeledit.ai/internal/sim/voxel"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		size     = flag.Int("size", 8, "edge of the cube selection to upload")
		origin   = flag.String("origin", "0,64,0", "selection origin x,y,z")
		tool     = flag.String("tool", "COPY", "COPY, MOVE, DELETE or PLACE")
		pos      = flag.String("pos", "32,64,0", "action target x,y,z")
		rotation = flag.Int("rotation", 0, "clockwise quarter turns or degrees")
		flipX    = flag.Bool("flip_x", false, "mirror in x before rotating")
		undo     = flag.Bool("undo", true, "undo the action once it completes")
		timeout  = flag.Duration("timeout", 2*time.Minute, "give up after this long")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	originXYZ, err := parseXYZ(*origin)
	if err != nil {
		logger.Fatalf("origin: %v", err)
	}
	posXYZ, err := parseXYZ(*pos)
	if err != nil {
		logger.Fatalf("pos: %v", err)
	}
	if !voxel.ValidSize(*size, *size, *size) {
		logger.Fatalf("size %d out of range", *size)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	deadline := time.After(*timeout)

	const actionSeq, undoSeq = 1, 1
	done := false
	for !done {
		var msg []byte
		var ok bool
		select {
		case <-stop:
			return
		case <-deadline:
			logger.Fatalf("timed out")
		case msg, ok = <-msgs:
			if !ok {
				logger.Fatalf("connection closed")
			}
		}

		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME player_id=%s tick_rate=%d seed=%d max_edge=%d", w.PlayerID, w.WorldParams.TickRateHz, w.WorldParams.Seed, w.WorldParams.MaxSelectionEdge)

			sel := voxel.New(*size, *size, *size)
			sel.SetAll()
			payload, err := encoding.EncodePayload(sel, nil)
			if err != nil {
				logger.Fatalf("encode selection: %v", err)
			}
			_ = conn.WriteJSON(protocol.SelectionMsg{
				Type:            protocol.TypeSelection,
				ProtocolVersion: protocol.Version,
				ID:              "S1",
				Origin:          originXYZ,
				Payload:         payload,
			})

		case protocol.TypeSelectionAck:
			var a protocol.SelectionAckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.OK {
				logger.Fatalf("selection rejected code=%s message=%s", a.Code, a.Message)
			}
			logger.Printf("SELECTION_ACK size=%v voxels=%d", a.Size, a.Voxels)
			_ = conn.WriteJSON(protocol.ActionMsg{
				Type:            protocol.TypeAction,
				ProtocolVersion: protocol.Version,
				Seq:             actionSeq,
				Tool:            strings.ToUpper(*tool),
				Pos:             posXYZ,
				FlipX:           *flipX,
				Rotation:        *rotation,
				Block:           &protocol.BlockSpec{ID: 1},
			})

		case protocol.TypeStatus:
			var s protocol.StatusMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			logger.Printf("STATUS %s %d%% player=%s", s.Status, s.Percent, s.Player)

		case protocol.TypeEditAck:
			var a protocol.EditAckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			logger.Printf("EDIT_ACK action=%s/%d undo=%s/%d code=%s reason=%s", a.ActionAck, a.ActionSeq, a.UndoAck, a.UndoSeq, a.Code, a.Reason)
			switch {
			case a.ActionAck == protocol.AckRejected:
				done = true
			case a.UndoSeq == undoSeq && (a.UndoAck == protocol.AckCompleted || a.UndoAck == protocol.AckRejected):
				done = true
			case a.ActionSeq == actionSeq && a.ActionAck == protocol.AckCompleted && a.UndoSeq < undoSeq:
				if !*undo {
					done = true
					break
				}
				_ = conn.WriteJSON(protocol.UndoMsg{
					Type:            protocol.TypeUndo,
					ProtocolVersion: protocol.Version,
					Seq:             undoSeq,
				})
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR code=%s message=%s", e.Code, e.Message)
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func parseXYZ(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("want x,y,z, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}
