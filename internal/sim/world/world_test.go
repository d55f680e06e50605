package world

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"voxeledit.ai/internal/observerproto"
	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/voxel"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(WorldConfig{ID: "test", Seed: 7, Height: 64, TickBudget: 50 * time.Millisecond}, nil, nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

type conn struct {
	sid      string
	playerID string
	out      chan []byte
}

func join(t *testing.T, w *World, sid, name string) *conn {
	t.Helper()
	c := &conn{sid: sid, out: make(chan []byte, 256)}
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{SessionID: sid, Name: name, Out: c.out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Err != "" {
		t.Fatalf("join: %s", r.Err)
	}
	c.playerID = r.Welcome.PlayerID
	msgs := c.drain()
	if len(msgs) == 0 || msgs[0].Type != protocol.TypeWelcome {
		t.Fatalf("first message must be WELCOME, got %+v", msgs)
	}
	return c
}

type rawMsg struct {
	Type string
	Raw  []byte
}

func (c *conn) drain() []rawMsg {
	var out []rawMsg
	for {
		select {
		case b := <-c.out:
			base, _ := protocol.DecodeBase(b)
			out = append(out, rawMsg{Type: base.Type, Raw: b})
		default:
			return out
		}
	}
}

func (c *conn) acks(t *testing.T) []protocol.EditAckMsg {
	t.Helper()
	var out []protocol.EditAckMsg
	for _, m := range c.drain() {
		if m.Type != protocol.TypeEditAck {
			continue
		}
		var a protocol.EditAckMsg
		if err := json.Unmarshal(m.Raw, &a); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		out = append(out, a)
	}
	return out
}

func (c *conn) env() Envelope { return Envelope{SessionID: c.sid, PlayerID: c.playerID} }

func cube(n int) *voxel.Selection {
	s := voxel.New(n, n, n)
	s.SetAll()
	return s
}

func runUntilIdle(t *testing.T, w *World) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if !w.arb.Busy() {
			return
		}
		w.StepOnce(nil, nil, nil)
	}
	t.Fatalf("world never became idle")
}

func TestJoinSendsWelcomeThenStatus(t *testing.T) {
	w := newTestWorld(t)
	c := &conn{sid: "s1", out: make(chan []byte, 16)}
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{SessionID: "s1", Name: "alice", Out: c.out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.PlayerID == "" || r.Welcome.ResumeToken == "" {
		t.Fatalf("welcome missing ids: %+v", r.Welcome)
	}
	msgs := c.drain()
	if len(msgs) != 2 || msgs[0].Type != protocol.TypeWelcome || msgs[1].Type != protocol.TypeStatus {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	var st protocol.StatusMsg
	_ = json.Unmarshal(msgs[1].Raw, &st)
	if st.Status != "IDLE" {
		t.Fatalf("status = %q", st.Status)
	}
}

func TestCopyThenUndoRestoresWorld(t *testing.T) {
	w := newTestWorld(t)
	c := join(t, w, "s1", "alice")

	src := [3]int{4, 5, 4}
	dst := [3]int{40, 50, 40}
	before := map[[3]int]blocks.Block{}
	for y := 0; y < 3; y++ {
		for z := 0; z < 3; z++ {
			for x := 0; x < 3; x++ {
				p := [3]int{dst[0] + x, dst[1] + y, dst[2] + z}
				before[p] = w.chunks.GetBlock(p[0], p[1], p[2])
			}
		}
	}

	env := c.env()
	env.Selection = &Upload{ID: "sel-1", Origin: src, Selection: cube(3)}
	w.StepOnce(nil, nil, []Envelope{env})
	for _, m := range c.drain() {
		if m.Type == protocol.TypeSelectionAck {
			var ack protocol.SelectionAckMsg
			_ = json.Unmarshal(m.Raw, &ack)
			if !ack.OK || ack.Voxels != 27 {
				t.Fatalf("selection ack = %+v", ack)
			}
		}
	}

	env = c.env()
	env.Action = &protocol.ActionMsg{Seq: 1, Tool: "COPY", Pos: dst}
	w.StepOnce(nil, nil, []Envelope{env})
	runUntilIdle(t, w)

	acks := c.acks(t)
	if len(acks) < 2 || acks[0].ActionAck != "ACCEPTED" || acks[len(acks)-1].ActionAck != "COMPLETED" {
		t.Fatalf("acks = %+v", acks)
	}
	for y := 0; y < 3; y++ {
		for z := 0; z < 3; z++ {
			for x := 0; x < 3; x++ {
				got := w.chunks.GetBlock(dst[0]+x, dst[1]+y, dst[2]+z)
				want := w.chunks.GetBlock(src[0]+x, src[1]+y, src[2]+z)
				if got != want {
					t.Fatalf("copied cell (%d,%d,%d) = %+v, want %+v", x, y, z, got, want)
				}
			}
		}
	}
	if d := w.hist.Depth(c.playerID); d != 1 {
		t.Fatalf("undo depth = %d, want 1", d)
	}

	env = c.env()
	env.Undo = &protocol.UndoMsg{Seq: 1}
	w.StepOnce(nil, nil, []Envelope{env})
	runUntilIdle(t, w)

	for p, b := range before {
		if got := w.chunks.GetBlock(p[0], p[1], p[2]); got != b {
			t.Fatalf("cell %v = %+v after undo, want %+v", p, got, b)
		}
	}
	if d := w.hist.Depth(c.playerID); d != 0 {
		t.Fatalf("undo depth = %d after undo, want 0", d)
	}
}

func TestSecondPlayerRejectedWhileFirstBusy(t *testing.T) {
	w := newTestWorld(t)
	a := join(t, w, "sa", "alice")
	b := join(t, w, "sb", "bob")

	var envs []Envelope
	for _, c := range []*conn{a, b} {
		e := c.env()
		e.Selection = &Upload{Origin: [3]int{0, 10, 0}, Selection: cube(4)}
		envs = append(envs, e)
	}
	w.StepOnce(nil, nil, envs)
	a.drain()
	b.drain()

	ea := a.env()
	ea.Action = &protocol.ActionMsg{Seq: 1, Tool: "COPY", Pos: [3]int{20, 30, 20}}
	eb := b.env()
	eb.Action = &protocol.ActionMsg{Seq: 1, Tool: "COPY", Pos: [3]int{60, 30, 60}}
	w.StepOnce(nil, nil, []Envelope{ea, eb})

	bAcks := b.acks(t)
	if len(bAcks) != 1 || bAcks[0].ActionAck != "REJECTED" || bAcks[0].Code != protocol.ErrBusy {
		t.Fatalf("bob acks = %+v", bAcks)
	}
	if want := "server is busy with an action for alice"; bAcks[0].Reason != want {
		t.Fatalf("reason = %q, want %q", bAcks[0].Reason, want)
	}
	runUntilIdle(t, w)

	eb = b.env()
	eb.Action = &protocol.ActionMsg{Seq: 2, Tool: "COPY", Pos: [3]int{60, 30, 60}}
	w.StepOnce(nil, nil, []Envelope{eb})
	bAcks = b.acks(t)
	if len(bAcks) == 0 || bAcks[0].ActionAck != "ACCEPTED" || bAcks[0].ActionSeq != 2 {
		t.Fatalf("bob acks after alice finished = %+v", bAcks)
	}
}

func TestResumeKeepsPlayerAndHistory(t *testing.T) {
	w := newTestWorld(t)
	c := join(t, w, "s1", "alice")
	env := c.env()
	env.Selection = &Upload{Origin: [3]int{0, 10, 0}, Selection: cube(2)}
	w.StepOnce(nil, nil, []Envelope{env})
	env = c.env()
	env.Action = &protocol.ActionMsg{Seq: 1, Tool: "COPY", Pos: [3]int{10, 40, 10}}
	w.StepOnce(nil, nil, []Envelope{env})
	runUntilIdle(t, w)

	token := w.players[c.playerID].Token
	w.StepOnce(nil, []string{"s1"}, nil)
	if w.arb.SessionCount() != 0 {
		t.Fatalf("session not dropped on leave")
	}

	out := make(chan []byte, 16)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{SessionID: "s2", Name: "alice", ResumeToken: token, Out: out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.PlayerID != c.playerID {
		t.Fatalf("resumed player id = %q, want %q", r.Welcome.PlayerID, c.playerID)
	}
	if r.Welcome.ResumeToken == token {
		t.Fatalf("resume token was not rotated")
	}
	if d := w.hist.Depth(c.playerID); d != 1 {
		t.Fatalf("undo depth after resume = %d", d)
	}
}

func TestMessagesFromReplacedSessionIgnored(t *testing.T) {
	w := newTestWorld(t)
	c := join(t, w, "s1", "alice")
	env := c.env()
	env.SessionID = "other"
	env.ClientStatus = &protocol.ClientStatusMsg{Status: "WAITING_FOR_ACTION_COMPLETE"}
	w.StepOnce(nil, nil, []Envelope{env})
	if s, _ := w.arb.Session(c.playerID); s.Client != "IDLE" {
		t.Fatalf("client status changed by foreign session")
	}
}

func TestBackupHoldsSlot(t *testing.T) {
	w := newTestWorld(t)
	sinkCh := make(chan SnapshotJob, 4)
	w.SetSnapshotSink(sinkCh)
	c := join(t, w, "s1", "alice")

	req := backupReq{Resp: make(chan backupResp, 1)}
	w.step(nil, nil, nil, []backupReq{req})
	if r := <-req.Resp; r.Err != "" {
		t.Fatalf("backup: %s", r.Err)
	}
	job := <-sinkCh
	if job.Snapshot.Header.Reason != ReasonBackup || job.Done == nil {
		t.Fatalf("job = %+v", job.Snapshot.Header)
	}
	if st := w.arb.State(); st.Status != "PERFORMING_BACKUP" {
		t.Fatalf("status = %s", st.Status)
	}

	env := c.env()
	env.Action = &protocol.ActionMsg{Seq: 1, Tool: "DELETE", Pos: [3]int{0, 0, 0}}
	w.StepOnce(nil, nil, []Envelope{env})
	acks := c.acks(t)
	if len(acks) != 1 || acks[0].Code != protocol.ErrBackup {
		t.Fatalf("acks during backup = %+v", acks)
	}

	job.Done <- nil
	w.StepOnce(nil, nil, nil)
	if w.arb.Busy() {
		t.Fatalf("backup still holds the slot")
	}
}

func TestPreEditSnapshotIsRateLimited(t *testing.T) {
	w := newTestWorld(t)
	w.cfg.BackupMinInterval = time.Hour
	sinkCh := make(chan SnapshotJob, 4)
	w.SetSnapshotSink(sinkCh)
	c := join(t, w, "s1", "alice")
	env := c.env()
	env.Selection = &Upload{Origin: [3]int{0, 10, 0}, Selection: cube(2)}
	w.StepOnce(nil, nil, []Envelope{env})

	for seq := int64(1); seq <= 2; seq++ {
		env = c.env()
		env.Action = &protocol.ActionMsg{Seq: seq, Tool: "COPY", Pos: [3]int{10, 40, 10}}
		w.StepOnce(nil, nil, []Envelope{env})
		runUntilIdle(t, w)
	}
	if n := len(sinkCh); n != 1 {
		t.Fatalf("pre-edit snapshots = %d, want 1", n)
	}
	if job := <-sinkCh; job.Snapshot.Header.Reason != ReasonPreEdit {
		t.Fatalf("reason = %q", job.Snapshot.Header.Reason)
	}
}

func TestSnapshotExportImport(t *testing.T) {
	w := newTestWorld(t)
	w.chunks.SetBlock(3, 60, 3, blocks.Block{ID: 9, Meta: 2})
	snap := w.ExportSnapshot(41, ReasonShutdown)

	w2 := newTestWorld(t)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := w2.chunks.GetBlock(3, 60, 3); got != (blocks.Block{ID: 9, Meta: 2}) {
		t.Fatalf("imported block = %+v", got)
	}
	if w2.CurrentTick() != 42 {
		t.Fatalf("tick = %d, want 42", w2.CurrentTick())
	}

	snap.Height = 99
	if err := w2.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected height mismatch error")
	}
}

func TestRunServesStateRequests(t *testing.T) {
	w := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()
	st, err := w.RequestState(qctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.WorldID != "test" || st.Status != "IDLE" {
		t.Fatalf("state = %+v", st)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("run returned %v", err)
	}
}

func TestObserverReceivesStateOnChange(t *testing.T) {
	w := newTestWorld(t)
	obs := make(chan []byte, 8)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "o1", Out: obs, IntervalTicks: 1000})
	w.StepOnce(nil, nil, nil)
	w.StepOnce(nil, nil, nil)
	if n := len(obs); n != 1 {
		t.Fatalf("observer messages = %d, want 1", n)
	}
	<-obs

	c := join(t, w, "s1", "alice")
	env := c.env()
	env.Selection = &Upload{Origin: [3]int{0, 10, 0}, Selection: cube(2)}
	w.StepOnce(nil, nil, []Envelope{env})
	env = c.env()
	env.Action = &protocol.ActionMsg{Seq: 1, Tool: "COPY", Pos: [3]int{10, 40, 10}}
	w.StepOnce(nil, nil, []Envelope{env})
	runUntilIdle(t, w)

	var sawEdit bool
	for len(obs) > 0 {
		var msg observerproto.StateMsg
		if err := json.Unmarshal(<-obs, &msg); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		for _, e := range msg.Edits {
			if e.Kind == "action" && e.Seq == 1 && e.Cells == 8 {
				sawEdit = true
			}
		}
	}
	if !sawEdit {
		t.Fatalf("observer never saw the completed edit")
	}
}
