package edit

import (
	"errors"
	"testing"
	"time"

	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/history"
	"voxeledit.ai/internal/sim/voxel"
)

type mapWorld map[[3]int]blocks.Block

func (w mapWorld) GetBlock(x, y, z int) blocks.Block { return w[[3]int{x, y, z}] }
func (w mapWorld) SetBlock(x, y, z int, b blocks.Block) {
	if b.IsAir() {
		delete(w, [3]int{x, y, z})
		return
	}
	w[[3]int{x, y, z}] = b
}
func (w mapWorld) HeightRange() (int, int) { return 0, 64 }

func (w mapWorld) clone() mapWorld {
	out := mapWorld{}
	for k, v := range w {
		out[k] = v
	}
	return out
}

func (w mapWorld) equal(o mapWorld) bool {
	if len(w) != len(o) {
		return false
	}
	for k, v := range w {
		if o[k] != v {
			return false
		}
	}
	return true
}

type fakeClock struct{ now time.Time }

// Now advances one millisecond per call so deadlines expire after a bounded
// number of interrupt checks.
func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func line(n int) *voxel.Selection {
	s := voxel.New(n, 1, 1)
	s.SetAll()
	return s
}

func row(w mapWorld, n int) {
	for x := 0; x < n; x++ {
		w.SetBlock(x, 0, 0, blocks.Block{ID: uint16(x + 1)})
	}
}

func run(t *testing.T, tok interface {
	async.Token
	Setup() error
}) {
	t.Helper()
	if err := tok.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	async.RunToCompletion(tok)
}

func TestParseTool(t *testing.T) {
	if tool, err := ParseTool(" copy "); err != nil || tool != ToolCopy {
		t.Fatalf("ParseTool = %q,%v", tool, err)
	}
	if _, err := ParseTool("smash"); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v", err)
	}
}

func TestCopyLeavesSource(t *testing.T) {
	w := mapWorld{}
	row(w, 3)
	h := history.New(5, nil)
	p := NewPlacement(Request{Player: "p", Seq: 1, Tool: ToolCopy, X: 10, Y: 4, Z: 0, Selection: voxel.NewWithOrigin(line(3), 0, 0, 0)}, w, h, nil)
	run(t, p)

	for x := 0; x < 3; x++ {
		if w.GetBlock(x, 0, 0).ID != uint16(x+1) || w.GetBlock(10+x, 4, 0).ID != uint16(x+1) {
			t.Fatalf("cell %d not copied", x)
		}
	}
	if !p.Recorded() || p.Written() != 3 || p.Fraction() != 1 || p.Stage() != StageComplete {
		t.Fatalf("recorded=%t written=%d fraction=%v", p.Recorded(), p.Written(), p.Fraction())
	}
}

func TestMoveOverlappingShiftsRowAndUndoRestores(t *testing.T) {
	w := mapWorld{}
	row(w, 3)
	before := w.clone()
	h := history.New(5, nil)
	p := NewPlacement(Request{Player: "p", Seq: 1, Tool: ToolMove, X: 1, Selection: voxel.NewWithOrigin(line(3), 0, 0, 0)}, w, h, nil)
	run(t, p)

	if !w.GetBlock(0, 0, 0).IsAir() {
		t.Fatalf("vacated cell not cleared")
	}
	for x := 0; x < 3; x++ {
		if got := w.GetBlock(1+x, 0, 0).ID; got != uint16(x+1) {
			t.Fatalf("cell %d = %d", 1+x, got)
		}
	}

	u := NewUndo("p", 1, w, h, nil)
	run(t, u)
	if !w.equal(before) {
		t.Fatalf("undo did not restore: %v", w)
	}
	if u.EntrySeq() != 1 || h.Depth("p") != 0 {
		t.Fatalf("entry=%d depth=%d", u.EntrySeq(), h.Depth("p"))
	}
}

func TestMoveRotatedQuarterTurn(t *testing.T) {
	w := mapWorld{}
	row(w, 3)
	h := history.New(5, nil)
	p := NewPlacement(Request{Player: "p", Seq: 1, Tool: ToolMove, X: 20, Z: 20, Rotation: 90, Selection: voxel.NewWithOrigin(line(3), 0, 0, 0)}, w, h, nil)
	run(t, p)

	for x := 0; x < 3; x++ {
		if !w.GetBlock(x, 0, 0).IsAir() {
			t.Fatalf("source cell %d not cleared", x)
		}
	}
	// A 3x1 row turned clockwise stands along z, centred on the same pivot.
	for z := 0; z < 3; z++ {
		if got := w.GetBlock(21, 0, 19+z).ID; got != uint16(z+1) {
			t.Fatalf("cell z=%d = %d", 19+z, got)
		}
	}
}

func TestDeleteClearsAtSelectionOrigin(t *testing.T) {
	w := mapWorld{}
	row(w, 4)
	before := w.clone()
	sel := voxel.New(4, 1, 1)
	sel.Set(1, 0, 0)
	sel.Set(2, 0, 0)
	h := history.New(5, nil)
	p := NewPlacement(Request{Player: "p", Seq: 3, Tool: ToolDelete, X: 99, Y: 9, Z: 99, Selection: voxel.NewWithOrigin(sel, 0, 0, 0)}, w, h, nil)
	run(t, p)
	if len(w) != 2 || !w.GetBlock(1, 0, 0).IsAir() || w.GetBlock(3, 0, 0).ID != 4 {
		t.Fatalf("delete result = %v", w)
	}
	run(t, NewUndo("p", 0, w, h, nil))
	if !w.equal(before) {
		t.Fatalf("undo did not restore: %v", w)
	}
}

func TestPlaceFillsBlock(t *testing.T) {
	w := mapWorld{}
	h := history.New(5, nil)
	p := NewPlacement(Request{Player: "p", Seq: 1, Tool: ToolPlace, X: 5, Y: 5, Z: 5, Block: blocks.Block{ID: 8, Meta: 1}, Selection: voxel.NewWithOrigin(line(2), 0, 0, 0)}, w, h, nil)
	run(t, p)
	if w.GetBlock(5, 5, 5) != (blocks.Block{ID: 8, Meta: 1}) || w.GetBlock(6, 5, 5).ID != 8 || len(w) != 2 {
		t.Fatalf("place result = %v", w)
	}
}

func TestPlacementSetupFailures(t *testing.T) {
	w := mapWorld{}
	h := history.New(5, nil)
	empty := voxel.New(2, 2, 2)
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"no selection", Request{Tool: ToolCopy}, ErrNoSelection},
		{"empty selection", Request{Tool: ToolMove, Selection: voxel.NewWithOrigin(empty, 0, 0, 0)}, ErrEmptySelection},
		{"above world", Request{Tool: ToolCopy, Y: 63, Selection: voxel.NewWithOrigin(voxel.New(1, 2, 1), 0, 0, 0)}, nil},
		{"unknown tool", Request{Tool: "SMASH", Selection: voxel.NewWithOrigin(line(1), 0, 0, 0)}, ErrUnknownTool},
	}
	cases[2].req.Selection.SetAll()
	cases[2].want = ErrOutOfWorld
	for _, c := range cases {
		p := NewPlacement(c.req, w, h, nil)
		err := p.Setup()
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: err = %v, want %v", c.name, err, c.want)
		}
		if !p.Complete() || p.Fraction() != 1 || p.Recorded() {
			t.Fatalf("%s: failed setup must complete without recording", c.name)
		}
	}
	if len(w) != 0 || h.Depth("") != 0 {
		t.Fatalf("failed setups touched the world")
	}
}

func TestAbortDuringWriteKeepsPartialUndoable(t *testing.T) {
	w := mapWorld{}
	sel := voxel.New(16, 16, 16)
	sel.SetAll()
	for x := 0; x < 16; x++ {
		w.SetBlock(x, 0, 0, blocks.Block{ID: 2})
	}
	before := w.clone()
	clk := &fakeClock{now: time.Unix(0, 0)}
	h := history.New(5, clk.Now)
	p := NewPlacement(Request{Player: "p", Seq: 1, Tool: ToolPlace, X: 0, Y: 0, Z: 0, Block: blocks.Block{ID: 7}, Selection: voxel.NewWithOrigin(sel, 0, 0, 0)}, w, h, clk.Now)
	if err := p.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	last := 0.0
	for i := 0; i < 1000 && !(p.Stage() == StageWrite && p.Written() > 0); i++ {
		p.SetInterrupt(async.At(clk.now.Add(3 * time.Millisecond)))
		p.Continue()
		if f := p.Fraction(); f < last {
			t.Fatalf("fraction went back: %v < %v", f, last)
		} else {
			last = f
		}
	}
	if p.Complete() || p.Written() == 0 {
		t.Fatalf("could not stop inside the write stage")
	}
	p.Abort()
	async.RunToCompletion(p)
	if !p.Aborted() || p.Written() >= 16*16*16 {
		t.Fatalf("aborted=%t written=%d", p.Aborted(), p.Written())
	}
	if !p.Recorded() || h.Depth("p") != 1 {
		t.Fatalf("partial write not recorded")
	}

	run(t, NewUndo("p", 1, w, h, clk.Now))
	if !w.equal(before) {
		t.Fatalf("undo of aborted write did not restore")
	}
}

func TestUndoSetupFailures(t *testing.T) {
	w := mapWorld{}
	h := history.New(5, nil)
	if err := NewUndo("p", 0, w, h, nil).Setup(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("err = %v", err)
	}
	run(t, NewPlacement(Request{Player: "p", Seq: 4, Tool: ToolPlace, Block: blocks.Block{ID: 1}, Selection: voxel.NewWithOrigin(line(1), 0, 0, 0)}, w, h, nil))
	u := NewUndo("p", 3, w, h, nil)
	if err := u.Setup(); !errors.Is(err, ErrStaleUndo) {
		t.Fatalf("err = %v", err)
	}
	if !u.Complete() || h.Depth("p") != 1 {
		t.Fatalf("stale undo consumed history")
	}
}
