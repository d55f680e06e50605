package history

import (
	"testing"

	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/fragment"
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

func solid(n int, id uint16) *fragment.Fragment {
	s := voxel.New(n, n, n)
	s.SetAll()
	return fragment.Filled(s, blocks.Block{ID: id})
}

func TestWriteThenUndoRestores(t *testing.T) {
	w := mapWorld{}
	for x := 9; x < 14; x++ {
		for y := 4; y < 9; y++ {
			w.SetBlock(x, y, 10, blocks.Block{ID: uint16(x*y%5 + 1)})
		}
	}
	before := w.clone()
	h := New(5, nil)

	rw, err := h.WriteToWorldWithUndo("p1", 1, w, solid(3, 42), 10, 5, 10, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	async.RunToCompletion(rw)
	if w.GetBlock(11, 6, 11).ID != 42 {
		t.Fatalf("write did not land")
	}
	if h.Depth("p1") != 1 {
		t.Fatalf("depth = %d", h.Depth("p1"))
	}
	top, ok := h.Top("p1")
	if !ok || top.Seq != 1 || top.Cells() != 27 {
		t.Fatalf("top = %+v", top)
	}

	u := h.PerformUndo("p1", w)
	if u == nil {
		t.Fatalf("nothing to undo")
	}
	async.RunToCompletion(u)
	if !w.equal(before) {
		t.Fatalf("undo did not restore the world")
	}
	if h.Depth("p1") != 0 || u.Entry().Seq != 1 {
		t.Fatalf("depth after undo = %d", h.Depth("p1"))
	}
	if h.PerformUndo("p1", w) != nil {
		t.Fatalf("undo of empty history")
	}
}

func TestDepthIsBounded(t *testing.T) {
	w := mapWorld{}
	h := New(2, nil)
	for seq := int64(1); seq <= 3; seq++ {
		rw, err := h.WriteToWorldWithUndo("p1", seq, w, solid(1, uint16(seq)), 0, 0, 0, nil)
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		async.RunToCompletion(rw)
	}
	if h.Depth("p1") != 2 {
		t.Fatalf("depth = %d", h.Depth("p1"))
	}
	if top, _ := h.Top("p1"); top.Seq != 3 {
		t.Fatalf("top seq = %d", top.Seq)
	}
	if d := h.Depths(); len(d) != 1 || d[0] != (PlayerDepth{Player: "p1", Depth: 2}) {
		t.Fatalf("depths = %+v", d)
	}
	h.Forget("p1")
	if h.Depth("p1") != 0 {
		t.Fatalf("forget kept history")
	}
}

func TestRecorderUndoesOverlappingWritesInReverse(t *testing.T) {
	w := mapWorld{}
	w.SetBlock(1, 0, 0, blocks.Block{ID: 5})
	before := w.clone()
	h := New(3, nil)

	r := h.Begin("p1", 7)
	a, err := r.Write(w, solid(2, 1), 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("write a: %v", err)
	}
	async.RunToCompletion(a)
	b, err := r.Write(w, solid(2, 2), 1, 0, 0, nil)
	if err != nil {
		t.Fatalf("write b: %v", err)
	}
	if r.Pending() != 1 {
		t.Fatalf("pending = %d", r.Pending())
	}
	async.RunToCompletion(b)
	if !r.Commit() || r.Commit() {
		t.Fatalf("commit should succeed exactly once")
	}
	if top, _ := h.Top("p1"); len(top.Deltas) != 2 {
		t.Fatalf("deltas = %d", len(top.Deltas))
	}

	u := h.PerformUndo("p1", w)
	u.SetInterrupt(async.Immediately())
	u.Continue()
	if u.Complete() {
		t.Fatalf("undo ignored interrupt")
	}
	async.RunToCompletion(u)
	if !w.equal(before) {
		t.Fatalf("world not restored: %v", w)
	}
}

func TestEmptyRecorderDoesNotPush(t *testing.T) {
	h := New(3, nil)
	if h.Begin("p1", 1).Commit() {
		t.Fatalf("empty entry pushed")
	}
	if h.Depth("p1") != 0 {
		t.Fatalf("depth = %d", h.Depth("p1"))
	}
}
