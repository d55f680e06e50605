package fragment

import (
	"fmt"

	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/chunkiter"
	"voxeledit.ai/internal/sim/orient"
	"voxeledit.ai/internal/sim/voxel"
)

// cellsPerCheck bounds the work done between two interrupt checks.
const cellsPerCheck = 512

// ReadTask copies the masked cells of a world cuboid into a new fragment.
type ReadTask struct {
	async.Budget

	world blocks.Access
	mask  *voxel.Selection
	out   *Fragment
	it    *chunkiter.Iterator
	done  bool
	frac  float64
}

// NewReadTask reads the cells set in mask, with mask's [0,0,0] at world (wx,wy,wz).
func NewReadTask(world blocks.Access, mask *voxel.Selection, wx, wy, wz int, clock async.Clock) *ReadTask {
	return &ReadTask{
		Budget: async.Budget{Clock: clock},
		world:  world,
		mask:   mask,
		out:    New(mask.XSize(), mask.YSize(), mask.ZSize()),
		it:     chunkiter.New(wx, wy, wz, mask.XSize(), mask.YSize(), mask.ZSize()),
	}
}

func (t *ReadTask) Complete() bool { return t.done }

func (t *ReadTask) Fraction() float64 {
	if t.done {
		return 1
	}
	return t.frac
}

// Fragment is the captured snapshot. It is only meaningful once Complete.
func (t *ReadTask) Fragment() *Fragment { return t.out }

func (t *ReadTask) Continue() {
	if t.done {
		return
	}
	for !t.it.AtEnd() {
		if t.TimeToInterrupt() {
			t.frac = t.it.FractionComplete()
			return
		}
		for n := 0; n < cellsPerCheck && !t.it.AtEnd(); n++ {
			x, y, z := t.it.X(), t.it.Y(), t.it.Z()
			if t.mask.Get(x, y, z) {
				t.out.Set(x, y, z, t.world.GetBlock(t.it.WX(), t.it.WY(), t.it.WZ()))
			}
			t.it.Next()
		}
	}
	t.done = true
}

// WriteTask writes a fragment into the world through an orientation, optionally
// capturing the overwritten blocks so the write can be reversed.
type WriteTask struct {
	async.Budget

	world   blocks.Access
	src     *Fragment
	srcQuad *orient.Quad

	// dest is the reoriented source mask with a one voxel border; the written
	// footprint starts at dest[1,1,1] == world (ox,oy,oz).
	dest       *voxel.Selection
	ox, oy, oz int
	reo        voxel.Reorientation

	capture *Fragment
	written int

	it      *chunkiter.Iterator
	shell   *voxel.Selection
	shellIt *chunkiter.Iterator
	notify  blocks.NeighborNotifier

	aborted bool
	done    bool
	frac    float64
}

// NewWriteTask places src with its untransformed [0,0,0] at world (wx,wy,wz)
// and applies q's flip and rotation around the footprint centre. q may be nil
// for an untransformed write. With capture set, Undo returns the blocks that
// were overwritten.
func NewWriteTask(world blocks.Access, src *Fragment, wx, wy, wz int, q *orient.Quad, capture bool, clock async.Clock) (*WriteTask, error) {
	flip, rot := false, 0
	if q != nil {
		flip, rot = q.FlippedX(), q.Rotation()
	}
	srcQuad := orient.NewTransformed(wx, wz, src.XSize(), src.ZSize(), flip, rot)
	dest, reo, err := src.Mask().ReorientedCopyWithBorder(srcQuad, 1)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	t := &WriteTask{
		Budget:  async.Budget{Clock: clock},
		world:   world,
		src:     src,
		srcQuad: srcQuad,
		dest:    dest,
		ox:      wx + reo.DX + 1,
		oy:      wy + reo.DY + 1,
		oz:      wz + reo.DZ + 1,
		reo:     reo,
	}
	xs, ys, zs := dest.XSize()-2, dest.YSize()-2, dest.ZSize()-2
	if capture {
		t.capture = New(xs, ys, zs)
	}
	t.it = chunkiter.New(t.ox, t.oy, t.oz, xs, ys, zs)
	if n, ok := world.(blocks.NeighborNotifier); ok {
		t.notify = n
	}
	return t, nil
}

// Origin is the world corner of the written footprint.
func (t *WriteTask) Origin() (x, y, z int) { return t.ox, t.oy, t.oz }

// Reorientation reports how the footprint moved relative to the requested origin.
func (t *WriteTask) Reorientation() voxel.Reorientation { return t.reo }

// Written is the number of cells written so far.
func (t *WriteTask) Written() int { return t.written }

// Undo returns the captured blocks and the world corner they belong at. It is
// nil when the task was built without capture.
func (t *WriteTask) Undo() (*Fragment, [3]int) {
	return t.capture, [3]int{t.ox, t.oy, t.oz}
}

func (t *WriteTask) Abort() { t.aborted = true }

func (t *WriteTask) Aborted() bool { return t.aborted }

func (t *WriteTask) Complete() bool { return t.done }

func (t *WriteTask) Fraction() float64 {
	if t.done {
		return 1
	}
	return t.frac
}

func (t *WriteTask) Continue() {
	if t.done {
		return
	}
	if t.aborted {
		t.done = true
		return
	}
	for !t.it.AtEnd() {
		if t.TimeToInterrupt() {
			t.updateFraction()
			return
		}
		for n := 0; n < cellsPerCheck && !t.it.AtEnd(); n++ {
			t.writeCell()
			t.it.Next()
		}
	}
	if t.notify != nil {
		if t.shell == nil {
			t.shell = t.dest.BorderMask()
			t.shellIt = chunkiter.New(t.ox-1, t.oy-1, t.oz-1, t.dest.XSize(), t.dest.YSize(), t.dest.ZSize())
		}
		for !t.shellIt.AtEnd() {
			if t.TimeToInterrupt() {
				t.updateFraction()
				return
			}
			for n := 0; n < cellsPerCheck && !t.shellIt.AtEnd(); n++ {
				if t.shell.Get(t.shellIt.X(), t.shellIt.Y(), t.shellIt.Z()) {
					t.notify.NotifyNeighbor(t.shellIt.WX(), t.shellIt.WY(), t.shellIt.WZ())
				}
				t.shellIt.Next()
			}
		}
	}
	t.done = true
}

func (t *WriteTask) writeCell() {
	x, y, z := t.it.X(), t.it.Y(), t.it.Z()
	if !t.dest.Get(x+1, y+1, z+1) {
		return
	}
	wx, wy, wz := t.it.WX(), t.it.WY(), t.it.WZ()
	b, ok := t.src.Get(t.srcQuad.X(wx, wz), y, t.srcQuad.Z(wx, wz))
	if !ok {
		return
	}
	if t.capture != nil {
		t.capture.Set(x, y, z, t.world.GetBlock(wx, wy, wz))
	}
	t.world.SetBlock(wx, wy, wz, b)
	t.written++
}

func (t *WriteTask) updateFraction() {
	f := t.it.FractionComplete()
	if t.notify != nil {
		f *= 0.9
		if t.shellIt != nil {
			f = 0.9 + 0.1*t.shellIt.FractionComplete()
		}
	}
	if f > t.frac {
		t.frac = f
	}
}
