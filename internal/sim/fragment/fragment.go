// Package fragment holds masked snapshots of world blocks and the resumable
// tasks that read them from, and write them into, the world.
package fragment

import (
	"fmt"

	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/voxel"
)

// Fragment is a cuboid of blocks in which only the cells set in Mask are
// known. Unknown cells read as (Air, false).
type Fragment struct {
	mask  *voxel.Selection
	cells []blocks.Block
}

func New(xs, ys, zs int) *Fragment {
	return &Fragment{
		mask:  voxel.New(xs, ys, zs),
		cells: make([]blocks.Block, xs*ys*zs),
	}
}

// Filled returns a fragment that holds b at every voxel of sel.
func Filled(sel *voxel.Selection, b blocks.Block) *Fragment {
	f := New(sel.XSize(), sel.YSize(), sel.ZSize())
	sel.Each(func(x, y, z int) { f.Set(x, y, z, b) })
	return f
}

func (f *Fragment) XSize() int { return f.mask.XSize() }
func (f *Fragment) YSize() int { return f.mask.YSize() }
func (f *Fragment) ZSize() int { return f.mask.ZSize() }

// Mask is the set of captured cells. It must not be modified by callers.
func (f *Fragment) Mask() *voxel.Selection { return f.mask }

func (f *Fragment) Count() int { return f.mask.Count() }

func (f *Fragment) index(x, y, z int) int {
	return (y*f.mask.ZSize()+z)*f.mask.XSize() + x
}

func (f *Fragment) Get(x, y, z int) (blocks.Block, bool) {
	if !f.mask.Get(x, y, z) {
		return blocks.Air, false
	}
	return f.cells[f.index(x, y, z)], true
}

// Set stores b and marks the cell captured. Out-of-range cells are ignored.
func (f *Fragment) Set(x, y, z int, b blocks.Block) {
	if x < 0 || y < 0 || z < 0 || x >= f.XSize() || y >= f.YSize() || z >= f.ZSize() {
		return
	}
	f.mask.Set(x, y, z)
	f.cells[f.index(x, y, z)] = b
}

// Each calls fn for every captured cell, x fastest.
func (f *Fragment) Each(fn func(x, y, z int, b blocks.Block)) {
	f.mask.Each(func(x, y, z int) {
		fn(x, y, z, f.cells[f.index(x, y, z)])
	})
}

// Restrict drops every captured cell not set in sel.
func (f *Fragment) Restrict(sel *voxel.Selection) {
	drop := f.mask.Copy()
	drop.SplitByMask(sel, 0, 0, 0)
	drop.Each(func(x, y, z int) {
		f.mask.Clear(x, y, z)
		f.cells[f.index(x, y, z)] = blocks.Air
	})
}

func (f *Fragment) String() string {
	return fmt.Sprintf("fragment[%dx%dx%d cells=%d]", f.XSize(), f.YSize(), f.ZSize(), f.Count())
}
