// Package voxel holds the dense 3-D boolean masks that describe which cells of
// a region take part in an edit.
package voxel

import (
	"fmt"
	"math/bits"

	"voxeledit.ai/internal/sim/orient"
)

// MaxSize is the largest extent allowed on any axis of a player selection.
const MaxSize = 256

// MaxBorder is the widest border that can be added around a MaxSize selection.
const MaxBorder = 1

const maxExtent = MaxSize + 2*MaxBorder

// Selection is a fixed-extent 3-D bitset. Coordinates outside [0,size) read as
// false and writes to them are ignored.
type Selection struct {
	xs, ys, zs int
	words      []uint64
}

// ValidSize reports whether each axis is in [1, MaxSize].
func ValidSize(xs, ys, zs int) bool {
	return xs >= 1 && xs <= MaxSize && ys >= 1 && ys <= MaxSize && zs >= 1 && zs <= MaxSize
}

func validExtent(xs, ys, zs int) bool {
	return xs >= 1 && xs <= maxExtent && ys >= 1 && ys <= maxExtent && zs >= 1 && zs <= maxExtent
}

// New allocates an empty selection. Bordered working copies may exceed MaxSize
// by up to 2*MaxBorder on each axis.
func New(xs, ys, zs int) *Selection {
	if !validExtent(xs, ys, zs) {
		panic(fmt.Sprintf("voxel: invalid selection size %dx%dx%d", xs, ys, zs))
	}
	return &Selection{
		xs:    xs,
		ys:    ys,
		zs:    zs,
		words: make([]uint64, (xs*ys*zs+63)/64),
	}
}

func (s *Selection) XSize() int { return s.xs }
func (s *Selection) YSize() int { return s.ys }
func (s *Selection) ZSize() int { return s.zs }

func (s *Selection) inRange(x, y, z int) bool {
	return x >= 0 && x < s.xs && y >= 0 && y < s.ys && z >= 0 && z < s.zs
}

func (s *Selection) index(x, y, z int) int {
	return (y*s.zs+z)*s.xs + x
}

func (s *Selection) Get(x, y, z int) bool {
	if !s.inRange(x, y, z) {
		return false
	}
	i := s.index(x, y, z)
	return s.words[i>>6]&(1<<(uint(i)&63)) != 0
}

func (s *Selection) Set(x, y, z int) {
	if !s.inRange(x, y, z) {
		return
	}
	i := s.index(x, y, z)
	s.words[i>>6] |= 1 << (uint(i) & 63)
}

func (s *Selection) Clear(x, y, z int) {
	if !s.inRange(x, y, z) {
		return
	}
	i := s.index(x, y, z)
	s.words[i>>6] &^= 1 << (uint(i) & 63)
}

func (s *Selection) SetAll() {
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	s.trimTail()
}

func (s *Selection) ClearAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// trimTail clears the padding bits past the last voxel so Count and equality
// never see them.
func (s *Selection) trimTail() {
	n := s.xs * s.ys * s.zs
	if rem := n & 63; rem != 0 {
		s.words[len(s.words)-1] &= (1 << uint(rem)) - 1
	}
}

// ResizeAndClear replaces the extent and empties the selection.
func (s *Selection) ResizeAndClear(xs, ys, zs int) {
	if !ValidSize(xs, ys, zs) {
		panic(fmt.Sprintf("voxel: invalid selection size %dx%dx%d", xs, ys, zs))
	}
	s.xs, s.ys, s.zs = xs, ys, zs
	s.words = make([]uint64, (xs*ys*zs+63)/64)
}

func (s *Selection) Count() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s *Selection) Empty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

func (s *Selection) Copy() *Selection {
	c := &Selection{xs: s.xs, ys: s.ys, zs: s.zs, words: make([]uint64, len(s.words))}
	copy(c.words, s.words)
	return c
}

// Equal reports whether both selections have the same extent and voxels.
func (s *Selection) Equal(o *Selection) bool {
	if o == nil || s.xs != o.xs || s.ys != o.ys || s.zs != o.zs {
		return false
	}
	for i := range s.words {
		if s.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Union sets every voxel that is set in o. Voxels of o outside this extent are
// dropped.
func (s *Selection) Union(o *Selection) {
	if s.xs == o.xs && s.ys == o.ys && s.zs == o.zs {
		for i := range s.words {
			s.words[i] |= o.words[i]
		}
		return
	}
	o.Each(func(x, y, z int) { s.Set(x, y, z) })
}

// ContainsAll reports whether every voxel set in mask is also set here.
func (s *Selection) ContainsAll(mask *Selection) bool {
	if s.xs == mask.xs && s.ys == mask.ys && s.zs == mask.zs {
		for i := range s.words {
			if mask.words[i]&^s.words[i] != 0 {
				return false
			}
		}
		return true
	}
	ok := true
	mask.Each(func(x, y, z int) {
		if ok && !s.Get(x, y, z) {
			ok = false
		}
	})
	return ok
}

// Each calls fn for every set voxel in x-fastest order.
func (s *Selection) Each(fn func(x, y, z int)) {
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			w &^= 1 << uint(b)
			i := wi<<6 + b
			x := i % s.xs
			z := (i / s.xs) % s.zs
			y := i / (s.xs * s.zs)
			fn(x, y, z)
		}
	}
}

// BorderMask returns a selection of the same extent in which every cleared voxel
// that shares a face with a set voxel is set. Set voxels of s are never part of
// the result.
func (s *Selection) BorderMask() *Selection {
	out := New(s.xs, s.ys, s.zs)
	s.Each(func(x, y, z int) {
		for _, d := range faceNeighbors {
			nx, ny, nz := x+d[0], y+d[1], z+d[2]
			if s.inRange(nx, ny, nz) && !s.Get(nx, ny, nz) {
				out.Set(nx, ny, nz)
			}
		}
	})
	return out
}

var faceNeighbors = [6][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// WithBorder returns a copy grown by border cleared voxels on all six faces.
// The copy's [border,border,border] corresponds to this selection's origin.
func (s *Selection) WithBorder(border int) (*Selection, error) {
	if border < 0 || border > MaxBorder {
		return nil, fmt.Errorf("voxel: border %d out of range", border)
	}
	xs, ys, zs := s.xs+2*border, s.ys+2*border, s.zs+2*border
	if !validExtent(xs, ys, zs) {
		return nil, fmt.Errorf("voxel: bordered size %dx%dx%d too large", xs, ys, zs)
	}
	out := New(xs, ys, zs)
	s.Each(func(x, y, z int) { out.Set(x+border, y+border, z+border) })
	return out, nil
}

// Reorientation describes where a reoriented copy sits relative to the
// original: the copy's [0,0,0] lies at original origin + (DX,DY,DZ), shifted by
// (NudgeX, NudgeZ) when the footprint is off the block grid.
type Reorientation struct {
	DX, DY, DZ     int
	NudgeX, NudgeZ float64
}

// ReorientedCopyWithBorder applies q's flip and rotation to every voxel and
// surrounds the result with border cleared voxels. Only q's transform is used;
// the pivot is the centre of this selection's footprint.
func (s *Selection) ReorientedCopyWithBorder(q *orient.Quad, border int) (*Selection, Reorientation, error) {
	if border < 0 || border > MaxBorder {
		return nil, Reorientation{}, fmt.Errorf("voxel: border %d out of range", border)
	}
	tq := orient.NewTransformed(0, 0, s.xs, s.zs, q.FlippedX(), q.Rotation())
	xs, ys, zs := tq.WXSize()+2*border, s.ys+2*border, tq.WZSize()+2*border
	if !validExtent(xs, ys, zs) {
		return nil, Reorientation{}, fmt.Errorf("voxel: reoriented size %dx%dx%d too large", xs, ys, zs)
	}
	out := New(xs, ys, zs)
	ox, oz := tq.WXOrigin(), tq.WZOrigin()
	s.Each(func(x, y, z int) {
		out.Set(tq.WX(x, z)-ox+border, y+border, tq.WZ(x, z)-oz+border)
	})
	nx, nz := tq.Nudge()
	return out, Reorientation{
		DX:     ox - border,
		DY:     -border,
		DZ:     oz - border,
		NudgeX: nx,
		NudgeZ: nz,
	}, nil
}

// SplitByMask moves every voxel set both here and in mask into a new selection
// of this extent and clears it here. mask's [0,0,0] lines up with this
// selection's (dx,dy,dz).
func (s *Selection) SplitByMask(mask *Selection, dx, dy, dz int) *Selection {
	out := New(s.xs, s.ys, s.zs)
	s.Each(func(x, y, z int) {
		if mask.Get(x-dx, y-dy, z-dz) {
			out.Set(x, y, z)
		}
	})
	out.Each(func(x, y, z int) { s.Clear(x, y, z) })
	return out
}

// WithOrigin is a selection anchored in the world: local [0,0,0] sits at
// (WX, WY, WZ).
type WithOrigin struct {
	*Selection
	wx, wy, wz int
}

func NewWithOrigin(sel *Selection, wx, wy, wz int) *WithOrigin {
	return &WithOrigin{Selection: sel, wx: wx, wy: wy, wz: wz}
}

func (s *WithOrigin) Origin() (wx, wy, wz int) { return s.wx, s.wy, s.wz }

func (s *WithOrigin) SetOrigin(wx, wy, wz int) {
	s.wx, s.wy, s.wz = wx, wy, wz
}

// GetWorld reads the voxel at a world coordinate.
func (s *WithOrigin) GetWorld(wx, wy, wz int) bool {
	return s.Get(wx-s.wx, wy-s.wy, wz-s.wz)
}
