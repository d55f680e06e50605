// Package orient implements the horizontal flip/rotate transform applied to a
// selection before it is placed back into the world.
package orient

import "fmt"

// Quad maps the local (x,z) cells of an xSize*zSize rectangle whose untransformed
// corner sits at world (wxOrigin, wzOrigin) onto world coordinates.
//
// The transform is stored as a single index in [0,8): flipX*4 + clockwise quarter
// turns. A flip in X is always applied before the rotation, whatever order the
// caller used, so two Quads with the same index map identically. Rotations and
// flips pivot around the centre of the rectangle.
type Quad struct {
	wxOrigin, wzOrigin int
	xSize, zSize       int
	transform          int
}

func New(wxOrigin, wzOrigin, xSize, zSize int) *Quad {
	return NewTransformed(wxOrigin, wzOrigin, xSize, zSize, false, 0)
}

func NewTransformed(wxOrigin, wzOrigin, xSize, zSize int, flipX bool, rotation int) *Quad {
	if xSize <= 0 || zSize <= 0 {
		panic(fmt.Sprintf("orient: invalid quad size %dx%d", xSize, zSize))
	}
	q := &Quad{wxOrigin: wxOrigin, wzOrigin: wzOrigin, xSize: xSize, zSize: zSize}
	q.set(flipX, NormalizeRotation(rotation))
	return q
}

// NormalizeRotation converts a client-provided rotation into quarter turns in [0,3].
// Both quarter turns (0..3) and degrees (multiples of 90) are accepted.
func NormalizeRotation(r int) int {
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return r
}

func (q *Quad) set(flipX bool, rot int) {
	q.transform = rot & 3
	if flipX {
		q.transform |= 4
	}
}

func (q *Quad) Copy() *Quad {
	c := *q
	return &c
}

func (q *Quad) FlippedX() bool { return q.transform&4 != 0 }
func (q *Quad) Rotation() int  { return q.transform & 3 }

// Index is the collapsed transform in [0,8).
func (q *Quad) Index() int { return q.transform }

// FlipX mirrors the current placement across the world X axis.
func (q *Quad) FlipX() *Quad {
	q.set(!q.FlippedX(), NormalizeRotation(-q.Rotation()))
	return q
}

// FlipZ mirrors the current placement across the world Z axis. A Z mirror is an
// X mirror followed by a half turn.
func (q *Quad) FlipZ() *Quad {
	q.set(!q.FlippedX(), NormalizeRotation(2-q.Rotation()))
	return q
}

func (q *Quad) RotateClockwise(quadrants int) *Quad {
	q.set(q.FlippedX(), NormalizeRotation(q.Rotation()+NormalizeRotation(quadrants)))
	return q
}

// Matches reports whether both quads apply the same flip and rotation.
func (q *Quad) Matches(other *Quad) bool {
	return other != nil && q.transform == other.transform
}

func (q *Quad) SetOrigin(wxOrigin, wzOrigin int) {
	q.wxOrigin = wxOrigin
	q.wzOrigin = wzOrigin
}

// Resize changes the untransformed extent and keeps the transform.
func (q *Quad) Resize(xSize, zSize int) {
	if xSize <= 0 || zSize <= 0 {
		panic(fmt.Sprintf("orient: invalid quad size %dx%d", xSize, zSize))
	}
	q.xSize = xSize
	q.zSize = zSize
}

func (q *Quad) XSize() int { return q.xSize }
func (q *Quad) ZSize() int { return q.zSize }

// WXSize and WZSize are the extent of the transformed footprint in world axes.
func (q *Quad) WXSize() int {
	if q.Rotation()%2 == 1 {
		return q.zSize
	}
	return q.xSize
}

func (q *Quad) WZSize() int {
	if q.Rotation()%2 == 1 {
		return q.xSize
	}
	return q.zSize
}

// WXOrigin and WZOrigin give the integer world corner of the transformed
// footprint. When the footprint cannot sit on the grid exactly, the true corner
// is this value plus Nudge().
func (q *Quad) WXOrigin() int {
	if q.Rotation()%2 == 0 {
		return q.wxOrigin
	}
	return q.wxOrigin + ceilHalf(q.xSize-q.zSize)
}

func (q *Quad) WZOrigin() int {
	if q.Rotation()%2 == 0 {
		return q.wzOrigin
	}
	return q.wzOrigin + ceilHalf(q.zSize-q.xSize)
}

// Nudge is (-0.5, -0.5) when an odd quarter turn is applied to a rectangle whose
// sides differ in parity, and (0, 0) otherwise.
func (q *Quad) Nudge() (nx, nz float64) {
	if q.Rotation()%2 == 1 && (q.xSize-q.zSize)%2 != 0 {
		return -0.5, -0.5
	}
	return 0, 0
}

func (q *Quad) local(x, z int) (lx, lz int) {
	if q.FlippedX() {
		x = q.xSize - 1 - x
	}
	switch q.Rotation() {
	case 0:
		return x, z
	case 1:
		return q.zSize - 1 - z, x
	case 2:
		return q.xSize - 1 - x, q.zSize - 1 - z
	default:
		return z, q.xSize - 1 - x
	}
}

func (q *Quad) unlocal(lx, lz int) (x, z int) {
	switch q.Rotation() {
	case 0:
		x, z = lx, lz
	case 1:
		x, z = lz, q.zSize-1-lx
	case 2:
		x, z = q.xSize-1-lx, q.zSize-1-lz
	default:
		x, z = q.xSize-1-lz, lx
	}
	if q.FlippedX() {
		x = q.xSize - 1 - x
	}
	return x, z
}

// WX returns the world x of local cell (x,z).
func (q *Quad) WX(x, z int) int {
	lx, _ := q.local(x, z)
	return q.WXOrigin() + lx
}

// WZ returns the world z of local cell (x,z).
func (q *Quad) WZ(x, z int) int {
	_, lz := q.local(x, z)
	return q.WZOrigin() + lz
}

// X returns the local x that lands on world (wx,wz). The result is outside
// [0,XSize) when (wx,wz) is outside the footprint.
func (q *Quad) X(wx, wz int) int {
	x, _ := q.unlocal(wx-q.WXOrigin(), wz-q.WZOrigin())
	return x
}

// Z returns the local z that lands on world (wx,wz).
func (q *Quad) Z(wx, wz int) int {
	_, z := q.unlocal(wx-q.WXOrigin(), wz-q.WZOrigin())
	return z
}

func (q *Quad) String() string {
	return fmt.Sprintf("quad[%d,%d %dx%d flip=%t rot=%d]", q.wxOrigin, q.wzOrigin, q.xSize, q.zSize, q.FlippedX(), q.Rotation())
}

func ceilHalf(d int) int {
	return floorDiv(d+1, 2)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}
