// Package chunkiter walks a world cuboid one 16x16 chunk column at a time so a
// time-boxed pass touches each chunk once.
package chunkiter

import "fmt"

const ChunkSize = 16

// Iterator visits every cell of a cuboid exactly once. All cells of one chunk
// column are visited before the next column is entered. The iterator is
// positioned on the first cell after construction.
type Iterator struct {
	wx0, wy0, wz0 int
	xs, ys, zs    int

	cxMin, cxMax int
	czMin, czMax int
	cx, cz       int

	// Local bounds of the current chunk column inside the cuboid, max exclusive.
	lx0, lx1 int
	lz0, lz1 int

	x, y, z int

	visited int
	total   int
	entered bool
	atEnd   bool
}

func New(wxOrigin, wyOrigin, wzOrigin, xSize, ySize, zSize int) *Iterator {
	if xSize <= 0 || ySize <= 0 || zSize <= 0 {
		panic(fmt.Sprintf("chunkiter: invalid cuboid size %dx%dx%d", xSize, ySize, zSize))
	}
	it := &Iterator{
		wx0: wxOrigin, wy0: wyOrigin, wz0: wzOrigin,
		xs: xSize, ys: ySize, zs: zSize,
		cxMin: FloorDiv(wxOrigin, ChunkSize),
		cxMax: FloorDiv(wxOrigin+xSize-1, ChunkSize),
		czMin: FloorDiv(wzOrigin, ChunkSize),
		czMax: FloorDiv(wzOrigin+zSize-1, ChunkSize),
		total: xSize * ySize * zSize,
	}
	it.cx, it.cz = it.cxMin, it.czMin
	it.enterChunk()
	return it
}

func (it *Iterator) enterChunk() {
	it.lx0 = max(it.cx*ChunkSize-it.wx0, 0)
	it.lx1 = min((it.cx+1)*ChunkSize-it.wx0, it.xs)
	it.lz0 = max(it.cz*ChunkSize-it.wz0, 0)
	it.lz1 = min((it.cz+1)*ChunkSize-it.wz0, it.zs)
	it.x, it.y, it.z = it.lx0, 0, it.lz0
	it.entered = true
}

// Next advances to the following cell. Calling Next at the end is a no-op.
func (it *Iterator) Next() {
	if it.atEnd {
		return
	}
	it.visited++
	it.entered = false
	it.x++
	if it.x < it.lx1 {
		return
	}
	it.x = it.lx0
	it.z++
	if it.z < it.lz1 {
		return
	}
	it.z = it.lz0
	it.y++
	if it.y < it.ys {
		return
	}
	it.cx++
	if it.cx > it.cxMax {
		it.cx = it.cxMin
		it.cz++
		if it.cz > it.czMax {
			it.atEnd = true
			return
		}
	}
	it.enterChunk()
}

func (it *Iterator) AtEnd() bool { return it.atEnd }

// Local coordinates of the current cell relative to the cuboid origin.
func (it *Iterator) X() int { return it.x }
func (it *Iterator) Y() int { return it.y }
func (it *Iterator) Z() int { return it.z }

// World coordinates of the current cell.
func (it *Iterator) WX() int { return it.wx0 + it.x }
func (it *Iterator) WY() int { return it.wy0 + it.y }
func (it *Iterator) WZ() int { return it.wz0 + it.z }

// Chunk column of the current cell.
func (it *Iterator) CX() int { return it.cx }
func (it *Iterator) CZ() int { return it.cz }

// EnteredNewChunk is true only on the first cell visited in each chunk column.
func (it *Iterator) EnteredNewChunk() bool { return it.entered && !it.atEnd }

// FractionComplete is the share of cells already passed: 0 on the first cell,
// 1 at the end.
func (it *Iterator) FractionComplete() float64 {
	return float64(it.visited) / float64(it.total)
}

func FloorDiv(a, b int) int {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}
