// Package store keeps the world's blocks in lazily generated 16x16 chunk
// columns.
package store

import (
	"crypto/sha256"
	"encoding/binary"

	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/world/terrain/gen"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ int
	Height int
	Blocks []blocks.Block // len = 16*16*Height, indexed (y*16+z)*16+x

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz, height int) *Chunk {
	return &Chunk{CX: cx, CZ: cz, Height: height, Blocks: make([]blocks.Block, ChunkSize*ChunkSize*height)}
}

func (c *Chunk) index(x, y, z int) int {
	return (y*ChunkSize+z)*ChunkSize + x
}

func (c *Chunk) Get(x, y, z int) blocks.Block {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b blocks.Block) bool {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return false
	}
	c.Blocks[i] = b
	c.dirty = true
	return true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [3]byte
		for _, b := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:2], b.ID)
			tmp[2] = b.Meta
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

type ChunkStore struct {
	Gen gen.Params
	// BoundaryR limits |x| and |z|; 0 means unbounded.
	BoundaryR int
	Chunks    map[ChunkKey]*Chunk

	// OnNeighbor, when set, receives cells next to an edit.
	OnNeighbor func(x, y, z int)

	writes    uint64
	neighbors uint64
}

func NewChunkStore(p gen.Params, boundaryR int) *ChunkStore {
	return &ChunkStore{Gen: p, BoundaryR: boundaryR, Chunks: map[ChunkKey]*Chunk{}}
}
