package store

import (
	"crypto/sha256"
	"sort"

	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/world/terrain/gen"
)

func (s *ChunkStore) InBounds(x, y, z int) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	if s.BoundaryR > 0 {
		if x < -s.BoundaryR || x > s.BoundaryR || z < -s.BoundaryR || z > s.BoundaryR {
			return false
		}
	}
	return true
}

// HeightRange reports the valid y range [minY, maxY).
func (s *ChunkStore) HeightRange() (minY, maxY int) { return 0, s.Gen.Height }

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetBlock(x, y, z int) blocks.Block {
	if !s.InBounds(x, y, z) {
		return blocks.Air
	}
	ch := s.GetOrGenChunk(gen.FloorDiv(x, ChunkSize), gen.FloorDiv(z, ChunkSize))
	return ch.Get(gen.Mod(x, ChunkSize), y, gen.Mod(z, ChunkSize))
}

func (s *ChunkStore) SetBlock(x, y, z int, b blocks.Block) {
	if !s.InBounds(x, y, z) {
		return
	}
	ch := s.GetOrGenChunk(gen.FloorDiv(x, ChunkSize), gen.FloorDiv(z, ChunkSize))
	if ch.Set(gen.Mod(x, ChunkSize), y, gen.Mod(z, ChunkSize), b) {
		s.writes++
	}
}

func (s *ChunkStore) NotifyNeighbor(x, y, z int) {
	if !s.InBounds(x, y, z) {
		return
	}
	s.neighbors++
	if s.OnNeighbor != nil {
		s.OnNeighbor(x, y, z)
	}
}

// Counters returns the number of changed cells and neighbour notifications
// since the last call.
func (s *ChunkStore) Counters() (writes, neighbors uint64) {
	writes, neighbors = s.writes, s.neighbors
	s.writes, s.neighbors = 0, 0
	return writes, neighbors
}

func (s *ChunkStore) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := newChunk(cx, cz, s.Gen.Height)
	s.generate(ch)
	ch.dirty = true
	s.Chunks[k] = ch
	return ch
}

func (s *ChunkStore) generate(ch *Chunk) {
	col := make([]blocks.Block, ch.Height)
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			s.Gen.Column(ch.CX*ChunkSize+x, ch.CZ*ChunkSize+z, col)
			for y, b := range col {
				ch.Blocks[ch.index(x, y, z)] = b
			}
		}
	}
}

// Digest hashes every loaded chunk in key order.
func (s *ChunkStore) Digest() [32]byte {
	h := sha256.New()
	for _, k := range s.LoadedChunkKeys() {
		d := s.Chunks[k].Digest()
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
