package store

import (
	"fmt"

	"voxeledit.ai/internal/persistence/snapshot"
	"voxeledit.ai/internal/sim/blocks"
)

// ExportLoadedChunks converts loaded chunk data into snapshot chunks.
func ExportLoadedChunks(s *ChunkStore) []snapshot.ChunkV1 {
	keys := s.LoadedChunkKeys()
	out := make([]snapshot.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.Chunks[k]
		ids := make([]uint16, len(ch.Blocks))
		meta := make([]uint8, len(ch.Blocks))
		for i, b := range ch.Blocks {
			ids[i], meta[i] = b.ID, b.Meta
		}
		out = append(out, snapshot.ChunkV1{CX: k.CX, CZ: k.CZ, Height: ch.Height, Blocks: ids, Meta: meta})
	}
	return out
}

// ImportChunks loads snapshot chunks into s, replacing chunks with the same key.
func ImportChunks(s *ChunkStore, chunks []snapshot.ChunkV1) error {
	want := ChunkSize * ChunkSize * s.Gen.Height
	for _, sc := range chunks {
		if sc.Height != s.Gen.Height {
			return fmt.Errorf("snapshot chunk %d,%d height mismatch: got %d want %d", sc.CX, sc.CZ, sc.Height, s.Gen.Height)
		}
		if len(sc.Blocks) != want || len(sc.Meta) != want {
			return fmt.Errorf("snapshot chunk %d,%d length mismatch: got %d/%d want %d", sc.CX, sc.CZ, len(sc.Blocks), len(sc.Meta), want)
		}
		ch := newChunk(sc.CX, sc.CZ, sc.Height)
		for i := range ch.Blocks {
			ch.Blocks[i] = blocks.Block{ID: sc.Blocks[i], Meta: sc.Meta[i]}
		}
		ch.dirty = true
		s.Chunks[ChunkKey{CX: sc.CX, CZ: sc.CZ}] = ch
	}
	return nil
}
