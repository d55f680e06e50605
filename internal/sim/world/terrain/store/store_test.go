package store

import (
	"testing"

	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/world/terrain/gen"
)

func testStore() *ChunkStore {
	return NewChunkStore(gen.Params{Seed: 7, Height: 32, SeaLevel: 12, BiomeRegionSize: 32, OrePermille: 10}, 0)
}

func TestSetGetAcrossChunks(t *testing.T) {
	s := testStore()
	stone := blocks.Block{ID: gen.Stone, Meta: 2}
	for _, p := range [][3]int{{0, 5, 0}, {-1, 5, -1}, {15, 31, 16}, {-17, 0, 33}} {
		s.SetBlock(p[0], p[1], p[2], stone)
		if got := s.GetBlock(p[0], p[1], p[2]); got != stone {
			t.Fatalf("GetBlock(%v) = %+v", p, got)
		}
	}
	if got := len(s.Chunks); got != 4 {
		t.Fatalf("loaded chunks = %d, want 4", got)
	}
}

func TestOutOfRangeIsAir(t *testing.T) {
	s := testStore()
	s.SetBlock(0, -1, 0, blocks.Block{ID: gen.Stone})
	s.SetBlock(0, 32, 0, blocks.Block{ID: gen.Stone})
	if !s.GetBlock(0, -1, 0).IsAir() || !s.GetBlock(0, 32, 0).IsAir() {
		t.Fatalf("out of range cells must read as air")
	}
	b := NewChunkStore(s.Gen, 8)
	if !b.GetBlock(9, 0, 0).IsAir() {
		t.Fatalf("cells past the boundary must read as air")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := testStore()
	s.SetBlock(3, 20, -4, blocks.Block{ID: gen.Log, Meta: 5})
	s.GetBlock(40, 0, 40)

	exported := ExportLoadedChunks(s)
	if len(exported) != 2 {
		t.Fatalf("exported %d chunks, want 2", len(exported))
	}
	r := testStore()
	if err := ImportChunks(r, exported); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := r.GetBlock(3, 20, -4); got != (blocks.Block{ID: gen.Log, Meta: 5}) {
		t.Fatalf("imported block = %+v", got)
	}
	if r.Digest() != s.Digest() {
		t.Fatalf("digest differs after round trip")
	}
}

func TestImportRejectsHeightMismatch(t *testing.T) {
	s := testStore()
	s.GetBlock(0, 0, 0)
	exported := ExportLoadedChunks(s)
	other := NewChunkStore(gen.Params{Seed: 7, Height: 16}, 0)
	if err := ImportChunks(other, exported); err == nil {
		t.Fatalf("expected height mismatch error")
	}
}
