package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := SnapshotV1{
		Header:     Header{Version: Version, WorldID: "w1", Tick: 42, Reason: "backup"},
		Seed:       7,
		Height:     4,
		Chunks:     []ChunkV1{{CX: 1, CZ: -2, Height: 4, Blocks: make([]uint16, 16*16*4), Meta: make([]uint8, 16*16*4)}},
		UndoDepths: map[string]int{"p1": 2},
	}
	snap.Chunks[0].Blocks[17] = 9
	snap.Chunks[0].Meta[17] = 3

	path := PathFor(dir, 42)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header || got.Seed != 7 || len(got.Chunks) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got.Header)
	}
	if got.Chunks[0].Blocks[17] != 9 || got.Chunks[0].Meta[17] != 3 {
		t.Fatalf("chunk data lost")
	}
	if got.UndoDepths["p1"] != 2 {
		t.Fatalf("undo depths lost: %v", got.UndoDepths)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Tick != 42 || h.Reason != "backup" {
		t.Fatalf("header: %+v", h)
	}
}

func TestLatestPicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{5, 120, 30} {
		if err := WriteSnapshot(PathFor(dir, tick), SnapshotV1{Header: Header{Version: Version, Tick: tick}}); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	p, err := Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if filepath.Base(p) != "120.snap.zst" {
		t.Fatalf("latest = %s", p)
	}
}
