package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voxeledit.ai/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, worldDir string, tick uint64) string {
	t.Helper()
	src := snapshot.PathFor(filepath.Join(worldDir, "snapshots"), tick)
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	return src
}

func TestArchiveBackup_CopiesBackupSnapshot(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := writeDummy(t, worldDir, 12)

	snap := snapshot.SnapshotV1{
		Header:     snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 12, Reason: "backup"},
		Seed:       42,
		Chunks:     make([]snapshot.ChunkV1, 3),
		UndoDepths: map[string]int{"P1": 2},
	}
	dst, ok, err := ArchiveBackup(worldDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok {
		t.Fatalf("expected archived=true")
	}
	wantDir := filepath.Join(worldDir, "backups", "tick_0000000012")
	if filepath.Dir(dst) != wantDir {
		t.Fatalf("archived into %s, want %s", filepath.Dir(dst), wantDir)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != "dummy" {
		t.Fatalf("archived contents: %q", got)
	}

	raw, err := os.ReadFile(filepath.Join(wantDir, "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta BackupMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.Tick != 12 || meta.Seed != 42 || meta.Chunks != 3 || meta.UndoDepth["P1"] != 2 {
		t.Fatalf("meta: %+v", meta)
	}
}

func TestArchiveBackup_SkipsOtherReasons(t *testing.T) {
	worldDir := t.TempDir()
	for _, reason := range []string{"periodic", "pre_edit", "shutdown", ""} {
		src := writeDummy(t, worldDir, 5)
		snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: 5, Reason: reason}}
		_, ok, err := ArchiveBackup(worldDir, src, snap)
		if err != nil || ok {
			t.Fatalf("reason %q: ok=%v err=%v", reason, ok, err)
		}
	}
	if _, err := os.Stat(filepath.Join(worldDir, "backups")); !os.IsNotExist(err) {
		t.Fatalf("backups dir created for non-backup snapshots: %v", err)
	}
}
