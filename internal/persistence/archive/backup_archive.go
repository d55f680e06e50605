// Package archive keeps copies of backup snapshots outside the snapshot
// directory so they survive snapshot pruning and resumes.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"voxeledit.ai/internal/persistence/snapshot"
)

type BackupMeta struct {
	Tick      uint64         `json:"tick"`
	WorldID   string         `json:"world_id"`
	Seed      int64          `json:"seed"`
	Chunks    int            `json:"chunks"`
	Snapshot  string         `json:"snapshot"`
	CreatedAt string         `json:"created_at"`
	UndoDepth map[string]int `json:"undo_depths,omitempty"`
}

// ArchiveBackup copies a backup snapshot into `worldDir/backups/tick_<N>/`
// next to a meta.json. Snapshots taken for any other reason are skipped and
// reported with archived=false.
func ArchiveBackup(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if snap.Header.Reason != "backup" {
		return "", false, nil
	}
	dir := filepath.Join(worldDir, "backups", fmt.Sprintf("tick_%010d", snap.Header.Tick))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := BackupMeta{
		Tick:      snap.Header.Tick,
		WorldID:   snap.Header.WorldID,
		Seed:      snap.Seed,
		Chunks:    len(snap.Chunks),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		UndoDepth: snap.UndoDepths,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, true, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return dst, true, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
