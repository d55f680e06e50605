package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voxeledit.ai/internal/persistence/snapshot"
	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/world/terrain/store"
)

// Snapshot reasons.
const (
	ReasonPeriodic = "periodic"
	ReasonBackup   = "backup"
	ReasonPreEdit  = "pre_edit"
	ReasonShutdown = "shutdown"
)

// backupTimeout bounds how long a backup may hold the busy slot waiting for
// the writer.
const backupTimeout = 2 * time.Minute

// ExportSnapshot copies every loaded chunk. Must be called from the world loop
// goroutine or while the world is stopped.
func (w *World) ExportSnapshot(nowTick uint64, reason string) snapshot.SnapshotV1 {
	depths := map[string]int{}
	for _, d := range w.hist.Depths() {
		depths[d.Player] = d.Depth
	}
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			Reason:  reason,
		},
		Seed:       w.cfg.Seed,
		TickRate:   w.cfg.TickRateHz,
		Height:     w.cfg.Height,
		BoundaryR:  w.cfg.BoundaryR,
		Chunks:     store.ExportLoadedChunks(w.chunks),
		UndoDepths: depths,
	}
}

// ImportSnapshot replaces the loaded chunks with the snapshot's and sets the
// tick to snapshotTick+1. Undo history is not restored.
//
// This must be called only when the world is stopped.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("world: unsupported snapshot version %d", s.Header.Version)
	}
	if s.Height != w.cfg.Height {
		return fmt.Errorf("world: snapshot height %d does not match world height %d", s.Height, w.cfg.Height)
	}
	w.cfg.Seed = s.Seed
	w.cfg.BoundaryR = s.BoundaryR
	w.chunks.Gen.Seed = s.Seed
	w.chunks.BoundaryR = s.BoundaryR
	clear(w.chunks.Chunks)
	if err := store.ImportChunks(w.chunks, s.Chunks); err != nil {
		return err
	}
	w.tick.Store(s.Header.Tick + 1)
	w.lastPeriodic = s.Header.Tick
	return nil
}

func (w *World) enqueueSnapshot(tick uint64, reason string, done chan<- error) bool {
	if w.snapshotSink == nil {
		return false
	}
	job := SnapshotJob{Snapshot: w.ExportSnapshot(tick, reason), Done: done}
	select {
	case w.snapshotSink <- job:
		w.prom.snapshots.WithLabelValues(reason).Inc()
		return true
	default:
		w.logger.Printf("snapshot dropped reason=%s tick=%d: sink backpressure", reason, tick)
		return false
	}
}

func (w *World) maybePeriodicSnapshot(tick uint64) {
	every := uint64(w.cfg.SnapshotEveryTicks)
	if every == 0 || w.snapshotSink == nil || tick < w.lastPeriodic+every {
		return
	}
	// A task holding the slot would leave a half-applied edit in the file.
	if w.arb.Busy() {
		return
	}
	if w.enqueueSnapshot(tick, ReasonPeriodic, nil) {
		w.lastPeriodic = tick
	}
}

// beforeMutation runs right before an edit is scheduled.
func (w *World) beforeMutation(playerID, kind string) {
	if w.backupTrigger != nil {
		w.backupTrigger(playerID, kind)
		return
	}
	now := w.now()
	if !w.lastPreEdit.IsZero() && now.Sub(w.lastPreEdit) < w.cfg.BackupMinInterval {
		return
	}
	if w.enqueueSnapshot(w.tick.Load(), ReasonPreEdit, nil) {
		w.lastPreEdit = now
	}
}

type backupReq struct {
	Resp chan backupResp
}

type backupResp struct {
	Tick uint64
	Err  string
}

// RequestBackup asks the world loop to write a backup snapshot. The busy slot
// is held in PERFORMING_BACKUP until the writer reports back.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestBackup(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.backupReq == nil {
		return 0, errors.New("backup not available")
	}
	req := backupReq{Resp: make(chan backupResp, 1)}
	select {
	case w.backupReq <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-req.Resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleBackupRequests(reqs []backupReq) {
	for _, r := range reqs {
		resp := w.startBackup()
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}

func (w *World) startBackup() backupResp {
	tick := w.tick.Load()
	if w.snapshotSink == nil {
		return backupResp{Tick: tick, Err: "snapshot sink not configured"}
	}
	if w.arb.Busy() {
		return backupResp{Tick: tick, Err: "server busy"}
	}
	done := make(chan error, 1)
	if !w.enqueueSnapshot(tick, ReasonBackup, done) {
		return backupResp{Tick: tick, Err: "snapshot sink backpressure"}
	}
	t := &backupTask{done: done, tick: tick, expires: w.now().Add(backupTimeout)}
	t.Clock = w.now
	if err := w.arb.StartBackup(t); err != nil {
		return backupResp{Tick: tick, Err: err.Error()}
	}
	w.backup = t
	w.audit(AuditEntry{Event: AuditBackup, Reason: "started"})
	return backupResp{Tick: tick}
}

// finishBackup reports a backup that completed during this tick.
func (w *World) finishBackup() {
	t := w.backup
	if t == nil || !t.fin {
		return
	}
	w.backup = nil
	reason := "completed"
	if t.err != nil {
		reason = t.err.Error()
		w.logger.Printf("backup failed tick=%d: %v", t.tick, t.err)
	}
	w.audit(AuditEntry{Event: AuditBackup, Reason: reason})
}

// backupTask waits for the snapshot writer to finish a backup.
type backupTask struct {
	async.Budget
	done    <-chan error
	tick    uint64
	expires time.Time
	fin     bool
	err     error
}

func (t *backupTask) Complete() bool { return t.fin }

func (t *backupTask) Fraction() float64 {
	if t.fin {
		return 1
	}
	return 0.5
}

func (t *backupTask) Continue() {
	if t.fin {
		return
	}
	select {
	case err := <-t.done:
		t.fin, t.err = true, err
		return
	default:
	}
	if t.Clock().After(t.expires) {
		t.fin, t.err = true, errors.New("backup timed out")
	}
}
