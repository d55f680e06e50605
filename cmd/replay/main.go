package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	persistlog "voxeledit.ai/internal/persistence/log"
	"voxeledit.ai/internal/persistence/snapshot"
	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		worldDir = flag.String("world_dir", "", "world data dir containing audit/ and events/ (optional)")
		fromTick = flag.Uint64("from_tick", 0, "ignore log entries before this tick (optional)")
		toTick   = flag.Uint64("to_tick", 0, "ignore log entries after this tick (optional)")
	)
	flag.Parse()

	if *snapPath == "" && *worldDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -world_dir")
		os.Exit(2)
	}

	if *snapPath != "" {
		if err := summarizeSnapshot(*snapPath); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
	}
	if *worldDir == "" {
		return
	}

	inRange := func(tick uint64) bool {
		return tick >= *fromTick && (*toTick == 0 || tick <= *toTick)
	}
	if err := summarizeTicks(filepath.Join(*worldDir, "events"), inRange); err != nil {
		fmt.Fprintln(os.Stderr, "events:", err)
		os.Exit(1)
	}
	if err := summarizeAudit(filepath.Join(*worldDir, "audit"), inRange); err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
}

// summarizeSnapshot prints the header and checks that the chunks load into a
// world of the recorded shape.
func summarizeSnapshot(path string) error {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return err
	}
	var solid int
	for _, c := range snap.Chunks {
		for _, id := range c.Blocks {
			if id != 0 {
				solid++
			}
		}
	}
	fmt.Printf("snapshot v%d world=%s tick=%d reason=%s seed=%d height=%d chunks=%d solid_blocks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Header.Reason,
		snap.Seed, snap.Height, len(snap.Chunks), solid)

	players := make([]string, 0, len(snap.UndoDepths))
	for p := range snap.UndoDepths {
		players = append(players, p)
	}
	sort.Strings(players)
	for _, p := range players {
		fmt.Printf("  undo_depth player=%s depth=%d\n", p, snap.UndoDepths[p])
	}

	w, err := world.New(world.WorldConfig{
		ID:         snap.Header.WorldID,
		TickRateHz: snap.TickRate,
		Height:     snap.Height,
		Seed:       snap.Seed,
		BoundaryR:  snap.BoundaryR,
	}, nil, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return err
	}
	fmt.Printf("import ok: resumes at tick=%d loaded_chunks=%d\n", w.CurrentTick(), len(w.Chunks().Chunks))
	return nil
}

func summarizeTicks(dir string, inRange func(uint64) bool) error {
	files, err := persistlog.Files(dir, "events")
	if err != nil {
		return err
	}
	var ticks, requests int
	var first, last uint64
	var maxStep float64
	busy := map[string]int{}
	for _, path := range files {
		err := persistlog.ReadFile(path, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if !inRange(e.Tick) {
				return nil
			}
			if ticks == 0 {
				first = e.Tick
			}
			ticks++
			last = e.Tick
			requests += len(e.Requests)
			busy[e.Status]++
			if e.StepMS > maxStep {
				maxStep = e.StepMS
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	fmt.Printf("events files=%d ticks=%d range=%d..%d requests=%d max_step_ms=%.3f\n", len(files), ticks, first, last, requests, maxStep)
	for _, s := range sortedKeys(busy) {
		fmt.Printf("  status=%s ticks=%d\n", s, busy[s])
	}
	return nil
}

type playerSummary struct {
	Name      string
	Actions   int
	Undos     int
	Rejected  int
	Aborted   int
	Cells     int
	Selection int
}

func summarizeAudit(dir string, inRange func(uint64) bool) error {
	files, err := persistlog.Files(dir, "audit")
	if err != nil {
		return err
	}
	players := map[string]*playerSummary{}
	var backups int
	get := func(e world.AuditEntry) *playerSummary {
		p := players[e.PlayerID]
		if p == nil {
			p = &playerSummary{}
			players[e.PlayerID] = p
		}
		if e.Player != "" {
			p.Name = e.Player
		}
		return p
	}
	for _, path := range files {
		err := persistlog.ReadFile(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if !inRange(e.Tick) {
				return nil
			}
			switch e.Event {
			case world.AuditBackup:
				backups++
			case world.AuditSelection:
				get(e).Selection++
			case world.AuditAck:
				if e.ActionAck == protocol.AckRejected || e.UndoAck == protocol.AckRejected {
					get(e).Rejected++
				}
			case world.AuditEditCompleted:
				p := get(e)
				if e.Kind == "undo" {
					p.Undos++
				} else {
					p.Actions++
				}
				if e.Aborted {
					p.Aborted++
				}
				p.Cells += e.Cells
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	fmt.Printf("audit files=%d players=%d backup_events=%d\n", len(files), len(players), backups)
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := players[id]
		fmt.Printf("  player=%s name=%s selections=%d actions=%d undos=%d rejected=%d aborted=%d cells=%d\n",
			id, p.Name, p.Selection, p.Actions, p.Undos, p.Rejected, p.Aborted, p.Cells)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
