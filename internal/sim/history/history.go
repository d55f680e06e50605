// Package history keeps a bounded per-player stack of reversible world edits.
//
// An entry is appended only when every write recorded into it has finished.
// Undo pops the newest entry and writes its captured blocks back; the undo
// write itself is never recorded.
package history

import (
	"fmt"
	"sort"

	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/fragment"
	"voxeledit.ai/internal/sim/orient"
)

// Delta is the prior content of one written footprint.
type Delta struct {
	Before     *fragment.Fragment
	WX, WY, WZ int
}

// Entry groups the deltas of one player action.
type Entry struct {
	Seq    int64
	Deltas []Delta
}

// Cells is the number of cells the entry restores.
func (e *Entry) Cells() int {
	n := 0
	for _, d := range e.Deltas {
		n += d.Before.Count()
	}
	return n
}

type History struct {
	depth   int
	clock   async.Clock
	players map[string][]*Entry
}

func New(depth int, clock async.Clock) *History {
	if depth <= 0 {
		panic(fmt.Sprintf("history: invalid depth %d", depth))
	}
	return &History{depth: depth, clock: clock, players: map[string][]*Entry{}}
}

func (h *History) MaxDepth() int { return h.depth }

// Depth is the number of undoable entries held for player.
func (h *History) Depth(player string) int { return len(h.players[player]) }

// Top returns the newest entry for player without removing it.
func (h *History) Top(player string) (*Entry, bool) {
	s := h.players[player]
	if len(s) == 0 {
		return nil, false
	}
	return s[len(s)-1], true
}

// Depths reports the undo depth of every player with history, sorted by id.
func (h *History) Depths() []PlayerDepth {
	out := make([]PlayerDepth, 0, len(h.players))
	for p, s := range h.players {
		if len(s) > 0 {
			out = append(out, PlayerDepth{Player: p, Depth: len(s)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}

type PlayerDepth struct {
	Player string `json:"player"`
	Depth  int    `json:"depth"`
}

// Forget drops all history of player.
func (h *History) Forget(player string) { delete(h.players, player) }

func (h *History) push(player string, e *Entry) {
	s := append(h.players[player], e)
	if len(s) > h.depth {
		copy(s, s[len(s)-h.depth:])
		for i := h.depth; i < len(s); i++ {
			s[i] = nil
		}
		s = s[:h.depth]
	}
	h.players[player] = s
}

func (h *History) pop(player string) *Entry {
	s := h.players[player]
	if len(s) == 0 {
		return nil
	}
	e := s[len(s)-1]
	s[len(s)-1] = nil
	if len(s) == 1 {
		delete(h.players, player)
	} else {
		h.players[player] = s[:len(s)-1]
	}
	return e
}

// WriteToWorldWithUndo schedules a masked oriented write of f at (wx,wy,wz).
// When the write finishes its inverse becomes a new entry for player.
func (h *History) WriteToWorldWithUndo(player string, seq int64, world blocks.Access, f *fragment.Fragment, wx, wy, wz int, q *orient.Quad) (*RecordedWrite, error) {
	r := h.Begin(player, seq)
	w, err := r.Write(world, f, wx, wy, wz, q)
	if err != nil {
		return nil, err
	}
	w.commit = true
	return w, nil
}

// PerformUndo pops the newest entry of player and schedules writing it back.
// It returns nil when there is nothing to undo.
func (h *History) PerformUndo(player string, world blocks.Access) *UndoTask {
	e := h.pop(player)
	if e == nil {
		return nil
	}
	return &UndoTask{Budget: async.Budget{Clock: h.clock}, world: world, entry: e, total: e.Cells()}
}

// Recorder collects the deltas of an action made of several writes.
type Recorder struct {
	h         *History
	player    string
	entry     *Entry
	pending   int
	committed bool
}

// Begin starts a new entry for player tagged with the action sequence number.
func (h *History) Begin(player string, seq int64) *Recorder {
	return &Recorder{h: h, player: player, entry: &Entry{Seq: seq}}
}

// Write schedules one recorded write. Its delta joins the entry when it finishes.
func (r *Recorder) Write(world blocks.Access, f *fragment.Fragment, wx, wy, wz int, q *orient.Quad) (*RecordedWrite, error) {
	if r.committed {
		panic("history: write after commit")
	}
	t, err := fragment.NewWriteTask(world, f, wx, wy, wz, q, true, r.h.clock)
	if err != nil {
		return nil, err
	}
	r.pending++
	return &RecordedWrite{WriteTask: t, rec: r}, nil
}

// Pending is the number of writes that have not finished yet.
func (r *Recorder) Pending() int { return r.pending }

// Commit pushes the entry if it captured anything. Writes still pending are
// lost to the entry, so callers commit after their last write completes.
func (r *Recorder) Commit() bool {
	if r.committed {
		return false
	}
	r.committed = true
	if len(r.entry.Deltas) == 0 {
		return false
	}
	r.h.push(r.player, r.entry)
	return true
}

// RecordedWrite is a write whose inverse is captured into a Recorder.
type RecordedWrite struct {
	*fragment.WriteTask
	rec    *Recorder
	commit bool
	noted  bool
}

func (w *RecordedWrite) Continue() {
	w.WriteTask.Continue()
	if !w.WriteTask.Complete() || w.noted {
		return
	}
	w.noted = true
	w.rec.pending--
	before, at := w.WriteTask.Undo()
	if before != nil && before.Count() > 0 {
		w.rec.entry.Deltas = append(w.rec.entry.Deltas, Delta{Before: before, WX: at[0], WY: at[1], WZ: at[2]})
	}
	if w.commit {
		w.rec.Commit()
	}
}

// UndoTask writes an entry's deltas back in reverse order.
type UndoTask struct {
	async.Budget

	world blocks.Access
	entry *Entry
	next  int
	cur   *fragment.WriteTask
	total int
	done  int
	last  float64
	fin   bool
}

// Entry is the history entry being undone.
func (u *UndoTask) Entry() *Entry { return u.entry }

func (u *UndoTask) Complete() bool { return u.fin }

func (u *UndoTask) Fraction() float64 {
	if u.fin {
		return 1
	}
	if u.total == 0 {
		return 0
	}
	f := float64(u.done)
	if u.cur != nil {
		f += u.cur.Fraction() * float64(u.entry.Deltas[len(u.entry.Deltas)-u.next].Before.Count())
	}
	f = min(f/float64(u.total), 1-1e-9)
	if f < u.last {
		f = u.last
	}
	u.last = f
	return f
}

func (u *UndoTask) Continue() {
	for !u.fin {
		if u.cur == nil {
			if u.next >= len(u.entry.Deltas) {
				u.fin = true
				return
			}
			if u.TimeToInterrupt() {
				return
			}
			u.next++
			d := u.entry.Deltas[len(u.entry.Deltas)-u.next]
			t, err := fragment.NewWriteTask(u.world, d.Before, d.WX, d.WY, d.WZ, nil, false, u.Clock)
			if err != nil {
				// An untransformed copy of a captured fragment always fits.
				panic(fmt.Sprintf("history: restoring delta: %v", err))
			}
			u.cur = t
		}
		u.cur.SetInterrupt(u.Interrupt())
		u.cur.Continue()
		if !u.cur.Complete() {
			return
		}
		u.done += u.entry.Deltas[len(u.entry.Deltas)-u.next].Before.Count()
		u.cur = nil
	}
}
