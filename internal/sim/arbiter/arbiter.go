// Package arbiter runs the session protocol in front of the edit engine: it
// owns the single busy slot, deduplicates sequence-numbered requests and keeps
// every connected player informed of the server's status.
package arbiter

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/edit"
	"voxeledit.ai/internal/sim/fragment"
	"voxeledit.ai/internal/sim/history"
	"voxeledit.ai/internal/sim/voxel"
)

var ErrBusy = errors.New("arbiter: busy")

type Config struct {
	World   blocks.Access
	History *history.History
	Sink    Sink
	Logger  *log.Logger
	Clock   async.Clock

	// StatusInterval is how often sessions waiting on the server get an
	// unsolicited status push.
	StatusInterval time.Duration

	// BeforeMutation runs right before a world-mutating task is scheduled.
	BeforeMutation func(playerID, kind string)
}

type Session struct {
	ID   string
	Name string

	Client ClientStatus

	action ledger
	undo   ledger

	lastStatusAt time.Time

	selection *voxel.WithOrigin
	substrate *fragment.Fragment
}

// LastActionSeq and LastUndoSeq are the highest acknowledged sequence numbers.
func (s *Session) LastActionSeq() int64 { return s.action.seq }
func (s *Session) LastUndoSeq() int64   { return s.undo.seq }

type slotKind uint8

const (
	slotIdle slotKind = iota
	slotAction
	slotUndo
	slotBackup
)

type slot struct {
	kind     slotKind
	playerID string
	name     string
	seq      int64
	place    *edit.Placement
	undo     *edit.Undo
	backup   async.Token
	percent  int
}

func (s *slot) token() async.Token {
	switch s.kind {
	case slotAction:
		return s.place
	case slotUndo:
		return s.undo
	case slotBackup:
		return s.backup
	}
	return nil
}

type Arbiter struct {
	cfg      Config
	logger   *log.Logger
	sessions map[string]*Session
	slot     slot
}

func New(cfg Config) *Arbiter {
	if cfg.World == nil || cfg.History == nil || cfg.Sink == nil {
		panic("arbiter: world, history and sink are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[arbiter] ", log.LstdFlags)
	}
	return &Arbiter{cfg: cfg, logger: logger, sessions: map[string]*Session{}}
}

func (a *Arbiter) Join(id, name string) *Session {
	if s, ok := a.sessions[id]; ok {
		s.Name = name
		return s
	}
	s := &Session{
		ID:     id,
		Name:   name,
		Client: ClientIdle,
		action: ledger{name: "action"},
		undo:   ledger{name: "undo"},
	}
	a.sessions[id] = s
	a.pushStatus(s)
	return s
}

// Leave drops the session. A task the player started keeps running to
// completion; its acknowledgements are dropped.
func (a *Arbiter) Leave(id string) {
	delete(a.sessions, id)
}

func (a *Arbiter) Session(id string) (*Session, bool) {
	s, ok := a.sessions[id]
	return s, ok
}

func (a *Arbiter) SessionCount() int { return len(a.sessions) }

// SetSelection stores the player's uploaded selection and optional substrate.
func (a *Arbiter) SetSelection(id string, sel *voxel.WithOrigin, substrate *fragment.Fragment) error {
	s, ok := a.sessions[id]
	if !ok {
		return fmt.Errorf("arbiter: unknown session %q", id)
	}
	s.selection, s.substrate = sel, substrate
	return nil
}

func (a *Arbiter) SetClientStatus(id string, st ClientStatus) {
	s, ok := a.sessions[id]
	if !ok {
		return
	}
	if st == ClientWaiting && s.Client != ClientWaiting {
		s.lastStatusAt = time.Time{}
	}
	s.Client = st
}

// StartBackup occupies the slot with a backup task.
func (a *Arbiter) StartBackup(t async.Token) error {
	if a.slot.kind != slotIdle {
		return ErrBusy
	}
	a.slot = slot{kind: slotBackup, backup: t}
	a.logger.Printf("backup started")
	a.pushAll()
	return nil
}

// Busy reports whether a task holds the slot.
func (a *Arbiter) Busy() bool { return a.slot.kind != slotIdle }

// Tick advances the active task until deadline and runs the periodic status
// duty. Requests received during the tick must be submitted before Tick.
func (a *Arbiter) Tick(deadline time.Time) {
	if t := a.slot.token(); t != nil {
		t.SetInterrupt(async.At(deadline))
		t.Continue()
		if t.Complete() {
			a.complete()
		} else {
			a.updatePercent(t.Fraction())
		}
	}
	now := a.cfg.Clock()
	for _, s := range a.sortedSessions() {
		if s.Client == ClientIdle {
			continue
		}
		if now.Sub(s.lastStatusAt) >= a.cfg.StatusInterval {
			a.pushStatus(s)
		}
	}
}

func (a *Arbiter) updatePercent(f float64) {
	p := int(math.Floor(f * 100))
	p = min(max(p, 0), 99)
	if p > a.slot.percent {
		a.slot.percent = p
	}
}

func (a *Arbiter) complete() {
	sl := a.slot
	a.slot = slot{}
	switch sl.kind {
	case slotAction:
		p := sl.place
		c := Completion{PlayerID: sl.playerID, Player: sl.name, Kind: "action", Seq: sl.seq, Tool: string(p.Request().Tool), Cells: p.Written(), Aborted: p.Aborted()}
		a.logger.Printf("action completed player=%s seq=%d tool=%s cells=%d", sl.name, sl.seq, c.Tool, c.Cells)
		if s, ok := a.sessions[sl.playerID]; ok {
			a.send(s, Ack{ActionAck: AckCompleted, ActionSeq: sl.seq, UndoAck: AckNoUpdate})
			s.Client = ClientIdle
		}
		a.cfg.Sink.Completed(c)
	case slotUndo:
		c := Completion{PlayerID: sl.playerID, Player: sl.name, Kind: "undo", Seq: sl.seq, Target: sl.undo.EntrySeq()}
		a.logger.Printf("undo completed player=%s seq=%d target=%d", sl.name, sl.seq, c.Target)
		if s, ok := a.sessions[sl.playerID]; ok {
			a.send(s, Ack{ActionAck: AckNoUpdate, UndoAck: AckCompleted, UndoSeq: sl.seq})
			s.Client = ClientIdle
		}
		a.cfg.Sink.Completed(c)
	case slotBackup:
		a.logger.Printf("backup completed")
	}
	a.pushAll()
}

func (a *Arbiter) send(s *Session, ack Ack) {
	if ack.ActionAck != AckNoUpdate {
		s.action.record(ack.ActionSeq, ack.ActionAck, ack)
	}
	if ack.UndoAck != AckNoUpdate {
		s.undo.record(ack.UndoSeq, ack.UndoAck, ack)
	}
	a.cfg.Sink.Ack(s.ID, ack)
}

// StatusFor is the status as seen by the given session.
func (a *Arbiter) StatusFor(s *Session) Status {
	switch a.slot.kind {
	case slotIdle:
		return Status{Status: StatusIdle}
	case slotBackup:
		return Status{Status: StatusPerformingBackup, Percent: a.slot.percent}
	}
	if s == nil || s.ID != a.slot.playerID {
		return Status{Status: StatusBusyWithOtherPlayer, Player: a.slot.name}
	}
	st := StatusPerformingAction
	if a.slot.kind == slotUndo {
		st = StatusUndoingAction
	}
	return Status{Status: st, Percent: a.slot.percent, Player: a.slot.name}
}

func (a *Arbiter) pushStatus(s *Session) {
	s.lastStatusAt = a.cfg.Clock()
	a.cfg.Sink.Status(s.ID, a.StatusFor(s))
}

func (a *Arbiter) pushAll() {
	for _, s := range a.sortedSessions() {
		a.pushStatus(s)
	}
}

func (a *Arbiter) sortedSessions() []*Session {
	out := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State is a point-in-time view for admin tooling.
type State struct {
	Status   ServerStatus          `json:"status"`
	Percent  int                   `json:"percent"`
	Player   string                `json:"player,omitempty"`
	Sessions int                   `json:"sessions"`
	Undo     []history.PlayerDepth `json:"undo_depths"`
}

func (a *Arbiter) State() State {
	st := State{Sessions: len(a.sessions), Undo: a.cfg.History.Depths(), Percent: a.slot.percent, Player: a.slot.name}
	switch a.slot.kind {
	case slotIdle:
		st.Status = StatusIdle
	case slotBackup:
		st.Status = StatusPerformingBackup
	case slotAction:
		st.Status = StatusPerformingAction
	case slotUndo:
		st.Status = StatusUndoingAction
	}
	return st
}
