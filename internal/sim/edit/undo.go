package edit

import (
	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/history"
)

var undoWeights = []float64{0.05, 0.95}

// Undo is the staged task SETUP -> UNDO -> COMPLETE that reverts a player's
// most recent recorded action.
type Undo struct {
	async.Budget

	player string
	target int64
	world  blocks.Access
	hist   *history.History
	stages *async.Stages
	stage  Stage

	task      *history.UndoTask
	entrySeq  int64
	setupDone bool
	err       error
	fin       bool
}

// NewUndo reverts the newest entry of player. A positive target requires that
// entry to belong to that action sequence number.
func NewUndo(player string, target int64, world blocks.Access, hist *history.History, clock async.Clock) *Undo {
	return &Undo{
		Budget: async.Budget{Clock: clock},
		player: player,
		target: target,
		world:  world,
		hist:   hist,
		stages: async.NewStages(undoWeights...),
		stage:  StageSetup,
	}
}

func (u *Undo) Err() error   { return u.err }
func (u *Undo) Stage() Stage { return u.stage }

// EntrySeq is the action sequence number being undone.
func (u *Undo) EntrySeq() int64 { return u.entrySeq }

func (u *Undo) Complete() bool    { return u.fin }
func (u *Undo) Fraction() float64 { return u.stages.Fraction(u.fin) }

func (u *Undo) Setup() error {
	if u.setupDone {
		return u.err
	}
	u.setupDone = true
	top, ok := u.hist.Top(u.player)
	switch {
	case !ok:
		u.err = ErrNothingToUndo
	case u.target > 0 && top.Seq != u.target:
		u.err = ErrStaleUndo
	}
	if u.err != nil {
		u.finish()
		return u.err
	}
	u.entrySeq = top.Seq
	u.task = u.hist.PerformUndo(u.player, u.world)
	u.stages.Advance()
	u.stages.Start(u.task)
	u.stage = StageUndo
	return nil
}

func (u *Undo) finish() {
	u.stages.Finish()
	u.stage = StageComplete
	u.fin = true
}

func (u *Undo) Continue() {
	if u.fin {
		return
	}
	if u.stage == StageSetup {
		if u.Setup() != nil {
			return
		}
	}
	if u.TimeToInterrupt() {
		return
	}
	u.task.SetInterrupt(u.Interrupt())
	u.task.Continue()
	if u.task.Complete() {
		u.finish()
	}
}
