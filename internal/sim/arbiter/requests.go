package arbiter

import (
	"errors"
	"fmt"

	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/edit"
)

// ActionRequest is a tool application as received from a client.
type ActionRequest struct {
	Seq      int64
	Tool     string
	X, Y, Z  int
	FlipX    bool
	Rotation int
	Block    blocks.Block
}

// SubmitAction handles one action request and returns the acknowledgements it
// produced. Duplicates of the last acknowledged sequence number get the cached
// acknowledgement again; older numbers are dropped.
func (a *Arbiter) SubmitAction(id string, req ActionRequest) []Ack {
	s, ok := a.sessions[id]
	if !ok {
		return nil
	}
	switch s.action.classify(req.Seq) {
	case verdictDuplicate:
		a.cfg.Sink.Ack(s.ID, s.action.cached)
		return []Ack{s.action.cached}
	case verdictStale:
		return nil
	}

	if code, reason := a.busyReason(s); code != "" {
		return a.rejectAction(s, req.Seq, code, reason)
	}
	tool, err := edit.ParseTool(req.Tool)
	if err != nil {
		return a.rejectAction(s, req.Seq, protocol.ErrBadRequest, err.Error())
	}
	p := edit.NewPlacement(edit.Request{
		Player:    s.ID,
		Seq:       req.Seq,
		Tool:      tool,
		X:         req.X,
		Y:         req.Y,
		Z:         req.Z,
		FlipX:     req.FlipX,
		Rotation:  req.Rotation,
		Selection: s.selection,
		Substrate: s.substrate,
		Block:     req.Block,
	}, a.cfg.World, a.cfg.History, a.cfg.Clock)
	if err := p.Setup(); err != nil {
		return a.rejectAction(s, req.Seq, setupCode(err), err.Error())
	}
	if a.cfg.BeforeMutation != nil {
		a.cfg.BeforeMutation(s.ID, "action")
	}
	a.slot = slot{kind: slotAction, playerID: s.ID, name: s.Name, seq: req.Seq, place: p}
	s.Client = ClientWaiting
	ack := Ack{ActionAck: AckAccepted, ActionSeq: req.Seq, UndoAck: AckNoUpdate}
	a.send(s, ack)
	a.logger.Printf("action accepted player=%s seq=%d %s", s.Name, req.Seq, p.Request())
	a.pushAll()
	return []Ack{ack}
}

func (a *Arbiter) rejectAction(s *Session, seq int64, code, reason string) []Ack {
	ack := Ack{ActionAck: AckRejected, ActionSeq: seq, UndoAck: AckNoUpdate, Code: code, Reason: reason}
	a.send(s, ack)
	a.logger.Printf("action rejected player=%s seq=%d code=%s reason=%q", s.Name, seq, code, reason)
	return []Ack{ack}
}

// SubmitUndo handles one undo request. target is the action sequence number to
// undo, or 0 for the most recently completed action.
func (a *Arbiter) SubmitUndo(id string, seq, target int64) []Ack {
	s, ok := a.sessions[id]
	if !ok {
		return nil
	}
	switch s.undo.classify(seq) {
	case verdictDuplicate:
		a.cfg.Sink.Ack(s.ID, s.undo.cached)
		return []Ack{s.undo.cached}
	case verdictStale:
		return nil
	}

	switch {
	case target > 0 && target > s.action.seq:
		return a.undoUnseen(s, seq, target)
	case target > 0 && s.action.inFlight(target) && a.slot.kind == slotAction && a.slot.playerID == s.ID:
		return a.undoInFlight(s, seq, target)
	}

	if code, reason := a.busyReason(s); code != "" {
		return a.rejectUndo(s, Ack{ActionAck: AckNoUpdate}, seq, code, reason)
	}
	u := edit.NewUndo(s.ID, target, a.cfg.World, a.cfg.History, a.cfg.Clock)
	if err := u.Setup(); err != nil {
		return a.rejectUndo(s, Ack{ActionAck: AckNoUpdate}, seq, setupCode(err), err.Error())
	}
	return a.startUndo(s, Ack{ActionAck: AckNoUpdate}, seq, u)
}

// undoUnseen handles an undo naming an action the server never acknowledged.
// That action is settled as completed with nothing done so a late copy of it
// is never performed, and the undo itself has nothing to revert.
func (a *Arbiter) undoUnseen(s *Session, seq, target int64) []Ack {
	head := Ack{ActionAck: AckCompleted, ActionSeq: target}
	if code, reason := a.busyReason(s); code != "" {
		return a.rejectUndo(s, head, seq, code, reason)
	}
	a.logger.Printf("undo of unseen action player=%s seq=%d target=%d", s.Name, seq, target)
	return a.noopUndo(s, head, seq)
}

// undoInFlight cancels the player's running action and reverts whatever it
// already wrote.
func (a *Arbiter) undoInFlight(s *Session, seq, target int64) []Ack {
	p := a.slot.place
	p.Abort()
	p.SetInterrupt(async.Immediately())
	p.Continue()
	if !p.Complete() {
		panic("arbiter: aborted placement did not complete")
	}
	a.slot = slot{}
	a.logger.Printf("action cancelled player=%s seq=%d written=%d recorded=%t", s.Name, target, p.Written(), p.Recorded())
	a.cfg.Sink.Completed(Completion{PlayerID: s.ID, Player: s.Name, Kind: "action", Seq: target, Tool: string(p.Request().Tool), Cells: p.Written(), Aborted: true})

	head := Ack{ActionAck: AckCompleted, ActionSeq: target}
	if !p.Recorded() {
		return a.noopUndo(s, head, seq)
	}
	u := edit.NewUndo(s.ID, target, a.cfg.World, a.cfg.History, a.cfg.Clock)
	if err := u.Setup(); err != nil {
		// The entry was pushed by the abort above.
		panic(fmt.Sprintf("arbiter: undo of cancelled action: %v", err))
	}
	return a.startUndo(s, head, seq, u)
}

func (a *Arbiter) startUndo(s *Session, head Ack, seq int64, u *edit.Undo) []Ack {
	if a.cfg.BeforeMutation != nil {
		a.cfg.BeforeMutation(s.ID, "undo")
	}
	a.slot = slot{kind: slotUndo, playerID: s.ID, name: s.Name, seq: seq, undo: u}
	s.Client = ClientWaiting
	head.UndoAck, head.UndoSeq = AckAccepted, seq
	a.send(s, head)
	a.logger.Printf("undo accepted player=%s seq=%d target=%d", s.Name, seq, u.EntrySeq())
	a.pushAll()
	return []Ack{head}
}

func (a *Arbiter) noopUndo(s *Session, head Ack, seq int64) []Ack {
	head.UndoAck, head.UndoSeq = AckAccepted, seq
	a.send(s, head)
	done := Ack{ActionAck: AckNoUpdate, UndoAck: AckCompleted, UndoSeq: seq}
	a.send(s, done)
	s.Client = ClientIdle
	a.pushAll()
	return []Ack{head, done}
}

func (a *Arbiter) rejectUndo(s *Session, head Ack, seq int64, code, reason string) []Ack {
	head.UndoAck, head.UndoSeq = AckRejected, seq
	head.Code, head.Reason = code, reason
	a.send(s, head)
	a.logger.Printf("undo rejected player=%s seq=%d code=%s reason=%q", s.Name, seq, code, reason)
	if head.ActionAck == AckCompleted {
		a.pushAll()
	}
	return []Ack{head}
}

// busyReason explains why s cannot start a task now; code is empty when the
// slot is free.
func (a *Arbiter) busyReason(s *Session) (code, reason string) {
	switch a.slot.kind {
	case slotIdle:
		return "", ""
	case slotBackup:
		return protocol.ErrBackup, "server is performing a backup"
	}
	if a.slot.playerID == s.ID {
		if a.slot.kind == slotAction {
			return protocol.ErrBusy, "your previous action is still being performed"
		}
		return protocol.ErrBusy, "your previous undo is still being performed"
	}
	if a.slot.kind == slotAction {
		return protocol.ErrBusy, fmt.Sprintf("server is busy with an action for %s", a.slot.name)
	}
	return protocol.ErrBusy, fmt.Sprintf("server is busy undoing for %s", a.slot.name)
}

func setupCode(err error) string {
	switch {
	case errors.Is(err, edit.ErrNoSelection), errors.Is(err, edit.ErrEmptySelection):
		return protocol.ErrNoSelection
	case errors.Is(err, edit.ErrNothingToUndo):
		return protocol.ErrNothingToUndo
	case errors.Is(err, edit.ErrStaleUndo), errors.Is(err, edit.ErrOutOfWorld), errors.Is(err, edit.ErrTooLarge):
		return protocol.ErrInvalidTarget
	}
	return protocol.ErrBadRequest
}
