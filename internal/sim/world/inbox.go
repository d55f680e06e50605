package world

import (
	"fmt"

	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/arbiter"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/voxel"
)

func (w *World) handleEnvelope(env Envelope) {
	p := w.playerBySession(env.SessionID, env.PlayerID)
	if p == nil {
		return
	}
	switch {
	case env.Selection != nil:
		w.handleSelection(p, env.Selection)
	case env.Action != nil:
		w.handleAction(p, env.Action)
	case env.Undo != nil:
		w.handleUndo(p, env.Undo)
	case env.ClientStatus != nil:
		w.handleClientStatus(p, env.ClientStatus)
	}
}

func (w *World) handleSelection(p *player, up *Upload) {
	ack := protocol.SelectionAckMsg{
		Type:            protocol.TypeSelectionAck,
		ProtocolVersion: protocol.Version,
		ID:              up.ID,
	}
	sel := up.Selection
	rec := RequestRecord{PlayerID: p.ID, Kind: protocol.TypeSelection, Pos: up.Origin}
	switch {
	case sel == nil:
		ack.Code, ack.Message = protocol.ErrBadRequest, "missing selection"
	case sel.XSize() > w.cfg.MaxSelectionEdge || sel.YSize() > w.cfg.MaxSelectionEdge || sel.ZSize() > w.cfg.MaxSelectionEdge:
		ack.Code = protocol.ErrPayloadTooLarge
		ack.Message = fmt.Sprintf("selection %dx%dx%d exceeds edge %d", sel.XSize(), sel.YSize(), sel.ZSize(), w.cfg.MaxSelectionEdge)
	case up.Substrate != nil && (up.Substrate.XSize() != sel.XSize() || up.Substrate.YSize() != sel.YSize() || up.Substrate.ZSize() != sel.ZSize()):
		ack.Code, ack.Message = protocol.ErrBadRequest, "substrate extent does not match selection"
	default:
		wo := voxel.NewWithOrigin(sel, up.Origin[0], up.Origin[1], up.Origin[2])
		if err := w.arb.SetSelection(p.ID, wo, up.Substrate); err != nil {
			ack.Code, ack.Message = protocol.ErrInternal, err.Error()
			break
		}
		ack.OK = true
		ack.Size = [3]int{sel.XSize(), sel.YSize(), sel.ZSize()}
		ack.Voxels = sel.Count()
		ack.Substrate = up.Substrate != nil
	}
	rec.Status = ack.Code
	w.records = append(w.records, rec)
	w.audit(AuditEntry{Event: AuditSelection, PlayerID: p.ID, Player: p.Name, Code: ack.Code, Reason: ack.Message, Cells: ack.Voxels})
	w.sendTo(p, ack)
}

func (w *World) handleAction(p *player, m *protocol.ActionMsg) {
	req := arbiter.ActionRequest{
		Seq:      m.Seq,
		Tool:     m.Tool,
		X:        m.Pos[0],
		Y:        m.Pos[1],
		Z:        m.Pos[2],
		FlipX:    m.FlipX,
		Rotation: m.Rotation,
	}
	if m.Block != nil {
		req.Block = blocks.Block{ID: m.Block.ID, Meta: m.Block.Meta}
	}
	w.records = append(w.records, RequestRecord{PlayerID: p.ID, Kind: protocol.TypeAction, Seq: m.Seq, Tool: m.Tool, Pos: m.Pos})
	w.arb.SubmitAction(p.ID, req)
}

func (w *World) handleUndo(p *player, m *protocol.UndoMsg) {
	var target int64
	if m.TargetActionSeq != nil {
		target = *m.TargetActionSeq
	}
	w.records = append(w.records, RequestRecord{PlayerID: p.ID, Kind: protocol.TypeUndo, Seq: m.Seq, Target: target})
	w.arb.SubmitUndo(p.ID, m.Seq, target)
}

func (w *World) handleClientStatus(p *player, m *protocol.ClientStatusMsg) {
	st, err := arbiter.ParseClientStatus(m.Status)
	if err != nil {
		w.sendTo(p, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrBadRequest,
			Message:         err.Error(),
		})
		return
	}
	w.records = append(w.records, RequestRecord{PlayerID: p.ID, Kind: protocol.TypeClientStatus, Status: string(st)})
	w.arb.SetClientStatus(p.ID, st)
}
