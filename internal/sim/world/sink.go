package world

import (
	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/arbiter"
)

// sink forwards arbiter output to the player's connection, the audit log and
// the metrics.
type sink struct{ w *World }

func (s sink) Ack(playerID string, a arbiter.Ack) {
	w := s.w
	p := w.players[playerID]
	name := ""
	if p != nil {
		name = p.Name
	}
	if a.ActionAck != arbiter.AckNoUpdate {
		w.prom.acks.WithLabelValues("action", string(a.ActionAck)).Inc()
	}
	if a.UndoAck != arbiter.AckNoUpdate {
		w.prom.acks.WithLabelValues("undo", string(a.UndoAck)).Inc()
	}
	w.audit(AuditEntry{
		Event:     AuditAck,
		PlayerID:  playerID,
		Player:    name,
		ActionAck: string(a.ActionAck),
		ActionSeq: a.ActionSeq,
		UndoAck:   string(a.UndoAck),
		UndoSeq:   a.UndoSeq,
		Code:      a.Code,
		Reason:    a.Reason,
	})
	w.sendTo(p, protocol.EditAckMsg{
		Type:            protocol.TypeEditAck,
		ProtocolVersion: protocol.Version,
		ActionAck:       string(a.ActionAck),
		ActionSeq:       a.ActionSeq,
		UndoAck:         string(a.UndoAck),
		UndoSeq:         a.UndoSeq,
		Code:            a.Code,
		Reason:          a.Reason,
	})
}

func (s sink) Status(playerID string, st arbiter.Status) {
	p := s.w.players[playerID]
	if p == nil || p.out == nil {
		return
	}
	s.w.sendTo(p, protocol.StatusMsg{
		Type:            protocol.TypeStatus,
		ProtocolVersion: protocol.Version,
		Status:          string(st.Status),
		Percent:         st.Percent,
		Player:          st.Player,
	})
}

func (s sink) Completed(c arbiter.Completion) {
	w := s.w
	w.prom.edits.WithLabelValues(c.Kind).Inc()
	w.prom.cells.Add(float64(c.Cells))
	if c.Aborted {
		w.prom.aborted.Inc()
	}
	w.edits = append(w.edits, c)
	w.audit(AuditEntry{
		Event:    AuditEditCompleted,
		PlayerID: c.PlayerID,
		Player:   c.Player,
		Kind:     c.Kind,
		Seq:      c.Seq,
		Target:   c.Target,
		Tool:     c.Tool,
		Cells:    c.Cells,
		Aborted:  c.Aborted,
	})
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	e.Tick = w.tick.Load()
	_ = w.auditLogger.WriteAudit(e)
}
