package world

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"voxeledit.ai/internal/protocol"
)

const maxNameLen = 32

func normalizeName(name, id string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "player-" + id[:8]
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		name = string([]rune(name)[:maxNameLen])
	}
	return name
}

func (w *World) handleJoin(req JoinRequest) {
	resp := w.joinPlayer(req)
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- resp:
	default:
	}
}

func (w *World) joinPlayer(req JoinRequest) JoinResponse {
	if req.SessionID == "" || req.Out == nil {
		return JoinResponse{Err: "missing session"}
	}
	var p *player
	if tok := strings.TrimSpace(req.ResumeToken); tok != "" {
		if id, ok := w.tokens[tok]; ok {
			p = w.players[id]
			delete(w.tokens, tok)
		}
	}
	if p == nil {
		id := uuid.NewString()
		p = &player{ID: id}
		w.players[id] = p
	} else if p.sessionID != "" {
		// Resumed while the old connection is still attached; it stops
		// receiving anything.
		delete(w.sessions, p.sessionID)
		w.arb.Leave(p.ID)
	}
	p.Name = normalizeName(req.Name, p.ID)
	p.Token = uuid.NewString()
	w.tokens[p.Token] = p.ID
	p.sessionID = req.SessionID
	p.out = req.Out
	w.sessions[req.SessionID] = p.ID

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       req.SessionID,
		PlayerID:        p.ID,
		ResumeToken:     p.Token,
		WorldParams:     w.welcomeParams(),
	}
	if b, err := json.Marshal(welcome); err == nil {
		trySend(p.out, b)
	}
	s := w.arb.Join(p.ID, p.Name)
	welcome.LastActionSeq = s.LastActionSeq()
	welcome.LastUndoSeq = s.LastUndoSeq()
	w.logger.Printf("player joined id=%s name=%s session=%s", p.ID, p.Name, req.SessionID)
	return JoinResponse{Welcome: welcome}
}

func (w *World) handleLeave(sessionID string) {
	pid, ok := w.sessions[sessionID]
	if !ok {
		return
	}
	delete(w.sessions, sessionID)
	p := w.players[pid]
	if p == nil || p.sessionID != sessionID {
		return
	}
	w.arb.Leave(p.ID)
	p.sessionID = ""
	p.out = nil
	p.detachedAt = w.now()
	w.logger.Printf("player left id=%s name=%s", p.ID, p.Name)
}

// pruneDetached forgets players that have been gone longer than ResumeWindow.
func (w *World) pruneDetached() {
	now := w.now()
	for id, p := range w.players {
		if p.sessionID != "" || now.Sub(p.detachedAt) < ResumeWindow {
			continue
		}
		delete(w.tokens, p.Token)
		delete(w.players, id)
		w.hist.Forget(id)
	}
}

// playerBySession resolves the attached player for a session, ignoring
// messages from connections that were replaced.
func (w *World) playerBySession(sessionID, playerID string) *player {
	pid, ok := w.sessions[sessionID]
	if !ok || (playerID != "" && pid != playerID) {
		return nil
	}
	return w.players[pid]
}

func (w *World) sendTo(p *player, v any) bool {
	if p == nil || p.out == nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if !trySend(p.out, b) {
		w.prom.dropped.Inc()
		return false
	}
	return true
}
