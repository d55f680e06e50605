package world

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"voxeledit.ai/internal/observerproto"
	"voxeledit.ai/internal/sim/arbiter"
)

// State is the admin view of the world.
type State struct {
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	arbiter.State
	Players []observerproto.PlayerState `json:"players"`
}

type stateReq struct {
	Resp chan State
}

// RequestState returns the arbitration state from the world loop goroutine.
func (w *World) RequestState(ctx context.Context) (State, error) {
	if w == nil || w.stateReq == nil {
		return State{}, errors.New("state query not available")
	}
	req := stateReq{Resp: make(chan State, 1)}
	select {
	case w.stateReq <- req:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-req.Resp:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (w *World) handleStateReq(req stateReq) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- w.state():
	default:
	}
}

func (w *World) state() State {
	return State{
		WorldID: w.cfg.ID,
		Tick:    w.tick.Load(),
		State:   w.arb.State(),
		Players: w.playerStates(),
	}
}

func (w *World) playerStates() []observerproto.PlayerState {
	out := make([]observerproto.PlayerState, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, observerproto.PlayerState{
			ID:        p.ID,
			Name:      p.Name,
			Connected: p.sessionID != "",
			UndoDepth: w.hist.Depth(p.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type observerState struct {
	out      chan []byte
	interval uint64
	lastSent uint64
	sent     bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	interval := req.IntervalTicks
	if interval <= 0 {
		interval = w.cfg.TickRateHz
	}
	w.observers[req.SessionID] = &observerState{out: req.Out, interval: uint64(interval)}
}

// broadcastObservers sends a StateMsg to observers whenever the status
// changed or an edit finished, and otherwise once per observer interval.
func (w *World) broadcastObservers(tick uint64, st arbiter.State) {
	if len(w.observers) == 0 {
		return
	}
	changed := len(w.edits) > 0 || st.Status != w.lastObserved.Status || st.Percent != w.lastObserved.Percent || st.Player != w.lastObserved.Player
	w.lastObserved = st

	var b []byte
	for _, o := range w.observers {
		if o.sent && !changed && tick < o.lastSent+o.interval {
			continue
		}
		if b == nil {
			b = w.stateMsg(tick, st)
			if b == nil {
				return
			}
		}
		sendLatest(o.out, b)
		o.sent, o.lastSent = true, tick
	}
}

func (w *World) stateMsg(tick uint64, st arbiter.State) []byte {
	msg := observerproto.StateMsg{
		Type:            "STATE",
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Status:          string(st.Status),
		Percent:         st.Percent,
		Player:          st.Player,
		Players:         w.playerStates(),
	}
	for _, c := range w.edits {
		msg.Edits = append(msg.Edits, observerproto.EditInfo{
			Tick:    tick,
			Player:  c.Player,
			Kind:    c.Kind,
			Seq:     c.Seq,
			Tool:    c.Tool,
			Cells:   c.Cells,
			Aborted: c.Aborted,
		})
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}
