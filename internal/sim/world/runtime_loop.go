package world

import (
	"context"
	"time"

	"voxeledit.ai/internal/sim/arbiter"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingInbox []Envelope
	var pendingBackups []backupReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingInbox = append(pendingInbox, env)
		case req := <-w.backupReq:
			pendingBackups = append(pendingBackups, req)
		case req := <-w.stateReq:
			w.handleStateReq(req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingInbox, pendingBackups)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInbox = pendingInbox[:0]
			pendingBackups = pendingBackups[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering as the
// server loop. It is intended for tests and tools that drive the world
// without Run.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inbox []Envelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, inbox, nil)
	return tick
}

// step runs one tick. Requests are applied before the active task advances,
// so an undo that cancels an action wins over that action finishing in the
// same tick.
func (w *World) step(joins []JoinRequest, leaves []string, inbox []Envelope, backups []backupReq) {
	start := w.now()
	deadline := start.Add(w.cfg.TickBudget)
	tick := w.tick.Load()
	w.records = w.records[:0]
	w.edits = w.edits[:0]

	for _, id := range leaves {
		w.handleLeave(id)
	}
	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, env := range inbox {
		w.handleEnvelope(env)
	}
	w.handleBackupRequests(backups)

	w.arb.Tick(deadline)
	w.finishBackup()

	st := w.arb.State()
	elapsed := w.now().Sub(start)
	w.prom.stepSeconds.Observe(elapsed.Seconds())
	w.prom.ticks.Inc()
	if w.tickLogger != nil && (len(w.records) > 0 || st.Status != arbiter.StatusIdle) {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:     tick,
			Status:   string(st.Status),
			Percent:  st.Percent,
			Player:   st.Player,
			Requests: append([]RequestRecord(nil), w.records...),
			StepMS:   float64(elapsed.Microseconds()) / 1000,
		})
	}

	w.maybePeriodicSnapshot(tick)
	w.pruneDetached()
	w.broadcastObservers(tick, st)

	w.publishMetrics(elapsed)
	w.tick.Add(1)
}

// sendLatest delivers b, dropping the oldest queued message if the channel is
// full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// trySend never blocks; it reports whether b was queued.
func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
