package arbiter

import "fmt"

// ledger tracks one acknowledgement stream (actions or undos) of a player.
type ledger struct {
	name   string
	seq    int64
	state  AckState
	cached Ack
	has    bool
}

type verdict int

const (
	verdictNew verdict = iota
	verdictDuplicate
	verdictStale
)

func (l *ledger) classify(seq int64) verdict {
	switch {
	case seq <= 0:
		return verdictStale
	case l.has && seq == l.seq:
		return verdictDuplicate
	case seq <= l.seq:
		return verdictStale
	}
	return verdictNew
}

// record moves the stream to (seq, st). Sequence numbers never go back and a
// settled sequence number is never reopened; the only transition allowed on
// the same number is ACCEPTED -> COMPLETED.
func (l *ledger) record(seq int64, st AckState, a Ack) {
	if seq < l.seq {
		panic(fmt.Sprintf("arbiter: %s ack regressed from %d to %d", l.name, l.seq, seq))
	}
	if l.has && seq == l.seq && !(l.state == AckAccepted && st == AckCompleted) {
		panic(fmt.Sprintf("arbiter: %s ack %d cannot go from %s to %s", l.name, seq, l.state, st))
	}
	l.seq, l.state, l.cached, l.has = seq, st, a, true
}

func (l *ledger) inFlight(seq int64) bool {
	return l.has && l.seq == seq && l.state == AckAccepted
}
