// Package async models long world operations as cooperative, resumable tasks
// that run a bounded slice of work per call and report their progress.
package async

import "time"

// Token is the handle to an in-progress multi-tick operation.
//
// Continue does work until TimeToInterrupt reports true or the task finishes,
// and may be called again later to resume. Once Complete returns true it stays
// true, Fraction is 1 and further Continue calls do nothing.
type Token interface {
	Complete() bool
	Continue()
	SetInterrupt(Interrupt)
	TimeToInterrupt() bool
	// Fraction is in [0,1] and never decreases for the life of the token.
	Fraction() float64
}

// Abortable tokens can be asked to wind down early. After Abort the next
// Continue finishes the task without doing further world work.
type Abortable interface {
	Token
	Abort()
}

type Clock func() time.Time

type interruptKind uint8

const (
	interruptNever interruptKind = iota
	interruptImmediately
	interruptAt
)

// Interrupt is the deadline a task must honour.
type Interrupt struct {
	kind interruptKind
	at   time.Time
}

func Never() Interrupt       { return Interrupt{kind: interruptNever} }
func Immediately() Interrupt { return Interrupt{kind: interruptImmediately} }
func At(t time.Time) Interrupt {
	return Interrupt{kind: interruptAt, at: t}
}

// Due reports whether work must stop at now.
func (i Interrupt) Due(now time.Time) bool {
	switch i.kind {
	case interruptImmediately:
		return true
	case interruptAt:
		return !now.Before(i.at)
	default:
		return false
	}
}

func (i Interrupt) IsNever() bool { return i.kind == interruptNever }

// Budget carries the current interrupt of a task. Tasks embed it to get
// SetInterrupt and TimeToInterrupt.
type Budget struct {
	Clock     Clock
	interrupt Interrupt
}

func (b *Budget) SetInterrupt(i Interrupt) { b.interrupt = i }
func (b *Budget) Interrupt() Interrupt     { return b.interrupt }

func (b *Budget) TimeToInterrupt() bool {
	switch b.interrupt.kind {
	case interruptNever:
		return false
	case interruptImmediately:
		return true
	}
	now := time.Now
	if b.Clock != nil {
		now = b.Clock
	}
	return b.interrupt.Due(now())
}

type finished struct{ Budget }

func (finished) Complete() bool    { return true }
func (finished) Continue()         {}
func (finished) Fraction() float64 { return 1 }

// Finished returns a token that is already complete.
func Finished() Token { return &finished{} }

// RunToCompletion drives t with no deadline. Intended for tests and tools.
func RunToCompletion(t Token) {
	t.SetInterrupt(Never())
	for !t.Complete() {
		t.Continue()
	}
}
