package async

import (
	"testing"
	"time"
)

type fakeToken struct {
	Budget
	frac float64
	done bool
}

func (f *fakeToken) Complete() bool    { return f.done }
func (f *fakeToken) Continue()         {}
func (f *fakeToken) Fraction() float64 { return f.frac }

func TestStages_ComposesWeightedProgress(t *testing.T) {
	s := NewStages(1, 3)
	sub := &fakeToken{}
	s.Start(sub)
	sub.frac = 0.5
	if got := s.Fraction(false); got != 0.125 {
		t.Fatalf("fraction = %v, want 0.125", got)
	}
	sub.done = true
	s.Advance()
	if got := s.Fraction(false); got != 0.25 {
		t.Fatalf("fraction after first stage = %v, want 0.25", got)
	}
	next := &fakeToken{frac: 0.5}
	s.Start(next)
	if got := s.Fraction(false); got != 0.625 {
		t.Fatalf("fraction = %v, want 0.625", got)
	}
}

func TestStages_NeverDecreasesAndOnlyCompleteReachesOne(t *testing.T) {
	s := NewStages(1)
	sub := &fakeToken{frac: 0.8}
	s.Start(sub)
	if got := s.Fraction(false); got != 0.8 {
		t.Fatalf("fraction = %v", got)
	}
	sub.frac = 0.2
	if got := s.Fraction(false); got != 0.8 {
		t.Fatalf("fraction went back to %v", got)
	}
	s.Finish()
	if got := s.Fraction(false); got >= 1 {
		t.Fatalf("unfinished task reported %v", got)
	}
	if got := s.Fraction(true); got != 1 {
		t.Fatalf("complete fraction = %v", got)
	}
	if !s.Done() || s.Index() != 1 {
		t.Fatalf("stages not done")
	}
}

func TestStages_StartWhileActivePanics(t *testing.T) {
	s := NewStages(1, 1)
	s.Start(&fakeToken{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	s.Start(&fakeToken{})
}

func TestBudget_Interrupts(t *testing.T) {
	now := time.Unix(100, 0)
	b := Budget{Clock: func() time.Time { return now }}
	if b.TimeToInterrupt() {
		t.Fatalf("zero interrupt must be never")
	}
	b.SetInterrupt(Immediately())
	if !b.TimeToInterrupt() {
		t.Fatalf("immediately must interrupt")
	}
	b.SetInterrupt(At(now.Add(time.Second)))
	if b.TimeToInterrupt() {
		t.Fatalf("deadline in the future must not interrupt")
	}
	now = now.Add(time.Second)
	if !b.TimeToInterrupt() {
		t.Fatalf("deadline reached must interrupt")
	}
}

func TestFinishedAndRunToCompletion(t *testing.T) {
	f := Finished()
	if !f.Complete() || f.Fraction() != 1 {
		t.Fatalf("finished token not complete")
	}
	RunToCompletion(f)
}
