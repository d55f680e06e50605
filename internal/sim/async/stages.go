package async

import "fmt"

// belowComplete caps the reported progress of a task that has not finished yet.
const belowComplete = 1 - 1e-9

// Stages tracks a parent task's position in a fixed sequence of weighted stages
// and composes its progress from the active sub-task:
//
//	fraction = sum(weights of finished stages) + weight(current) * sub.Fraction()
//
// Weights are normalised to sum to 1. At most one sub-task is active.
type Stages struct {
	weights []float64
	idx     int
	base    float64
	sub     Token
	last    float64
}

func NewStages(weights ...float64) *Stages {
	if len(weights) == 0 {
		panic("async: no stages")
	}
	var sum float64
	for _, w := range weights {
		if w < 0 {
			panic(fmt.Sprintf("async: negative stage weight %v", w))
		}
		sum += w
	}
	if sum <= 0 {
		panic("async: stage weights sum to zero")
	}
	norm := make([]float64, len(weights))
	for i, w := range weights {
		norm[i] = w / sum
	}
	return &Stages{weights: norm}
}

// Index is the position of the current stage; it equals the number of stages
// once every stage has finished.
func (s *Stages) Index() int { return s.idx }

func (s *Stages) Done() bool { return s.idx >= len(s.weights) }

// Sub is the current stage's sub-task, or nil.
func (s *Stages) Sub() Token { return s.sub }

// Start installs the sub-task for the current stage.
func (s *Stages) Start(t Token) {
	if s.sub != nil && !s.sub.Complete() {
		panic("async: starting a sub-task while another is active")
	}
	s.sub = t
}

// Advance finishes the current stage and drops its sub-task.
func (s *Stages) Advance() {
	if s.Done() {
		return
	}
	s.base += s.weights[s.idx]
	s.idx++
	s.sub = nil
}

// Finish skips every remaining stage.
func (s *Stages) Finish() {
	for !s.Done() {
		s.Advance()
	}
}

// Fraction returns the composed progress. It reaches 1 only when complete is true.
func (s *Stages) Fraction(complete bool) float64 {
	if complete {
		s.last = 1
		return 1
	}
	v := s.base
	if !s.Done() && s.sub != nil {
		v += s.weights[s.idx] * s.sub.Fraction()
	}
	v = min(v, belowComplete)
	if v < s.last {
		v = s.last
	}
	s.last = v
	return v
}
