package edit

import (
	"fmt"

	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/fragment"
	"voxeledit.ai/internal/sim/history"
	"voxeledit.ai/internal/sim/orient"
	"voxeledit.ai/internal/sim/voxel"
)

// Relative durations of SETUP, READ, CLEAR and WRITE.
var placementWeights = []float64{0.05, 0.30, 0.15, 0.50}

// Placement is the staged task behind COPY, MOVE, DELETE and PLACE:
// SETUP -> READ -> CLEAR -> WRITE -> COMPLETE. Stages a tool does not need are
// skipped. Every write goes through the history so the action can be undone.
type Placement struct {
	async.Budget

	req    Request
	world  blocks.Access
	hist   *history.History
	stages *async.Stages
	stage  Stage

	quad       *orient.Quad
	tx, ty, tz int
	src        *fragment.Fragment
	read       *fragment.ReadTask
	rec        *history.Recorder
	clearSel   *voxel.Selection
	clear      *history.RecordedWrite
	write      *history.RecordedWrite

	setupDone bool
	err       error
	aborted   bool
	recorded  bool
	fin       bool
}

func NewPlacement(req Request, world blocks.Access, hist *history.History, clock async.Clock) *Placement {
	return &Placement{
		Budget: async.Budget{Clock: clock},
		req:    req,
		world:  world,
		hist:   hist,
		stages: async.NewStages(placementWeights...),
		stage:  StageSetup,
	}
}

func (p *Placement) Request() *Request { return &p.req }
func (p *Placement) Stage() Stage      { return p.stage }

// Err is the setup failure, if any.
func (p *Placement) Err() error { return p.err }

// Aborted reports whether the task was cut short by Abort.
func (p *Placement) Aborted() bool { return p.aborted }

// Recorded reports whether the action left an entry in the history.
func (p *Placement) Recorded() bool { return p.recorded }

// Written is the number of cells changed by the main write.
func (p *Placement) Written() int {
	if p.write == nil {
		return 0
	}
	return p.write.Written()
}

func (p *Placement) Complete() bool { return p.fin }

func (p *Placement) Fraction() float64 { return p.stages.Fraction(p.fin) }

// Abort winds the task down. Writes already in progress stop at their current
// cell and what they changed stays recorded, so the action can still be undone.
func (p *Placement) Abort() {
	if p.fin {
		return
	}
	p.aborted = true
	if p.clear != nil {
		p.clear.Abort()
	}
	if p.write != nil {
		p.write.Abort()
	}
}

// Setup validates the request and prepares the first stage. It runs at most
// once; Continue calls it when the caller has not.
func (p *Placement) Setup() error {
	if p.setupDone {
		return p.err
	}
	p.setupDone = true
	if err := p.setup(); err != nil {
		p.err = err
		p.finish()
		return err
	}
	p.stages.Advance()
	p.stage = StageRead
	return nil
}

func (p *Placement) setup() error {
	r := &p.req
	var mask *voxel.Selection
	switch r.Tool {
	case ToolCopy, ToolMove, ToolDelete:
		if r.Selection == nil {
			return ErrNoSelection
		}
		mask = r.Selection.Selection
	case ToolPlace:
		switch {
		case r.Substrate != nil:
			mask = r.Substrate.Mask()
		case r.Selection != nil:
			mask = r.Selection.Selection
		default:
			return ErrNoSelection
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTool, r.Tool)
	}
	if mask.Empty() {
		return ErrEmptySelection
	}

	p.tx, p.ty, p.tz = r.X, r.Y, r.Z
	if r.Tool == ToolDelete {
		p.tx, p.ty, p.tz = r.Selection.Origin()
	} else {
		p.quad = orient.NewTransformed(r.X, r.Z, mask.XSize(), mask.ZSize(), r.FlipX, r.Rotation)
		if _, _, err := mask.ReorientedCopyWithBorder(p.quad, voxel.MaxBorder); err != nil {
			return fmt.Errorf("%w: %v", ErrTooLarge, err)
		}
	}
	if b, ok := p.world.(blocks.Bounded); ok {
		minY, maxY := b.HeightRange()
		if p.ty < minY || p.ty+mask.YSize() > maxY {
			return fmt.Errorf("%w: y %d..%d not in [%d,%d)", ErrOutOfWorld, p.ty, p.ty+mask.YSize()-1, minY, maxY)
		}
	}

	switch r.Tool {
	case ToolCopy, ToolMove:
		wx, wy, wz := r.Selection.Origin()
		p.read = fragment.NewReadTask(p.world, mask, wx, wy, wz, p.Clock)
		p.stages.Start(p.read)
	case ToolDelete:
		p.src = fragment.Filled(mask, blocks.Air)
	case ToolPlace:
		if r.Substrate != nil {
			p.src = r.Substrate
		} else {
			p.src = fragment.Filled(mask, r.Block)
		}
	}
	p.rec = p.hist.Begin(r.Player, r.Seq)
	return nil
}

func (p *Placement) finish() {
	if p.rec != nil {
		p.recorded = p.rec.Commit()
	}
	p.stages.Finish()
	p.stage = StageComplete
	p.fin = true
}

func (p *Placement) Continue() {
	for !p.fin {
		if !p.aborted && p.TimeToInterrupt() {
			return
		}
		switch p.stage {
		case StageSetup:
			p.Setup()
		case StageRead:
			if !p.stepRead() {
				return
			}
		case StageClear:
			if !p.stepClear() {
				return
			}
		case StageWrite:
			if !p.stepWrite() {
				return
			}
		default:
			p.finish()
		}
	}
}

// Each step returns false when it yielded before finishing its stage.

func (p *Placement) stepRead() bool {
	if p.read == nil {
		p.stages.Advance()
		p.stage = StageClear
		return true
	}
	if p.aborted {
		p.finish()
		return true
	}
	p.read.SetInterrupt(p.Interrupt())
	p.read.Continue()
	if !p.read.Complete() {
		return false
	}
	p.src = p.read.Fragment()
	p.stages.Advance()
	p.stage = StageClear
	return true
}

func (p *Placement) stepClear() bool {
	if p.clear == nil {
		if p.aborted {
			p.finish()
			return true
		}
		if p.req.Tool != ToolMove {
			p.stages.Advance()
			p.stage = StageWrite
			return true
		}
		p.clearSel = p.vacated()
		if p.clearSel.Empty() {
			p.stages.Advance()
			p.stage = StageWrite
			return true
		}
		sx, sy, sz := p.req.Selection.Origin()
		w, err := p.rec.Write(p.world, fragment.Filled(p.clearSel, blocks.Air), sx, sy, sz, nil)
		if err != nil {
			panic(fmt.Sprintf("edit: clearing source: %v", err))
		}
		p.clear = w
		p.stages.Start(w)
	}
	p.clear.SetInterrupt(p.Interrupt())
	p.clear.Continue()
	if !p.clear.Complete() {
		return false
	}
	if p.aborted {
		p.finish()
		return true
	}
	p.stages.Advance()
	p.stage = StageWrite
	return true
}

// vacated is the part of the source selection the destination does not cover.
func (p *Placement) vacated() *voxel.Selection {
	sel := p.req.Selection
	dest, reo, err := sel.ReorientedCopyWithBorder(p.quad, 0)
	if err != nil {
		panic(fmt.Sprintf("edit: reorienting selection: %v", err))
	}
	sx, sy, sz := sel.Origin()
	out := sel.Copy()
	out.SplitByMask(dest, p.tx+reo.DX-sx, p.ty+reo.DY-sy, p.tz+reo.DZ-sz)
	return out
}

func (p *Placement) stepWrite() bool {
	if p.write == nil {
		if p.aborted {
			p.finish()
			return true
		}
		w, err := p.rec.Write(p.world, p.src, p.tx, p.ty, p.tz, p.quad)
		if err != nil {
			panic(fmt.Sprintf("edit: writing fragment: %v", err))
		}
		p.write = w
		p.stages.Start(w)
	}
	p.write.SetInterrupt(p.Interrupt())
	p.write.Continue()
	if !p.write.Complete() {
		return false
	}
	p.finish()
	return true
}
