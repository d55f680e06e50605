// Package edit turns player tool requests into staged, resumable world edits.
package edit

import (
	"errors"
	"fmt"
	"strings"

	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/fragment"
	"voxeledit.ai/internal/sim/voxel"
)

type Tool string

const (
	ToolCopy   Tool = "COPY"
	ToolMove   Tool = "MOVE"
	ToolDelete Tool = "DELETE"
	ToolPlace  Tool = "PLACE"
)

func ParseTool(s string) (Tool, error) {
	switch t := Tool(strings.ToUpper(strings.TrimSpace(s))); t {
	case ToolCopy, ToolMove, ToolDelete, ToolPlace:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// Setup failures. A task that fails setup completes without touching the world.
var (
	ErrUnknownTool    = errors.New("unknown tool")
	ErrNoSelection    = errors.New("no selection")
	ErrEmptySelection = errors.New("selection is empty")
	ErrTooLarge       = errors.New("placement does not fit")
	ErrOutOfWorld     = errors.New("placement outside the world")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrStaleUndo      = errors.New("undo target is not the most recent action")
)

// Request is one tool application.
type Request struct {
	Player string
	Seq    int64
	Tool   Tool

	// X, Y, Z is where the selection's [0,0,0] lands before orientation.
	X, Y, Z  int
	FlipX    bool
	Rotation int

	Selection *voxel.WithOrigin
	// Substrate, when set, supplies the blocks for PLACE.
	Substrate *fragment.Fragment
	// Block fills the selection for PLACE without a substrate.
	Block blocks.Block
}

func (r *Request) String() string {
	return fmt.Sprintf("%s seq=%d at=(%d,%d,%d) flip=%t rot=%d", r.Tool, r.Seq, r.X, r.Y, r.Z, r.FlipX, r.Rotation)
}

// Stage names the step a staged task is in.
type Stage uint8

const (
	StageSetup Stage = iota
	StageRead
	StageClear
	StageWrite
	StageUndo
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "SETUP"
	case StageRead:
		return "READ"
	case StageClear:
		return "CLEAR"
	case StageWrite:
		return "WRITE"
	case StageUndo:
		return "UNDO"
	case StageComplete:
		return "COMPLETE"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}
