package world

import (
	"time"

	"voxeledit.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	// TickBudget is how long the active edit may run in one tick.
	TickBudget     time.Duration
	StatusInterval time.Duration

	MaxUndoDepth     int
	MaxSelectionEdge int
	MaxPayloadBytes  int

	Height          int
	SeaLevel        int
	Seed            int64
	BoundaryR       int
	BiomeRegionSize int
	OrePermille     int

	// SnapshotEveryTicks enables periodic snapshots when a sink is set; 0 disables them.
	SnapshotEveryTicks int
	// BackupMinInterval throttles pre-edit snapshots.
	BackupMinInterval time.Duration
}

// ConfigFromTuning maps a loaded tuning file onto a world config.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		TickBudget:         time.Duration(t.TickBudgetMs) * time.Millisecond,
		StatusInterval:     time.Duration(t.StatusIntervalMs) * time.Millisecond,
		MaxUndoDepth:       t.MaxUndoDepth,
		MaxSelectionEdge:   t.MaxSelectionEdge,
		MaxPayloadBytes:    t.MaxPayloadBytes,
		Height:             t.WorldHeight,
		SeaLevel:           t.SeaLevel,
		Seed:               seed,
		BoundaryR:          t.WorldBoundaryR,
		BiomeRegionSize:    t.BiomeRegionSize,
		OrePermille:        t.OrePermille,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		BackupMinInterval:  time.Duration(t.BackupMinIntervalS) * time.Second,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.TickBudget <= 0 {
		c.TickBudget = 25 * time.Millisecond
	}
	if limit := time.Second / time.Duration(c.TickRateHz); c.TickBudget > limit {
		c.TickBudget = limit
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = time.Second
	}
	if c.MaxUndoDepth <= 0 {
		c.MaxUndoDepth = 5
	}
	if c.MaxSelectionEdge <= 0 {
		c.MaxSelectionEdge = 256
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 8 << 20
	}
	if c.Height <= 0 {
		c.Height = 128
	}
	if c.SeaLevel <= 0 || c.SeaLevel >= c.Height {
		c.SeaLevel = c.Height / 2
	}
	if c.BiomeRegionSize <= 0 {
		c.BiomeRegionSize = 64
	}
	if c.OrePermille < 0 {
		c.OrePermille = 0
	}
	if c.BackupMinInterval < 0 {
		c.BackupMinInterval = 0
	}
}
