// Package tuning loads the server's tuning.yaml.
package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz       int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	TickBudgetMs     int `yaml:"tick_budget_ms" json:"tick_budget_ms"`
	MaxUndoDepth     int `yaml:"max_undo_depth" json:"max_undo_depth"`
	StatusIntervalMs int `yaml:"status_interval_ms" json:"status_interval_ms"`
	MaxSelectionEdge int `yaml:"max_selection_edge" json:"max_selection_edge"`
	MaxPayloadBytes  int `yaml:"max_payload_bytes" json:"max_payload_bytes"`

	WorldHeight     int `yaml:"world_height" json:"world_height"`
	SeaLevel        int `yaml:"sea_level" json:"sea_level"`
	WorldBoundaryR  int `yaml:"world_boundary_r" json:"world_boundary_r"`
	BiomeRegionSize int `yaml:"biome_region_size" json:"biome_region_size"`
	OrePermille     int `yaml:"ore_permille" json:"ore_permille"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	BackupMinIntervalS int `yaml:"backup_min_interval_s" json:"backup_min_interval_s"`

	RateLimit RateLimit `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimit bounds inbound messages per connection.
type RateLimit struct {
	MessagesPerSecond float64 `yaml:"messages_per_second" json:"messages_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

func Defaults() Tuning {
	var t Tuning
	t.fillDefaults()
	return t
}

func (t *Tuning) fillDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz == 0 {
		t.TickRateHz = 20
	}
	if t.TickBudgetMs == 0 {
		t.TickBudgetMs = 25
	}
	if t.MaxUndoDepth == 0 {
		t.MaxUndoDepth = 5
	}
	if t.StatusIntervalMs == 0 {
		t.StatusIntervalMs = 1000
	}
	if t.MaxSelectionEdge == 0 {
		t.MaxSelectionEdge = 256
	}
	if t.MaxPayloadBytes == 0 {
		t.MaxPayloadBytes = 8 << 20
	}
	if t.WorldHeight == 0 {
		t.WorldHeight = 128
	}
	if t.SeaLevel == 0 {
		t.SeaLevel = t.WorldHeight / 2
	}
	if t.BiomeRegionSize == 0 {
		t.BiomeRegionSize = 64
	}
	if t.OrePermille == 0 {
		t.OrePermille = 12
	}
	if t.SnapshotEveryTicks == 0 {
		t.SnapshotEveryTicks = 6000
	}
	if t.BackupMinIntervalS == 0 {
		t.BackupMinIntervalS = 300
	}
	if t.RateLimit.MessagesPerSecond == 0 {
		t.RateLimit.MessagesPerSecond = 20
	}
	if t.RateLimit.Burst == 0 {
		t.RateLimit.Burst = 40
	}
}

// Validate rejects values the server cannot run with.
func (t Tuning) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(t.TickRateHz >= 1 && t.TickRateHz <= 1000, "tick_rate_hz %d not in [1,1000]", t.TickRateHz)
	check(t.TickBudgetMs >= 1, "tick_budget_ms %d must be positive", t.TickBudgetMs)
	if t.TickRateHz > 0 {
		check(t.TickBudgetMs <= 1000/t.TickRateHz, "tick_budget_ms %d exceeds the tick period", t.TickBudgetMs)
	}
	check(t.MaxUndoDepth >= 1 && t.MaxUndoDepth <= 100, "max_undo_depth %d not in [1,100]", t.MaxUndoDepth)
	check(t.StatusIntervalMs >= 50, "status_interval_ms %d below 50", t.StatusIntervalMs)
	check(t.MaxSelectionEdge >= 1 && t.MaxSelectionEdge <= 256, "max_selection_edge %d not in [1,256]", t.MaxSelectionEdge)
	check(t.MaxPayloadBytes >= 1024, "max_payload_bytes %d below 1024", t.MaxPayloadBytes)
	check(t.WorldHeight >= 16 && t.WorldHeight <= 1024, "world_height %d not in [16,1024]", t.WorldHeight)
	check(t.SeaLevel > 0 && t.SeaLevel < t.WorldHeight, "sea_level %d not inside the world", t.SeaLevel)
	check(t.WorldBoundaryR >= 0, "world_boundary_r %d is negative", t.WorldBoundaryR)
	check(t.OrePermille >= 0 && t.OrePermille <= 1000, "ore_permille %d not in [0,1000]", t.OrePermille)
	check(t.SnapshotEveryTicks >= 0, "snapshot_every_ticks %d is negative", t.SnapshotEveryTicks)
	check(t.RateLimit.MessagesPerSecond > 0, "rate_limit.messages_per_second must be positive")
	check(t.RateLimit.Burst >= 1, "rate_limit.burst must be at least 1")
	return errors.Join(errs...)
}

// Load reads path, fills unset fields with defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	var t Tuning
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	t.fillDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
