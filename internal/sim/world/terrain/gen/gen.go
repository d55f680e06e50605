// Package gen produces deterministic layered terrain from a seed.
package gen

import "voxeledit.ai/internal/sim/blocks"

// Palette ids of generated blocks.
const (
	Air uint16 = iota
	Bedrock
	Stone
	Dirt
	Grass
	Sand
	Gravel
	Log
	Water
	CoalOre
	IronOre
)

var paletteNames = []string{"AIR", "BEDROCK", "STONE", "DIRT", "GRASS", "SAND", "GRAVEL", "LOG", "WATER", "COAL_ORE", "IRON_ORE"}

// BlockName returns the palette name of id, or "" when unknown.
func BlockName(id uint16) string {
	if int(id) < len(paletteNames) {
		return paletteNames[id]
	}
	return ""
}

// Palette lists block names by id.
func Palette() []string {
	return append([]string(nil), paletteNames...)
}

// BlockID is the inverse of BlockName.
func BlockID(name string) (uint16, bool) {
	for i, n := range paletteNames {
		if n == name {
			return uint16(i), true
		}
	}
	return 0, false
}

type Params struct {
	Seed            int64
	Height          int
	SeaLevel        int
	BiomeRegionSize int
	// OrePermille is the chance that a stone cell holds ore.
	OrePermille int
}

func FloorDiv(a, b int) int {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9))
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9))
}

type Biome uint8

const (
	Plains Biome = iota
	Forest
	Desert
)

func BiomeAt(seed int64, x, z, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	return Biome(Hash2(seed, FloorDiv(x, regionSize), FloorDiv(z, regionSize)) % 3)
}

// SurfaceAt is the y of the topmost solid cell of column (x,z). Heights are
// interpolated between 16-block lattice points so terrain rolls smoothly.
func (p Params) SurfaceAt(x, z int) int {
	const cell = 16
	gx, gz := FloorDiv(x, cell), FloorDiv(z, cell)
	fx, fz := Mod(x, cell), Mod(z, cell)
	h00 := p.lattice(gx, gz)
	h10 := p.lattice(gx+1, gz)
	h01 := p.lattice(gx, gz+1)
	h11 := p.lattice(gx+1, gz+1)
	top := h00*(cell-fx) + h10*fx
	bot := h01*(cell-fx) + h11*fx
	h := (top*(cell-fz) + bot*fz) / (cell * cell)
	return min(max(h, 1), p.Height-1)
}

func (p Params) lattice(gx, gz int) int {
	spread := max(p.Height/8, 1)
	return p.SeaLevel - spread/2 + int(Hash2(p.Seed, gx, gz)%uint64(spread))
}

// Column fills col (len Height) with the generated blocks of (x,z).
func (p Params) Column(x, z int, col []blocks.Block) {
	surface := p.SurfaceAt(x, z)
	biome := BiomeAt(p.Seed, x, z, p.BiomeRegionSize)
	for y := range col {
		col[y] = p.cell(x, y, z, surface, biome)
	}
	if biome == Forest && surface+4 < p.Height && Hash2(p.Seed+7, x, z)%61 == 0 {
		for y := surface + 1; y <= surface+3; y++ {
			col[y] = blocks.Block{ID: Log}
		}
	}
}

func (p Params) cell(x, y, z, surface int, biome Biome) blocks.Block {
	switch {
	case y == 0:
		return blocks.Block{ID: Bedrock}
	case y > surface:
		if y <= p.SeaLevel {
			return blocks.Block{ID: Water}
		}
		return blocks.Air
	case y == surface:
		if biome == Desert || surface < p.SeaLevel {
			return blocks.Block{ID: Sand}
		}
		return blocks.Block{ID: Grass}
	case y >= surface-3:
		if biome == Desert {
			return blocks.Block{ID: Sand}
		}
		return blocks.Block{ID: Dirt}
	}
	roll := int(Hash3(p.Seed+101, x, y, z) % 1000)
	switch {
	case roll < p.OrePermille/3:
		return blocks.Block{ID: IronOre}
	case roll < p.OrePermille:
		return blocks.Block{ID: CoalOre}
	case roll < p.OrePermille+15:
		return blocks.Block{ID: Gravel}
	}
	return blocks.Block{ID: Stone}
}
