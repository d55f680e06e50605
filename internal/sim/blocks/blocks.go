package blocks

// Block is one world cell: a palette id plus 4 bits of metadata.
type Block struct {
	ID   uint16
	Meta uint8
}

// Air is the empty block.
var Air = Block{}

func (b Block) IsAir() bool { return b.ID == 0 }

// Access is the host world's block interface. Implementations must treat
// out-of-range coordinates as air on read and ignore them on write.
type Access interface {
	GetBlock(x, y, z int) Block
	SetBlock(x, y, z int, b Block)
}

// NeighborNotifier is optionally implemented by an Access that wants to be told
// about cells adjacent to an edit (lighting, physics, client resync).
type NeighborNotifier interface {
	NotifyNeighbor(x, y, z int)
}

// Bounded is optionally implemented by an Access with a finite vertical range.
type Bounded interface {
	HeightRange() (minY, maxY int)
}
