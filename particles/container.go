package particles

import (
	"fmt"
)

// SlotRange is a run of freshly acquired slots inside one block.
type SlotRange struct {
	Block *Block
	Start int
	Len   int
}

// Container owns the blocks of one particle type.
type Container struct {
	schema        *Schema
	blockCapacity int
	maxBlocks     int // 0 = unlimited

	blocks []*Block
}

// NewContainer creates an empty container. maxBlocks limits growth; zero
// means no limit.
func NewContainer(schema *Schema, blockCapacity, maxBlocks int) *Container {
	if blockCapacity < 1 {
		blockCapacity = DefaultBlockCapacity
	}
	return &Container{
		schema:        schema,
		blockCapacity: blockCapacity,
		maxBlocks:     maxBlocks,
	}
}

// Schema returns the attribute layout shared by all blocks.
func (c *Container) Schema() *Schema { return c.schema }

// BlockCapacity returns the slot count of each block.
func (c *Container) BlockCapacity() int { return c.blockCapacity }

// Blocks returns every block, including empty ones.
func (c *Container) Blocks() []*Block { return c.blocks }

// ActiveBlocks returns the blocks holding at least one active particle.
func (c *Container) ActiveBlocks() []*Block {
	active := make([]*Block, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.active > 0 {
			active = append(active, b)
		}
	}
	return active
}

// CountActive returns the total number of active particles.
func (c *Container) CountActive() int {
	n := 0
	for _, b := range c.blocks {
		n += b.active
	}
	return n
}

// AcquireSlots activates n slots, filling free space in existing blocks before
// allocating new ones. New slots are zeroed. Nothing is claimed if the
// request cannot be satisfied.
func (c *Container) AcquireSlots(n int) ([]SlotRange, error) {
	if n <= 0 {
		return nil, nil
	}

	free := 0
	for _, b := range c.blocks {
		free += b.Unused()
	}
	if missing := n - free; missing > 0 {
		newBlocks := (missing + c.blockCapacity - 1) / c.blockCapacity
		if c.maxBlocks > 0 && len(c.blocks)+newBlocks > c.maxBlocks {
			return nil, fmt.Errorf("%w: %d particles need %d more blocks, limit is %d",
				ErrAllocationExhausted, n, newBlocks, c.maxBlocks)
		}
		for i := 0; i < newBlocks; i++ {
			b := newBlock(c.schema, c.blockCapacity)
			b.owner = c
			c.blocks = append(c.blocks, b)
		}
	}

	var ranges []SlotRange
	remaining := n
	for _, b := range c.blocks {
		if remaining == 0 {
			break
		}
		if b.IsFull() {
			continue
		}
		start, claimed := b.claim(remaining)
		ranges = append(ranges, SlotRange{Block: b, Start: start, Len: claimed})
		remaining -= claimed
	}
	return ranges, nil
}

// Kill removes the particle at index from block. It panics if the block was
// not allocated by c.
func (c *Container) Kill(block *Block, index int) {
	if block.owner != c {
		panic("particles: kill on a block of another container")
	}
	block.Kill(index)
}

// reset deactivates every particle but keeps the blocks for reuse.
func (c *Container) reset() {
	for _, b := range c.blocks {
		b.reset()
	}
}
