package particles

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Block is fixed-capacity columnar storage for one batch of particles.
// Active particles always occupy the leading ActiveAmount() slots; removal
// moves the last active particle into the freed slot.
type Block struct {
	schema   *Schema
	owner    *Container
	capacity int
	active   int

	floats  [][]float32
	float3s [][]mgl32.Vec3
}

func newBlock(schema *Schema, capacity int) *Block {
	b := &Block{
		schema:   schema,
		capacity: capacity,
		floats:   make([][]float32, schema.numFloat),
		float3s:  make([][]mgl32.Vec3, schema.numFloat3),
	}
	for i := range b.floats {
		b.floats[i] = make([]float32, capacity)
	}
	for i := range b.float3s {
		b.float3s[i] = make([]mgl32.Vec3, capacity)
	}
	return b
}

// Schema returns the attribute layout of the block.
func (b *Block) Schema() *Schema { return b.schema }

// Capacity returns the number of slots in the block.
func (b *Block) Capacity() int { return b.capacity }

// ActiveAmount returns the number of active particles.
func (b *Block) ActiveAmount() int { return b.active }

// Unused returns the number of free slots.
func (b *Block) Unused() int { return b.capacity - b.active }

// IsFull reports whether every slot is active.
func (b *Block) IsFull() bool { return b.active == b.capacity }

// IsEmpty reports whether no slot is active.
func (b *Block) IsEmpty() bool { return b.active == 0 }

// Positions returns the positions of the active particles.
func (b *Block) Positions() []mgl32.Vec3 { return b.float3s[positionColumn][:b.active] }

// Velocities returns the velocities of the active particles.
func (b *Block) Velocities() []mgl32.Vec3 { return b.float3s[velocityColumn][:b.active] }

// Ages returns the ages of the active particles in seconds.
func (b *Block) Ages() []float32 { return b.floats[ageColumn][:b.active] }

// Float returns the named scalar column of the active particles.
func (b *Block) Float(name string) ([]float32, error) {
	col, err := b.schema.column(name, AttributeFloat)
	if err != nil {
		return nil, err
	}
	return b.floats[col][:b.active], nil
}

// Float3 returns the named vector column of the active particles.
func (b *Block) Float3(name string) ([]mgl32.Vec3, error) {
	col, err := b.schema.column(name, AttributeFloat3)
	if err != nil {
		return nil, err
	}
	return b.float3s[col][:b.active], nil
}

// Kill removes the particle at index by moving the last active particle into
// its slot. Any index previously referring to the last particle now refers to
// nothing.
func (b *Block) Kill(index int) {
	if index < 0 || index >= b.active {
		panic("particles: kill index out of range")
	}
	last := b.active - 1
	if index != last {
		for _, col := range b.floats {
			col[index] = col[last]
		}
		for _, col := range b.float3s {
			col[index] = col[last]
		}
	}
	b.active--
}

// claim activates up to n free slots at the end of the active range, zeroes
// them and returns the first claimed index and the number claimed.
func (b *Block) claim(n int) (start, claimed int) {
	claimed = min(n, b.Unused())
	start = b.active
	end := start + claimed
	for _, col := range b.floats {
		clear(col[start:end])
	}
	for _, col := range b.float3s {
		clear(col[start:end])
	}
	b.active = end
	return start, claimed
}

// reset deactivates every slot.
func (b *Block) reset() { b.active = 0 }
