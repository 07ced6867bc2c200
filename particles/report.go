package particles

// TypeReport summarizes one type's part of a step.
type TypeReport struct {
	TypeID       uint32
	Emitted      int
	Triggered    []int // per event index
	Killed       int
	Active       int // after the step
	ActiveBlocks int
	Blocks       int
}

func (r *TypeReport) fill(c *Container) {
	r.Active = c.CountActive()
	r.ActiveBlocks = len(c.ActiveBlocks())
	r.Blocks = len(c.blocks)
}

// TotalTriggered returns the number of actions run for the type.
func (r TypeReport) TotalTriggered() int {
	n := 0
	for _, t := range r.Triggered {
		n += t
	}
	return n
}

// StepReport summarizes a step.
type StepReport struct {
	Duration float32
	Types    []TypeReport
}

// Active returns the number of particles alive after the step.
func (r StepReport) Active() int {
	n := 0
	for _, t := range r.Types {
		n += t.Active
	}
	return n
}

// Emitted returns the number of particles created during the step.
func (r StepReport) Emitted() int {
	n := 0
	for _, t := range r.Types {
		n += t.Emitted
	}
	return n
}

// Killed returns the number of particles removed during the step.
func (r StepReport) Killed() int {
	n := 0
	for _, t := range r.Types {
		n += t.Killed
	}
	return n
}
