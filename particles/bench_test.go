package particles_test

import (
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/bparticles/influences"
	"github.com/pthm-cable/bparticles/particles"
)

// Benchmark one step over 50k particles under gravity, drag and a rarely
// firing age event, inline and across worker counts.
func BenchmarkSimulateStep(b *testing.B) {
	const count = 50000
	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			sim := particles.NewSimulator(particles.SimulatorOptions{Workers: workers, Seed: 1})
			defer sim.Close()
			state := particles.NewState(particles.StateOptions{})
			defer state.Release()

			fill := particles.NewStepDescription(0)
			fill.Type(0).AddEmitter(&influences.Point{Velocity: mgl32.Vec3{1, 0, 0}, Burst: count})
			if _, err := sim.SimulateStep(state, fill); err != nil {
				b.Fatal(err)
			}

			desc := particles.NewStepDescription(1.0 / 60)
			desc.Type(0).
				AddForce(influences.NewDirectional(mgl32.Vec3{0, 0, -9.8})).
				AddForce(&influences.Drag{Coefficient: 0.1}).
				AddEvent(influences.NewAgeReached(1e6), influences.NewMove(mgl32.Vec3{0, 1, 0}))

			b.ResetTimer()
			for n := 0; n < b.N; n++ {
				if _, err := sim.SimulateStep(state, desc); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
