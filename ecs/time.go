package ecs

import "time"

// Time is the resource the scheduler updates before every tick.
type Time struct {
	// Delta is the time step of the current tick in seconds.
	Delta float64
	// Elapsed is the sum of all deltas in seconds.
	Elapsed float64
	// Tick counts completed and in-progress scheduler ticks, starting at 1.
	Tick uint64
}

// DeltaDuration returns Delta as a time.Duration.
func (t Time) DeltaDuration() time.Duration {
	return time.Duration(t.Delta * float64(time.Second))
}

func (t *Time) advance(dt float64) {
	t.Delta = dt
	t.Elapsed += dt
	t.Tick++
}
