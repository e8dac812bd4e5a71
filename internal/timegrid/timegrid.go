// Package timegrid selects which historical timesteps a renderer samples.
package timegrid

import (
	"errors"
	"fmt"
	"iter"
)

// MaxHistoryLength is the deepest history a scene carries, in timesteps.
const MaxHistoryLength = 25

var (
	// ErrInvalidTimeGrid reports a negative or inverted start/stop or a
	// non-positive step.
	ErrInvalidTimeGrid = errors.New("timegrid: invalid time grid")
	// ErrHistoryTooLong reports a stop offset beyond MaxHistoryLength.
	ErrHistoryTooLong = errors.New("timegrid: maximum history depth exceeded")
)

// Grid describes a strided window into the past. Start and Stop are
// non-negative offsets counted back from the most recent timestep (0).
type Grid struct {
	Start int
	Stop  int
	Step  int
}

// New builds and validates a Grid.
func New(start, stop, step int) (Grid, error) {
	g := Grid{Start: start, Stop: stop, Step: step}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate checks the grid once, before any rendering.
func (g Grid) Validate() error {
	if g.Start < 0 {
		return fmt.Errorf("%w: start must be non-negative, got %d", ErrInvalidTimeGrid, g.Start)
	}
	if g.Stop < 0 {
		return fmt.Errorf("%w: stop must be non-negative, got %d", ErrInvalidTimeGrid, g.Stop)
	}
	if g.Start > g.Stop {
		return fmt.Errorf("%w: start (%d) must be less or equal to stop (%d)", ErrInvalidTimeGrid, g.Start, g.Stop)
	}
	if g.Step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidTimeGrid, g.Step)
	}
	if g.Stop+1 > MaxHistoryLength {
		return fmt.Errorf("%w: maximum history size is %d, set stop to %d or less",
			ErrHistoryTooLong, MaxHistoryLength, MaxHistoryLength-1)
	}
	return nil
}

// Offsets yields the negative history offsets -Stop-1, -Stop-1+Step, ...
// strictly below -Start, oldest first. -1 addresses the most recent frame.
// The sequence can be ranged over any number of times.
func (g Grid) Offsets() iter.Seq[int] {
	return func(yield func(int) bool) {
		if g.Step <= 0 {
			return
		}
		for off := -g.Stop - 1; off < -g.Start; off += g.Step {
			if !yield(off) {
				return
			}
		}
	}
}

// Indices collects Offsets into a slice.
func (g Grid) Indices() []int {
	out := make([]int, 0, g.Len())
	for off := range g.Offsets() {
		out = append(out, off)
	}
	return out
}

// Len is the number of sampled timesteps, ceil((Stop-Start+1)/Step).
func (g Grid) Len() int {
	if g.Step <= 0 || g.Start > g.Stop {
		return 0
	}
	span := g.Stop - g.Start + 1
	return (span + g.Step - 1) / g.Step
}

func (g Grid) String() string {
	return fmt.Sprintf("{start:%d stop:%d step:%d}", g.Start, g.Stop, g.Step)
}
