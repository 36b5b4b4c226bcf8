package prog

import (
	"fmt"
	"sync"
)

// Results is the shared store for one pipeline's prediction output: per event
// a fixed-size set of time-of-event samples, and per predicted output a
// samples-by-horizon trajectory. All storage is allocated once at
// construction; a prediction cycle replaces the contents in a single critical
// section so readers never observe a half-written cycle.
type Results struct {
	mu sync.RWMutex

	events  []string
	outputs []string

	numSamples int
	horizon    int

	toe  map[string][]float64
	traj map[string][][]float64

	cycles   uint64
	cycleAt  float64
	haveData bool
}

// NewResults allocates a store for the named events and predicted outputs.
func NewResults(events, outputs []string, numSamples, horizon int) (*Results, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("results store needs at least one event")
	}
	if numSamples <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", numSamples)
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	r := &Results{
		events:     append([]string(nil), events...),
		outputs:    append([]string(nil), outputs...),
		numSamples: numSamples,
		horizon:    horizon,
		toe:        make(map[string][]float64, len(events)),
		traj:       make(map[string][][]float64, len(outputs)),
	}
	for _, e := range events {
		r.toe[e] = make([]float64, numSamples)
	}
	for _, o := range outputs {
		rows := make([][]float64, numSamples)
		for i := range rows {
			rows[i] = make([]float64, horizon)
		}
		r.traj[o] = rows
	}
	return r, nil
}

// NumSamples returns the fixed per-event sample count.
func (r *Results) NumSamples() int { return r.numSamples }

// Horizon returns the fixed trajectory length in steps.
func (r *Results) Horizon() int { return r.horizon }

// EventNames returns the registered event names in registration order.
func (r *Results) EventNames() []string { return append([]string(nil), r.events...) }

// OutputNames returns the registered predicted output names in registration
// order.
func (r *Results) OutputNames() []string { return append([]string(nil), r.outputs...) }

// Commit publishes one completed prediction cycle. toe must hold exactly the
// registered events with numSamples values each; traj must hold exactly the
// registered outputs with numSamples rows of horizon values. The data is
// copied in under the write lock; the caller keeps ownership of its buffers.
func (r *Results) Commit(t float64, toe map[string][]float64, traj map[string][][]float64) error {
	if len(toe) != len(r.events) {
		return fmt.Errorf("commit has %d events, store registered %d", len(toe), len(r.events))
	}
	if len(traj) != len(r.outputs) {
		return fmt.Errorf("commit has %d trajectories, store registered %d", len(traj), len(r.outputs))
	}
	for _, e := range r.events {
		samples, ok := toe[e]
		if !ok {
			return fmt.Errorf("commit missing event %q", e)
		}
		if len(samples) != r.numSamples {
			return fmt.Errorf("event %q has %d samples, want %d", e, len(samples), r.numSamples)
		}
	}
	for _, o := range r.outputs {
		rows, ok := traj[o]
		if !ok {
			return fmt.Errorf("commit missing trajectory %q", o)
		}
		if len(rows) != r.numSamples {
			return fmt.Errorf("trajectory %q has %d rows, want %d", o, len(rows), r.numSamples)
		}
		for i, row := range rows {
			if len(row) != r.horizon {
				return fmt.Errorf("trajectory %q row %d has %d steps, want %d", o, i, len(row), r.horizon)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		copy(r.toe[e], toe[e])
	}
	for _, o := range r.outputs {
		dst := r.traj[o]
		for i, row := range traj[o] {
			copy(dst[i], row)
		}
	}
	r.cycles++
	r.cycleAt = t
	r.haveData = true
	return nil
}

// TimeOfEvent returns the latest time-of-event samples for the named event as
// a Samples UData. The payload is a snapshot copy.
func (r *Results) TimeOfEvent(event string) (UData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	samples, ok := r.toe[event]
	if !ok {
		return UData{}, fmt.Errorf("unknown event %q", event)
	}
	out := NewSamples(r.numSamples)
	copy(out.SampleSlice(), samples)
	return out, nil
}

// Trajectory returns a snapshot copy of the latest samples-by-horizon
// trajectory for the named predicted output.
func (r *Results) Trajectory(output string) ([][]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.traj[output]
	if !ok {
		return nil, fmt.Errorf("unknown predicted output %q", output)
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row...)
	}
	return out, nil
}

// Cycles returns how many prediction cycles have been committed.
func (r *Results) Cycles() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}

// CycleTime returns the pipeline-relative time of the latest committed cycle
// and whether any cycle has completed yet.
func (r *Results) CycleTime() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycleAt, r.haveData
}
