package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prognos-io/prognos/prog"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := Open(filepath.Join(t.TempDir(), "prognos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestRecorder_OpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prognos.db")

	rec, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	rec, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, rec.Close())
}

func TestRecorder_RunRoundTrip(t *testing.T) {
	rec := openTestRecorder(t)

	meta := RunMeta{
		Model:     "Battery",
		Observer:  "UKF",
		Predictor: "MC",
		Seed:      42,
		StartedAt: time.Date(2024, 6, 1, 12, 30, 0, 123456789, time.UTC),
	}
	id, err := rec.BeginRun(meta)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := rec.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	want := RunInfo{ID: id, RunMeta: meta}
	if diff := cmp.Diff(want, runs[0]); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_RunIDsAreUnique(t *testing.T) {
	rec := openTestRecorder(t)
	meta := RunMeta{Model: "Battery", Observer: "PF", Predictor: "MC", StartedAt: time.Now()}

	a, err := rec.BeginRun(meta)
	require.NoError(t, err)
	b, err := rec.BeginRun(meta)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRecorder_CycleRoundTrip(t *testing.T) {
	rec := openTestRecorder(t)
	id, err := rec.BeginRun(RunMeta{Model: "Battery", Observer: "UKF", Predictor: "MC", StartedAt: time.Now()})
	require.NoError(t, err)

	samples := []float64{3000, 3100, 3200, 2900, math.Inf(1)}
	want := CycleRecord{Cycle: 3, T: 120.5, Event: "EOD", Summary: prog.Summarize(samples)}
	require.NoError(t, rec.RecordCycle(id, want.Cycle, want.T, want.Event, want.Summary))

	records, err := rec.Cycles(id, "EOD")
	require.NoError(t, err)
	require.Len(t, records, 1)
	if diff := cmp.Diff(want, records[0]); diff != "" {
		t.Errorf("cycle mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_AllCensoredCycleSurvivesAsNaN(t *testing.T) {
	// GIVEN a cycle where no realization crossed inside the horizon
	rec := openTestRecorder(t)
	id, err := rec.BeginRun(RunMeta{Model: "Battery", Observer: "UKF", Predictor: "MC", StartedAt: time.Now()})
	require.NoError(t, err)

	s := prog.Summarize([]float64{math.Inf(1), math.Inf(1)})
	require.NoError(t, rec.RecordCycle(id, 1, 10, "EOD", s))

	// THEN the NaN statistics survive the NULL round trip
	records, err := rec.Cycles(id, "EOD")
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[0].Summary
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 0, got.Finite)
	assert.True(t, math.IsNaN(got.Mean))
	assert.True(t, math.IsNaN(got.Median))
}

func TestRecorder_RecordResults(t *testing.T) {
	rec := openTestRecorder(t)
	id, err := rec.BeginRun(RunMeta{Model: "Battery", Observer: "UKF", Predictor: "MC", StartedAt: time.Now()})
	require.NoError(t, err)

	res, err := prog.NewResults([]string{"EOD"}, []string{"SOC"}, 3, 2)
	require.NoError(t, err)

	// Nothing to record before the first commit.
	assert.Error(t, rec.RecordResults(id, res))

	toe := map[string][]float64{"EOD": {100, 110, 120}}
	traj := map[string][][]float64{"SOC": {{1, 0.9}, {1, 0.8}, {1, 0.7}}}
	require.NoError(t, res.Commit(42, toe, traj))
	require.NoError(t, rec.RecordResults(id, res))

	records, err := rec.Cycles(id, "EOD")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(1), records[0].Cycle)
	assert.Equal(t, 42.0, records[0].T)
	assert.InDelta(t, 110.0, records[0].Summary.Mean, 1e-9)
	assert.Equal(t, 3, records[0].Summary.Count)

	// The raw samples land alongside the summary.
	samples, err := rec.Samples(id, 1, "EOD")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 110, 120}, samples)
}

func TestRecorder_SamplesRoundTrip(t *testing.T) {
	rec := openTestRecorder(t)
	id, err := rec.BeginRun(RunMeta{Model: "Battery", Observer: "UKF", Predictor: "MC", StartedAt: time.Now()})
	require.NoError(t, err)

	want := []float64{3000, math.Inf(1), 3200, 2900}
	require.NoError(t, rec.RecordSamples(id, 2, "EOD", want))

	got, err := rec.Samples(id, 2, "EOD")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}

	// Re-recording the same cycle replaces the previous samples.
	want = []float64{100, 200, math.Inf(1), 300}
	require.NoError(t, rec.RecordSamples(id, 2, "EOD", want))
	got, err = rec.Samples(id, 2, "EOD")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replaced sample mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_SamplesOfUnknownCycleIsEmpty(t *testing.T) {
	rec := openTestRecorder(t)
	samples, err := rec.Samples("no-such-run", 1, "EOD")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestRecorder_CyclesOfUnknownRunIsEmpty(t *testing.T) {
	rec := openTestRecorder(t)
	records, err := rec.Cycles("no-such-run", "EOD")
	require.NoError(t, err)
	assert.Empty(t, records)
}
