package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prognos-io/prognos/prog"
)

func writeReplayFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// TestReplayDrivesPipeline replays a short recording, including a duplicated
// timestamp that must be skipped, not re-estimated.
func TestReplayDrivesPipeline(t *testing.T) {
	// GIVEN a recording with four rows, one a duplicate timestamp
	path := writeReplayFile(t, `t,level,load
0,10,1
1,9.5,1
1,9.5,1
2.5,9,1
`)
	bus, p := newTankPipeline(t)

	// WHEN replaying it
	stats, err := Replay(path, bus, p)

	// THEN every row ticked once with the expected outcomes
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 1, stats.Outcomes[prog.TickInitialized])
	assert.Equal(t, 2, stats.Outcomes[prog.TickPredicted])
	assert.Equal(t, 1, stats.Outcomes[prog.TickSkipped])

	// AND pipeline time tracks the recording's fractional seconds
	assert.Equal(t, 2.5, p.LastTime())
	assert.EqualValues(t, 2, p.Results().Cycles())
}

func TestReplayRejectsBadInput(t *testing.T) {
	bus, p := newTankPipeline(t)

	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name:     "header must lead with time",
			contents: "level,load\n10,1\n",
			wantErr:  `must start with "t"`,
		},
		{
			name:     "unparseable timestamp",
			contents: "t,level,load\nnoon,10,1\n",
			wantErr:  "bad timestamp",
		},
		{
			name:     "unparseable value",
			contents: "t,level,load\n0,full,1\n",
			wantErr:  "bad value",
		},
		{
			name:     "ragged row",
			contents: "t,level,load\n0,10\n",
			wantErr:  "replay row 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeReplayFile(t, tt.contents)

			_, err := Replay(path, bus, p)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReplayMissingFile(t *testing.T) {
	bus, p := newTankPipeline(t)

	_, err := Replay(filepath.Join(t.TempDir(), "absent.csv"), bus, p)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "open replay file")
}

// TestReplayKeepsGoingPastFailedTicks removes no signals mid-file, so the
// only failure mode it can exercise is an error from the pipeline itself:
// here the bus never carries the load signal the pipeline wants.
func TestReplayKeepsGoingPastFailedTicks(t *testing.T) {
	// GIVEN a recording missing the pipeline's input signal
	path := writeReplayFile(t, `t,level
0,10
1,9.5
`)
	bus, p := newTankPipeline(t)

	// WHEN replaying it
	stats, err := Replay(path, bus, p)

	// THEN the replay finishes and every tick counts as failed
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 2, stats.Outcomes[prog.TickFailed])
	assert.False(t, p.Initialized())
}
