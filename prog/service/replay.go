package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prognos-io/prognos/prog"
)

// ReplayStats reports what a replayed telemetry file produced.
type ReplayStats struct {
	Rows     int
	Outcomes map[prog.TickOutcome]int
}

// Replay feeds a recorded telemetry CSV through a prognoser, one tick per
// row. The header's first column must be "t" (seconds, fractional allowed);
// every other column names a signal. Ticks that fail keep the replay going
// and are counted in the returned stats.
func Replay(path string, bus *prog.SignalBus, p *prog.Prognoser) (ReplayStats, error) {
	stats := ReplayStats{Outcomes: make(map[prog.TickOutcome]int)}

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("read replay header: %w", err)
	}
	if len(header) < 2 || header[0] != "t" {
		return stats, fmt.Errorf("replay header must start with \"t\" and name at least one signal, got %v", header)
	}
	signals := header[1:]

	for row := 1; ; row++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("replay row %d: %w", row, err)
		}

		sec, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return stats, fmt.Errorf("replay row %d: bad timestamp %q: %w", row, record[0], err)
		}
		at := time.Unix(0, int64(sec*float64(time.Second)))
		for i, signal := range signals {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return stats, fmt.Errorf("replay row %d: bad value %q for %s: %w", row, record[i+1], signal, err)
			}
			bus.Set(signal, v, at)
		}

		outcome, err := p.Tick()
		if err != nil {
			logrus.Debugf("replay row %d: tick failed: %v", row, err)
		}
		stats.Outcomes[outcome]++
		stats.Rows++
	}
	return stats, nil
}
