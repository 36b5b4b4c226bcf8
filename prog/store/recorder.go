// Package store persists prognostic runs to SQLite: one row per run, one row
// per prediction cycle and event holding infinity-aware summary statistics,
// and the raw time-of-event samples behind each summary. The database keeps
// the history a dashboard or a post-run analysis needs.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/prognos-io/prognos/prog"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		model       TEXT NOT NULL,
		observer    TEXT NOT NULL,
		predictor   TEXT NOT NULL,
		seed        BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cycles (
		run_id   TEXT NOT NULL,
		cycle    BIGINT NOT NULL,
		t        DOUBLE NOT NULL,
		event    TEXT NOT NULL,
		samples  BIGINT NOT NULL,
		finite   BIGINT NOT NULL,
		mean     DOUBLE,
		sd       DOUBLE,
		min      DOUBLE,
		max      DOUBLE,
		p05      DOUBLE,
		p25      DOUBLE,
		median   DOUBLE,
		p75      DOUBLE,
		p95      DOUBLE,
		PRIMARY KEY (run_id, cycle, event),
		FOREIGN KEY(run_id) REFERENCES runs(id)
	);
	CREATE TABLE IF NOT EXISTS toe_samples (
		run_id   TEXT NOT NULL,
		cycle    BIGINT NOT NULL,
		event    TEXT NOT NULL,
		idx      BIGINT NOT NULL,
		value    DOUBLE,
		PRIMARY KEY (run_id, cycle, event, idx),
		FOREIGN KEY(run_id) REFERENCES runs(id)
	);
`

// RunMeta describes one pipeline run.
type RunMeta struct {
	Model     string
	Observer  string
	Predictor string
	Seed      int64
	StartedAt time.Time
}

// RunInfo is a run's identifier with its metadata.
type RunInfo struct {
	ID string
	RunMeta
}

// CycleRecord is one persisted prediction cycle for one event.
type CycleRecord struct {
	Cycle   uint64
	T       float64
	Event   string
	Summary prog.Summary
}

// Recorder owns the SQLite handle. Safe for concurrent use; database/sql
// serializes access.
type Recorder struct {
	db *sql.DB
}

// Open opens (or creates) the results database at path and ensures the
// schema exists.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// BeginRun registers a new run and returns its generated identifier.
func (r *Recorder) BeginRun(meta RunMeta) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO runs (id, started_at, model, observer, predictor, seed) VALUES (?, ?, ?, ?, ?, ?)`,
		id, meta.StartedAt.UTC().Format(time.RFC3339Nano), meta.Model, meta.Observer, meta.Predictor, meta.Seed,
	)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// Runs lists all recorded runs, oldest first.
func (r *Recorder) Runs() ([]RunInfo, error) {
	rows, err := r.db.Query(`SELECT id, started_at, model, observer, predictor, seed FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var started string
		if err := rows.Scan(&info.ID, &started, &info.Model, &info.Observer, &info.Predictor, &info.Seed); err != nil {
			return nil, fmt.Errorf("reading run row: %w", err)
		}
		if info.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s has a bad start time %q: %w", info.ID, started, err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// RecordCycle persists the summary of one prediction cycle for one event.
// Re-recording the same (run, cycle, event) replaces the previous row.
func (r *Recorder) RecordCycle(runID string, cycle uint64, t float64, event string, s prog.Summary) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO cycles
			(run_id, cycle, t, event, samples, finite, mean, sd, min, max, p05, p25, median, p75, p95)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(cycle), t, event, int64(s.Count), int64(s.Finite),
		nullable(s.Mean), nullable(s.SD), nullable(s.Min), nullable(s.Max),
		nullable(s.P05), nullable(s.P25), nullable(s.Median), nullable(s.P75), nullable(s.P95),
	)
	if err != nil {
		return fmt.Errorf("recording cycle %d: %w", cycle, err)
	}
	return nil
}

// RecordSamples persists the raw time-of-event samples of one prediction
// cycle for one event, in sample order. All rows go in one transaction;
// re-recording the same (run, cycle, event) replaces the previous samples.
func (r *Recorder) RecordSamples(runID string, cycle uint64, event string, samples []float64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("recording samples of cycle %d: %w", cycle, err)
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO toe_samples (run_id, cycle, event, idx, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("recording samples of cycle %d: %w", cycle, err)
	}
	defer stmt.Close()
	for i, v := range samples {
		if _, err := stmt.Exec(runID, int64(cycle), event, int64(i), nullableSample(v)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording sample %d of cycle %d: %w", i, cycle, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording samples of cycle %d: %w", cycle, err)
	}
	return nil
}

// RecordResults persists the latest committed cycle of res under runID: per
// event one summary row plus the raw time-of-event samples behind it.
func (r *Recorder) RecordResults(runID string, res *prog.Results) error {
	t, ok := res.CycleTime()
	if !ok {
		return fmt.Errorf("no prediction cycle committed yet")
	}
	cycle := res.Cycles()
	for _, event := range res.EventNames() {
		toe, err := res.TimeOfEvent(event)
		if err != nil {
			return err
		}
		samples := toe.SampleSlice()
		if err := r.RecordCycle(runID, cycle, t, event, prog.Summarize(samples)); err != nil {
			return err
		}
		if err := r.RecordSamples(runID, cycle, event, samples); err != nil {
			return err
		}
	}
	return nil
}

// Cycles returns the persisted records of one run and event, in cycle order.
func (r *Recorder) Cycles(runID, event string) ([]CycleRecord, error) {
	rows, err := r.db.Query(
		`SELECT cycle, t, event, samples, finite, mean, sd, min, max, p05, p25, median, p75, p95
			FROM cycles WHERE run_id = ? AND event = ? ORDER BY cycle`,
		runID, event,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var cycle, samples, finite int64
		var mean, sd, min, max, p05, p25, median, p75, p95 sql.NullFloat64
		if err := rows.Scan(&cycle, &rec.T, &rec.Event, &samples, &finite,
			&mean, &sd, &min, &max, &p05, &p25, &median, &p75, &p95); err != nil {
			return nil, fmt.Errorf("reading cycle row: %w", err)
		}
		rec.Cycle = uint64(cycle)
		rec.Summary = prog.Summary{
			Count:  int(samples),
			Finite: int(finite),
			Mean:   floatOrNaN(mean),
			SD:     floatOrNaN(sd),
			Min:    floatOrNaN(min),
			Max:    floatOrNaN(max),
			P05:    floatOrNaN(p05),
			P25:    floatOrNaN(p25),
			Median: floatOrNaN(median),
			P75:    floatOrNaN(p75),
			P95:    floatOrNaN(p95),
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Samples returns the persisted time-of-event samples of one cycle and
// event, in sample order. Censored realizations (no crossing within the
// horizon) come back as +Inf.
func (r *Recorder) Samples(runID string, cycle uint64, event string) ([]float64, error) {
	rows, err := r.db.Query(
		`SELECT value FROM toe_samples WHERE run_id = ? AND cycle = ? AND event = ? ORDER BY idx`,
		runID, int64(cycle), event,
	)
	if err != nil {
		return nil, fmt.Errorf("listing samples: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading sample row: %w", err)
		}
		if v.Valid {
			samples = append(samples, v.Float64)
		} else {
			samples = append(samples, math.Inf(1))
		}
	}
	return samples, rows.Err()
}

// nullable maps the NaN statistics of an all-censored summary to SQL NULL;
// SQLite has no NaN.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// nullableSample maps a censored time of event to SQL NULL; SQLite has no
// Inf.
func nullableSample(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
