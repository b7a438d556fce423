// Package db stores the scalar results of analysis runs in SQLite so that
// repeated studies of the same objective can be compared.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/banshee-data/focusdrift/internal/timeutil"
	"github.com/banshee-data/focusdrift/internal/version"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID has no stored row.
var ErrRunNotFound = errors.New("analysis run not found")

type DB struct {
	*sql.DB
	// Clock stamps recorded runs.
	Clock timeutil.Clock
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database at path and applies connection pragmas without
// touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection; keep a single one so they stick.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, Clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(Migrations()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// AnalysisRun is the stored summary of one analysis run.
type AnalysisRun struct {
	RunID             string
	CreatedAt         time.Time
	DataSet           string
	CalibrationUmPerC float64
	ReferenceLengthMM float64
	ReferenceIndex    int
	ShiftConvention   string
	SlopeUmPerC       float64
	InterceptUm       float64
	CLTEPerK          float64
	RSquared          float64
	// SlopeStdErr is nil when the fit had too few samples to estimate it.
	SlopeStdErr *float64
	SampleCount int
	Version     string
	GitSHA      string
}

// FocalEstimateRow is the stored per-sample outcome of a run.
type FocalEstimateRow struct {
	RunID            string
	SampleIndex      int
	SetpointC        float64
	ActualC          float64
	ActualO2C        float64
	FocalIndex       int
	FocalDepthUm     float64
	KnownDriftUm     float64
	CorrectedDepthUm float64
	CorrectedShiftUm float64
}

func nullableFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// RecordRun stores res and its per-sample estimates in one transaction and
// returns the new run ID.
func (db *DB) RecordRun(res *analysis.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("nil analysis result")
	}
	runID := uuid.NewString()
	fit := res.Drift.Fit
	cfg := res.Drift.Config

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO analysis_runs (
			run_id, created_unix_nanos, data_set, calibration_um_per_c, reference_length_mm,
			reference_index, shift_convention, slope_um_per_c, intercept_um, clte_per_k,
			r_squared, slope_stderr, sample_count, version, git_sha
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, db.Clock.Now().UnixNano(), res.DataSet, cfg.CalibrationUmPerC, cfg.ReferenceLengthMM,
		cfg.ReferenceIndex, string(cfg.Convention), fit.Slope, fit.Intercept, fit.CLTE,
		fit.RSquared, nullableFloat(fit.SlopeStdErr), fit.N, version.Version, version.GitSHA,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO focal_estimates (
			run_id, sample_index, setpoint_c, actual_c, actual_o2_c, focal_index,
			focal_depth_um, known_drift_um, corrected_depth_um, corrected_shift_um
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, s := range res.Samples {
		e := s.Estimate
		var shift float64
		if i < len(res.Drift.Series.CorrectedShift) {
			shift = res.Drift.Series.CorrectedShift[i]
		}
		if _, err := stmt.Exec(runID, i, s.Sample.Setpoint, s.Sample.Actual(), s.Sample.ActualSecondary(),
			e.Index, e.Depth, e.KnownDrift, e.CorrectedDepth, shift); err != nil {
			return "", fmt.Errorf("failed to insert estimate %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

const runColumns = `run_id, created_unix_nanos, data_set, calibration_um_per_c, reference_length_mm,
	reference_index, shift_convention, slope_um_per_c, intercept_um, clte_per_k,
	r_squared, slope_stderr, sample_count, version, git_sha`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (AnalysisRun, error) {
	var r AnalysisRun
	var created int64
	var stderr sql.NullFloat64
	err := row.Scan(&r.RunID, &created, &r.DataSet, &r.CalibrationUmPerC, &r.ReferenceLengthMM,
		&r.ReferenceIndex, &r.ShiftConvention, &r.SlopeUmPerC, &r.InterceptUm, &r.CLTEPerK,
		&r.RSquared, &stderr, &r.SampleCount, &r.Version, &r.GitSHA)
	if err != nil {
		return AnalysisRun{}, err
	}
	r.CreatedAt = time.Unix(0, created)
	if stderr.Valid {
		v := stderr.Float64
		r.SlopeStdErr = &v
	}
	return r, nil
}

// Runs returns stored runs, newest first. A dataSet of "" matches every data
// set; limit <= 0 returns all rows.
func (db *DB) Runs(dataSet string, limit int) ([]AnalysisRun, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs`
	var args []any
	if dataSet != "" {
		query += ` WHERE data_set = ?`
		args = append(args, dataSet)
	}
	query += ` ORDER BY created_unix_nanos DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID.
func (db *DB) GetRun(runID string) (*AnalysisRun, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FocalEstimates returns the per-sample rows of a run in sample order.
func (db *DB) FocalEstimates(runID string) ([]FocalEstimateRow, error) {
	rows, err := db.Query(`SELECT run_id, sample_index, setpoint_c, actual_c, actual_o2_c, focal_index,
			focal_depth_um, known_drift_um, corrected_depth_um, corrected_shift_um
		FROM focal_estimates WHERE run_id = ? ORDER BY sample_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FocalEstimateRow
	for rows.Next() {
		var r FocalEstimateRow
		if err := rows.Scan(&r.RunID, &r.SampleIndex, &r.SetpointC, &r.ActualC, &r.ActualO2C, &r.FocalIndex,
			&r.FocalDepthUm, &r.KnownDriftUm, &r.CorrectedDepthUm, &r.CorrectedShiftUm); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its estimates.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM analysis_runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return nil
}
