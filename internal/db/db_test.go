package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/focusdrift/internal/acquisition"
	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/banshee-data/focusdrift/internal/drift"
	"github.com/banshee-data/focusdrift/internal/timeutil"
	"github.com/banshee-data/focusdrift/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// testResult builds a run whose focal depths rise 0.25 µm per 5 °C.
func testResult(t *testing.T, dataSet string, temps ...float64) *analysis.Result {
	t.Helper()
	res := &analysis.Result{DataSet: dataSet}
	for i, temp := range temps {
		res.Samples = append(res.Samples, analysis.SampleResult{
			Sample: acquisition.TemperatureSample{
				Setpoint:  temp,
				Primary:   [2]float64{temp, temp + 0.2},
				Secondary: [2]float64{21 + float64(i), 21 + float64(i)},
			},
			Estimate: drift.FocalEstimate{Index: i, Depth: 0.25 * float64(i)},
		})
	}
	fit, err := drift.Analyze(res.Observations(), drift.DefaultConfig())
	require.NoError(t, err)
	res.Drift = fit
	for i := range res.Samples {
		res.Samples[i].Estimate = fit.Estimates[i]
	}
	return res
}

func TestRecordRun_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	res := testResult(t, "cropped", 20, 25, 30)

	id, err := db.RecordRun(res)
	require.NoError(t, err)
	require.Len(t, id, 36)

	run, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, "cropped", run.DataSet)
	assert.Equal(t, 3, run.SampleCount)
	assert.Equal(t, drift.DefaultCalibrationUmPerC, run.CalibrationUmPerC)
	assert.Equal(t, drift.DefaultReferenceLengthMM, run.ReferenceLengthMM)
	assert.Equal(t, "from_max", run.ShiftConvention)
	assert.Equal(t, res.Drift.Fit.Slope, run.SlopeUmPerC)
	assert.Equal(t, res.Drift.Fit.Intercept, run.InterceptUm)
	assert.Equal(t, res.Drift.Fit.CLTE, run.CLTEPerK)
	assert.Equal(t, version.Version, run.Version)
	require.NotNil(t, run.SlopeStdErr)
	assert.InDelta(t, res.Drift.Fit.SlopeStdErr, *run.SlopeStdErr, 1e-12)
	assert.False(t, run.CreatedAt.IsZero())

	rows, err := db.FocalEstimates(id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		e := res.Samples[i].Estimate
		assert.Equal(t, i, r.SampleIndex)
		assert.Equal(t, e.Index, r.FocalIndex)
		assert.Equal(t, e.Depth, r.FocalDepthUm)
		assert.Equal(t, e.KnownDrift, r.KnownDriftUm)
		assert.Equal(t, e.CorrectedDepth, r.CorrectedDepthUm)
		assert.Equal(t, res.Drift.Series.CorrectedShift[i], r.CorrectedShiftUm)
		assert.InDelta(t, res.Samples[i].Sample.Actual(), r.ActualC, 1e-12)
	}
}

func TestRecordRun_TwoSamplesHasNoStdErr(t *testing.T) {
	db := setupTestDB(t)

	id, err := db.RecordRun(testResult(t, "full", 20, 30))
	require.NoError(t, err)

	run, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Nil(t, run.SlopeStdErr)
}

func TestRecordRun_Nil(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.RecordRun(nil)
	assert.Error(t, err)
}

func TestRuns_OrderAndFilter(t *testing.T) {
	db := setupTestDB(t)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	clock.AutoAdvance(time.Minute)
	db.Clock = clock

	var ids []string
	for _, set := range []string{"cropped", "full", "cropped"} {
		id, err := db.RecordRun(testResult(t, set, 20, 25, 30))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := db.Runs("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].RunID, all[1].RunID, all[2].RunID})
	assert.True(t, all[2].CreatedAt.Equal(start))
	assert.True(t, all[0].CreatedAt.Equal(start.Add(2*time.Minute)))

	cropped, err := db.Runs("cropped", 0)
	require.NoError(t, err)
	require.Len(t, cropped, 2)
	assert.Equal(t, ids[2], cropped[0].RunID)

	latest, err := db.Runs("", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, ids[2], latest[0].RunID)
}

func TestDeleteRun_Cascades(t *testing.T) {
	db := setupTestDB(t)

	id, err := db.RecordRun(testResult(t, "cropped", 20, 25, 30))
	require.NoError(t, err)
	require.NoError(t, db.DeleteRun(id))

	_, err = db.GetRun(id)
	assert.ErrorIs(t, err, ErrRunNotFound)

	rows, err := db.FocalEstimates(id)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.ErrorIs(t, db.DeleteRun(id), ErrRunNotFound)
}

func TestOpenDB_ForeignKeysOn(t *testing.T) {
	db := setupTestDB(t)

	var on int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)

	_, err := db.Exec(`INSERT INTO focal_estimates (run_id, sample_index, setpoint_c, actual_c, actual_o2_c,
		focal_index, focal_depth_um, known_drift_um, corrected_depth_um, corrected_shift_um)
		VALUES ('missing', 0, 0, 0, 0, 0, 0, 0, 0, 0)`)
	assert.Error(t, err)
}
