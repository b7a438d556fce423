// Package report renders analysis results: a console summary, a CSV table,
// a two-panel PNG figure and an interactive HTML page.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/banshee-data/focusdrift/internal/units"
)

// Title returns the figure title for the data set.
func Title(dataSet string) string {
	if dataSet == "cropped" {
		return "AMS-AGY_v2_focus_vs_temperature_data_cropped"
	}
	return "AMS-AGY_v2_focus_vs_temperature_data"
}

// depthConverter returns a function converting µm to unit.
func depthConverter(unit string) (func(float64) float64, error) {
	if !units.IsValidLength(unit) {
		return nil, fmt.Errorf("invalid depth unit %q (valid: %s)", unit, units.GetValidLengthUnitsString())
	}
	return func(v float64) float64 {
		out, _ := units.ConvertLength(v, units.UM, unit)
		return out
	}, nil
}

// Summary writes the per-sample table and fit result as text. Table depths
// are shown in depthUnit; the fit lines keep µm and °C.
func Summary(w io.Writer, res *analysis.Result, depthUnit, expansionUnit string) error {
	conv, err := depthConverter(depthUnit)
	if err != nil {
		return err
	}
	l := units.LengthLabel(depthUnit)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "setpoint(C)\ttemp(C)\tO2 temp(C)\tindex\tfocal(%[1]s)\tO2 drift(%[1]s)\tcorrected(%[1]s)\tshift(%[1]s)\n", l)
	for i, s := range res.Samples {
		e := s.Estimate
		fmt.Fprintf(tw, "%.1f\t%.2f\t%.2f\t%d\t%.4g\t%.4g\t%.4g\t%.4g\n",
			s.Sample.Setpoint, s.Sample.Actual(), s.Sample.ActualSecondary(),
			e.Index, conv(e.Depth), conv(e.KnownDrift), conv(e.CorrectedDepth), conv(res.Drift.Series.CorrectedShift[i]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fit := res.Drift.Fit
	clte := units.ConvertExpansion(fit.CLTE, expansionUnit)
	_, err = fmt.Fprintf(w,
		"\ndata set: %s (%d samples)\nO3_focal_plane_shift_umpC = %0.2f\nintercept_um = %0.3f\nr_squared = %0.4f\nO3_CLTE_pK = %0.3e (%s)\n",
		res.DataSet, fit.N, fit.Slope, fit.Intercept, fit.RSquared, clte, units.ExpansionLabel(expansionUnit))
	return err
}

// csvHeader lists the columns written by WriteCSV for a depth unit.
func csvHeader(depthUnit string) []string {
	return []string{
		"setpoint_c", "actual_c", "actual_o2_c", "focal_index", "focal_depth_" + depthUnit,
		"known_drift_" + depthUnit, "corrected_depth_" + depthUnit, "data_shift_" + depthUnit,
		"corrected_shift_" + depthUnit, "fitted_shift_" + depthUnit,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes one row per sample with depths in depthUnit.
func WriteCSV(w io.Writer, res *analysis.Result, depthUnit string) error {
	conv, err := depthConverter(depthUnit)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(depthUnit)); err != nil {
		return err
	}
	series := res.Drift.Series
	for i, s := range res.Samples {
		e := s.Estimate
		row := []string{
			formatFloat(s.Sample.Setpoint),
			formatFloat(s.Sample.Actual()),
			formatFloat(s.Sample.ActualSecondary()),
			strconv.Itoa(e.Index),
			formatFloat(conv(e.Depth)),
			formatFloat(conv(e.KnownDrift)),
			formatFloat(conv(e.CorrectedDepth)),
			formatFloat(conv(series.DataShift[i])),
			formatFloat(conv(series.CorrectedShift[i])),
			formatFloat(conv(series.FittedShift[i])),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
