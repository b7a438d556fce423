package db

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

// RunsCLI lists, shows and deletes stored analysis runs for the
// `focusdrift runs` subcommand.
type RunsCLI struct {
	DB      *DB
	DataSet string    // filters List; empty lists every data set
	Output  io.Writer // where to write output
}

// NewRunsCLI creates a new RunsCLI instance.
func NewRunsCLI(db *DB, dataSet string, output io.Writer) *RunsCLI {
	return &RunsCLI{DB: db, DataSet: dataSet, Output: output}
}

// Run dispatches args: "list [N]" (the default), "show <run-id>" or
// "delete <run-id>".
func (c *RunsCLI) Run(args []string) error {
	if len(args) == 0 {
		_, err := c.List(0)
		return err
	}
	switch args[0] {
	case "list":
		limit := 0
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid run count %q", args[1])
			}
			limit = n
		}
		_, err := c.List(limit)
		return err
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: focusdrift runs show <run-id>")
		}
		return c.Show(args[1])
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: focusdrift runs delete <run-id>")
		}
		return c.Delete(args[1])
	case "help":
		c.PrintUsage()
		return nil
	default:
		c.PrintUsage()
		return fmt.Errorf("unknown runs action: %s", args[0])
	}
}

// List prints stored runs newest first, so the fitted slopes of repeated
// studies line up for comparison. limit <= 0 lists every run.
func (c *RunsCLI) List(limit int) ([]AnalysisRun, error) {
	runs, err := c.DB.Runs(c.DataSet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.Output, "No stored runs")
		return runs, nil
	}

	tw := tabwriter.NewWriter(c.Output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "run_id\tcreated\tdata_set\tsamples\tslope(um/C)\tCLTE(1/K)\tr_squared")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%0.4f\t%0.3e\t%0.4f\n",
			r.RunID, r.CreatedAt.UTC().Format(time.RFC3339), r.DataSet, r.SampleCount,
			r.SlopeUmPerC, r.CLTEPerK, r.RSquared)
	}
	return runs, tw.Flush()
}

// Show prints one run and its per-sample estimates.
func (c *RunsCLI) Show(runID string) error {
	run, err := c.DB.GetRun(runID)
	if err != nil {
		return err
	}
	rows, err := c.DB.FocalEstimates(runID)
	if err != nil {
		return fmt.Errorf("failed to read estimates: %w", err)
	}

	fmt.Fprintf(c.Output, "Run %s\n", run.RunID)
	fmt.Fprintf(c.Output, "  created:      %s\n", run.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(c.Output, "  data set:     %s\n", run.DataSet)
	fmt.Fprintf(c.Output, "  calibration:  %g um/C (reference sample %d, %s)\n",
		run.CalibrationUmPerC, run.ReferenceIndex, run.ShiftConvention)
	fmt.Fprintf(c.Output, "  length:       %g mm\n", run.ReferenceLengthMM)
	fmt.Fprintf(c.Output, "  slope:        %0.4f um/C", run.SlopeUmPerC)
	if run.SlopeStdErr != nil {
		fmt.Fprintf(c.Output, " ± %0.4f", *run.SlopeStdErr)
	}
	fmt.Fprintln(c.Output)
	fmt.Fprintf(c.Output, "  CLTE:         %0.3e 1/K\n", run.CLTEPerK)
	fmt.Fprintf(c.Output, "  version:      %s (%s)\n\n", run.Version, run.GitSHA)

	tw := tabwriter.NewWriter(c.Output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "sample\tsetpoint(C)\ttemp(C)\tindex\tfocal(um)\tcorrected(um)\tshift(um)")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%.1f\t%.2f\t%d\t%.2f\t%.2f\t%.2f\n",
			r.SampleIndex, r.SetpointC, r.ActualC, r.FocalIndex, r.FocalDepthUm, r.CorrectedDepthUm, r.CorrectedShiftUm)
	}
	return tw.Flush()
}

// Delete removes a run and its estimates.
func (c *RunsCLI) Delete(runID string) error {
	if err := c.DB.DeleteRun(runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	fmt.Fprintf(c.Output, "Deleted run %s\n", runID)
	return nil
}

// PrintUsage prints the runs subcommand usage.
func (c *RunsCLI) PrintUsage() {
	fmt.Fprintln(c.Output, "Usage: focusdrift -db results.db [-data-set cropped|full] runs <command>")
	fmt.Fprintln(c.Output, "")
	fmt.Fprintln(c.Output, "Commands:")
	fmt.Fprintln(c.Output, "  list [N]           List stored runs, newest first (default)")
	fmt.Fprintln(c.Output, "  show <run-id>      Show a run and its per-sample estimates")
	fmt.Fprintln(c.Output, "  delete <run-id>    Delete a run")
	fmt.Fprintln(c.Output, "")
}
