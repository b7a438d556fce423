// Command focusdrift measures the thermal focal-plane drift of an objective
// from z-stacks recorded at a series of stage temperatures.
//
// Usage:
//
//	focusdrift [flags]                 run the analysis in -root
//	focusdrift -db results.db migrate up|down|status|force N
//	focusdrift -db results.db runs [list [N] | show ID | delete ID]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/banshee-data/focusdrift/internal/acquisition"
	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/banshee-data/focusdrift/internal/config"
	"github.com/banshee-data/focusdrift/internal/db"
	"github.com/banshee-data/focusdrift/internal/drift"
	"github.com/banshee-data/focusdrift/internal/fsutil"
	"github.com/banshee-data/focusdrift/internal/report"
	"github.com/banshee-data/focusdrift/internal/timeutil"
	"github.com/banshee-data/focusdrift/internal/units"
	"github.com/banshee-data/focusdrift/internal/version"
)

// options are the parsed command-line settings.
type options struct {
	configPath    string
	root          string
	dataSet       string
	calibration   float64
	lengthMM      float64
	refIndex      int
	convention    string
	workers       int
	outDir        string
	writeCSV      bool
	writePNG      bool
	writeHTML     bool
	dbPath        string
	depthUnit     string
	expansionUnit string
	quiet         bool
	showVersion   bool
	// set records which flags were given explicitly.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("focusdrift", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "analysis config JSON file (defaults built in)")
	fs.StringVar(&o.root, "root", ".", "acquisition directory holding the data and cropped data folders")
	fs.StringVar(&o.dataSet, "data-set", "", "data set to analyse: cropped or full (overrides config)")
	fs.Float64Var(&o.calibration, "calibration", drift.DefaultCalibrationUmPerC, "O2 focal drift in um per C (overrides config)")
	fs.Float64Var(&o.lengthMM, "length-mm", drift.DefaultReferenceLengthMM, "O3 objective length in mm (overrides config)")
	fs.IntVar(&o.refIndex, "reference-index", 0, "sample defining zero O2 drift (overrides config)")
	fs.StringVar(&o.convention, "shift", string(drift.ShiftFromMax), "shift convention: from_max or from_min (overrides config)")
	fs.IntVar(&o.workers, "workers", 0, "stacks profiled in parallel, 0 for GOMAXPROCS (overrides config)")
	fs.StringVar(&o.outDir, "out", ".", "directory for report files")
	fs.BoolVar(&o.writeCSV, "csv", true, "write the per-sample CSV table")
	fs.BoolVar(&o.writePNG, "png", true, "write the two-panel PNG figure")
	fs.BoolVar(&o.writeHTML, "html", false, "write the interactive HTML charts")
	fs.StringVar(&o.dbPath, "db", "", "SQLite results database (empty to skip)")
	fs.StringVar(&o.depthUnit, "depth-unit", units.UM, "depth display unit in the table and CSV: "+units.GetValidLengthUnitsString())
	fs.StringVar(&o.expansionUnit, "expansion-unit", units.PerK, "CLTE display unit: per_k or ppm_per_k")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress per-sample log lines")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if !units.IsValidLength(o.depthUnit) {
		return nil, nil, fmt.Errorf("invalid -depth-unit %q (valid: %s)", o.depthUnit, units.GetValidLengthUnitsString())
	}
	if !units.IsValidExpansion(o.expansionUnit) {
		return nil, nil, fmt.Errorf("invalid -expansion-unit %q", o.expansionUnit)
	}
	if o.dataSet != "" && o.dataSet != "cropped" && o.dataSet != "full" {
		return nil, nil, fmt.Errorf("invalid -data-set %q (want cropped or full)", o.dataSet)
	}
	return o, fs.Args(), nil
}

// loadConfig merges the config file with explicit flag overrides.
func loadConfig(o *options) (*config.AnalysisConfig, error) {
	cfg := config.DefaultAnalysisConfig()
	if o.configPath != "" {
		loaded, err := config.LoadAnalysisConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.set["data-set"] {
		cropped := o.dataSet == "cropped"
		cfg.DataCropped = &cropped
	}
	if o.set["calibration"] {
		cfg.CalibrationUmPerC = &o.calibration
	}
	if o.set["length-mm"] {
		cfg.ReferenceLengthMM = &o.lengthMM
	}
	if o.set["reference-index"] {
		cfg.ReferenceIndex = &o.refIndex
	}
	if o.set["shift"] {
		cfg.ShiftConvention = &o.convention
	}
	if o.set["workers"] {
		cfg.Workers = &o.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildInputs reads the metadata file and wires the loader for cfg.
func buildInputs(fsys fsutil.FileSystem, root string, cfg *config.AnalysisConfig, quiet bool) (analysis.Inputs, error) {
	dataDir := filepath.Join(root, cfg.GetDataDir())
	metaPath := filepath.Join(dataDir, cfg.GetMetadataFile())
	f, err := fsys.Open(metaPath)
	if err != nil {
		return analysis.Inputs{}, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer f.Close()

	samples, err := acquisition.ParseMetadata(f, cfg.Setpoints())
	if err != nil {
		return analysis.Inputs{}, fmt.Errorf("%s: %w", metaPath, err)
	}

	loader := acquisition.NewLoader(cfg.DepthGrid())
	loader.FS = fsys
	return analysis.Inputs{
		Samples: samples,
		// Recorded filenames are relative to the acquisition root.
		Source:  acquisition.NewDataSource(cfg.GetDataCropped(), root, filepath.Join(root, cfg.GetCroppedDir())),
		Loader:  loader,
		Scoring: cfg.SharpnessOptions(),
		Drift:   cfg.DriftConfig(),
		Workers: cfg.GetWorkers(),
		Quiet:   quiet,
	}, nil
}

// writeReports writes the enabled report files and returns their paths.
func writeReports(fsys fsutil.FileSystem, o *options, res *analysis.Result) ([]string, error) {
	if err := fsys.MkdirAll(o.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	base := filepath.Join(o.outDir, report.Title(res.DataSet))
	var written []string

	writeFile := func(path string, render func(io.Writer) error) error {
		w, err := fsys.Create(path)
		if err != nil {
			return err
		}
		if err := render(w); err != nil {
			w.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if o.writeCSV {
		if err := writeFile(base+".csv", func(w io.Writer) error { return report.WriteCSV(w, res, o.depthUnit) }); err != nil {
			return written, err
		}
	}
	if o.writePNG {
		if err := report.SaveFigure(fsys, base+".png", res); err != nil {
			return written, err
		}
		written = append(written, base+".png")
	}
	if o.writeHTML {
		if err := writeFile(base+".html", func(w io.Writer) error { return report.RenderHTML(w, res) }); err != nil {
			return written, err
		}
	}
	return written, nil
}

// runCommand handles the results-database subcommands.
func runCommand(o *options, args []string, stdout io.Writer) error {
	switch args[0] {
	case "migrate", "runs":
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	if o.dbPath == "" {
		return fmt.Errorf("%s needs -db", args[0])
	}
	if args[0] == "migrate" {
		return db.RunMigrateCommand(args[1:], o.dbPath, stdout)
	}

	store, err := db.NewDB(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open results database: %w", err)
	}
	defer store.Close()
	return db.NewRunsCLI(store, o.dataSet, stdout).Run(args[1:])
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	if len(rest) > 0 {
		return runCommand(o, rest, stdout)
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	in, err := buildInputs(fsys, o.root, cfg, o.quiet)
	if err != nil {
		return err
	}
	log.Printf("analysing %d samples from the %s data set", len(in.Samples), in.Source.Name())

	clock := timeutil.RealClock{}
	started := clock.Now()
	res, err := analysis.Run(ctx, in)
	if err != nil {
		return err
	}
	log.Printf("analysis took %s", clock.Since(started).Round(time.Millisecond))

	if err := report.Summary(stdout, res, o.depthUnit, o.expansionUnit); err != nil {
		return err
	}

	written, err := writeReports(fsys, o, res)
	if err != nil {
		return err
	}
	for _, p := range written {
		log.Printf("wrote %s", p)
	}

	if o.dbPath != "" {
		store, err := db.NewDB(o.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open results database: %w", err)
		}
		defer store.Close()
		id, err := store.RecordRun(res)
		if err != nil {
			return err
		}
		log.Printf("recorded run %s in %s", id, o.dbPath)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("focusdrift: %v", err)
	}
}
