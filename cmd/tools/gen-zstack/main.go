// Command gen-zstack writes a synthetic focus-vs-temperature acquisition
// (metadata file plus full and cropped TIFF z-stacks) with a known focal
// drift, for end-to-end checks of focusdrift.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/banshee-data/focusdrift/internal/acquisition"
	"github.com/banshee-data/focusdrift/internal/config"
	"github.com/banshee-data/focusdrift/internal/fsutil"
)

func main() {
	root := flag.String("root", "zstack-study", "output acquisition directory")
	configPath := flag.String("config", "", "analysis config JSON supplying the z and temperature grids")
	size := flag.Int("size", 64, "slice edge length in pixels")
	zStop := flag.Float64("z-stop", 10, "last depth (exclusive) in um, overrides config")
	focusStart := flag.Float64("focus-start", 2, "focal depth at the first set-point in um")
	focusPerC := flag.Float64("focus-per-c", 0.25, "focal drift in um per C")
	o2Start := flag.Float64("o2-start", 21, "O2 temperature at the first set-point in C")
	o2PerC := flag.Float64("o2-per-c", 0.1, "O2 temperature rise per C of stage temperature")
	flag.Parse()

	cfg := config.DefaultAnalysisConfig()
	if *configPath != "" {
		loaded, err := config.LoadAnalysisConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	cfg.ZStopUm = zStop
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid grid: %v", err)
	}

	study := acquisition.SyntheticStudy{
		Setpoints:       cfg.Setpoints(),
		Depths:          cfg.DepthGrid(),
		Size:            *size,
		FocusStartUm:    *focusStart,
		FocusUmPerC:     *focusPerC,
		SecondaryStartC: *o2Start,
		SecondaryPerC:   *o2PerC,
		Start:           time.Now().Truncate(time.Hour),
	}
	err := acquisition.WriteStudy(fsutil.OSFileSystem{}, *root,
		cfg.GetDataDir(), cfg.GetMetadataFile(), cfg.GetCroppedDir(), study)
	if err != nil {
		log.Fatalf("Failed to write study: %v", err)
	}
	log.Printf("✓ Created: %s (%d set-points x %d slices)", *root, len(study.Setpoints), len(study.Depths))
}
