package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/focusdrift/internal/drift"
	"github.com/banshee-data/focusdrift/internal/sharpness"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the physical constants, acquisition grid and data
// set selection for a focus-vs-temperature analysis. Fields are pointers so
// that a partial JSON file only overrides what it names; the Get* methods
// supply defaults for the rest.
type AnalysisConfig struct {
	// Drift model
	CalibrationUmPerC *float64 `json:"calibration_um_per_c,omitempty"`
	ReferenceLengthMM *float64 `json:"reference_length_mm,omitempty"`
	ReferenceIndex    *int     `json:"reference_index,omitempty"`
	ShiftConvention   *string  `json:"shift_convention,omitempty"` // "from_max" or "from_min"

	// Sharpness scoring
	SigmaPx  *float64 `json:"sigma_px,omitempty"`
	Truncate *float64 `json:"truncate,omitempty"`
	Workers  *int     `json:"workers,omitempty"`

	// Acquisition grid, half-open [start, stop)
	ZStartUm *float64 `json:"z_start_um,omitempty"`
	ZStopUm  *float64 `json:"z_stop_um,omitempty"`
	ZStepUm  *float64 `json:"z_step_um,omitempty"`
	TStartC  *float64 `json:"t_start_c,omitempty"`
	TStopC   *float64 `json:"t_stop_c,omitempty"`
	TStepC   *float64 `json:"t_step_c,omitempty"`

	// Data set
	DataCropped  *bool   `json:"data_cropped,omitempty"`
	DataDir      *string `json:"data_dir,omitempty"`
	MetadataFile *string `json:"metadata_file,omitempty"`
	CroppedDir   *string `json:"cropped_dir,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field set to its default.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		CalibrationUmPerC: ptrFloat64(drift.DefaultCalibrationUmPerC),
		ReferenceLengthMM: ptrFloat64(drift.DefaultReferenceLengthMM),
		ReferenceIndex:    ptrInt(0),
		ShiftConvention:   ptrString(string(drift.ShiftFromMax)),
		SigmaPx:           ptrFloat64(sharpness.DefaultSigma),
		Truncate:          ptrFloat64(sharpness.DefaultTruncate),
		Workers:           ptrInt(0),
		ZStartUm:          ptrFloat64(0),
		ZStopUm:           ptrFloat64(100),
		ZStepUm:           ptrFloat64(0.25),
		TStartC:           ptrFloat64(22),
		TStopC:            ptrFloat64(42),
		TStepC:            ptrFloat64(1),
		DataCropped:       ptrBool(true),
		DataDir:           ptrString("data"),
		MetadataFile:      ptrString("metadata.txt"),
		CroppedDir:        ptrString("data_cropped"),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories so it works from package test directories. Panics on failure.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/gen-zstack/
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *AnalysisConfig) Validate() error {
	if c.ReferenceLengthMM != nil && !(*c.ReferenceLengthMM > 0) {
		return fmt.Errorf("reference_length_mm must be positive, got %f", *c.ReferenceLengthMM)
	}
	if c.ReferenceIndex != nil && *c.ReferenceIndex < 0 {
		return fmt.Errorf("reference_index must be non-negative, got %d", *c.ReferenceIndex)
	}
	if c.ShiftConvention != nil && !drift.Convention(*c.ShiftConvention).Valid() {
		return fmt.Errorf("shift_convention must be %q or %q, got %q",
			drift.ShiftFromMax, drift.ShiftFromMin, *c.ShiftConvention)
	}
	if c.SigmaPx != nil && !(*c.SigmaPx > 0) {
		return fmt.Errorf("sigma_px must be positive, got %f", *c.SigmaPx)
	}
	if c.Truncate != nil && !(*c.Truncate > 0) {
		return fmt.Errorf("truncate must be positive, got %f", *c.Truncate)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.ZStepUm != nil && !(*c.ZStepUm > 0) {
		return fmt.Errorf("z_step_um must be positive, got %f", *c.ZStepUm)
	}
	if c.TStepC != nil && !(*c.TStepC > 0) {
		return fmt.Errorf("t_step_c must be positive, got %f", *c.TStepC)
	}
	if n := len(c.DepthGrid()); n == 0 {
		return fmt.Errorf("z grid [%g, %g) is empty", c.GetZStartUm(), c.GetZStopUm())
	}
	if n := len(c.Setpoints()); n == 0 {
		return fmt.Errorf("temperature grid [%g, %g) is empty", c.GetTStartC(), c.GetTStopC())
	}
	return nil
}

// GetCalibrationUmPerC returns the O2 drift calibration or the default.
func (c *AnalysisConfig) GetCalibrationUmPerC() float64 {
	if c.CalibrationUmPerC == nil {
		return drift.DefaultCalibrationUmPerC
	}
	return *c.CalibrationUmPerC
}

// GetReferenceLengthMM returns the objective length or the default.
func (c *AnalysisConfig) GetReferenceLengthMM() float64 {
	if c.ReferenceLengthMM == nil {
		return drift.DefaultReferenceLengthMM
	}
	return *c.ReferenceLengthMM
}

// GetReferenceIndex returns the baseline sample index or the default.
func (c *AnalysisConfig) GetReferenceIndex() int {
	if c.ReferenceIndex == nil {
		return 0
	}
	return *c.ReferenceIndex
}

// GetShiftConvention returns the shift convention or the default.
func (c *AnalysisConfig) GetShiftConvention() drift.Convention {
	if c.ShiftConvention == nil || *c.ShiftConvention == "" {
		return drift.ShiftFromMax
	}
	return drift.Convention(*c.ShiftConvention)
}

// GetSigmaPx returns the gradient smoothing scale or the default.
func (c *AnalysisConfig) GetSigmaPx() float64 {
	if c.SigmaPx == nil {
		return sharpness.DefaultSigma
	}
	return *c.SigmaPx
}

// GetTruncate returns the kernel truncation or the default.
func (c *AnalysisConfig) GetTruncate() float64 {
	if c.Truncate == nil {
		return sharpness.DefaultTruncate
	}
	return *c.Truncate
}

// GetWorkers returns the worker count; 0 means one per CPU.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetZStartUm returns the first stage depth or the default.
func (c *AnalysisConfig) GetZStartUm() float64 {
	if c.ZStartUm == nil {
		return 0
	}
	return *c.ZStartUm
}

// GetZStopUm returns the exclusive depth limit or the default.
func (c *AnalysisConfig) GetZStopUm() float64 {
	if c.ZStopUm == nil {
		return 100
	}
	return *c.ZStopUm
}

// GetZStepUm returns the depth step or the default.
func (c *AnalysisConfig) GetZStepUm() float64 {
	if c.ZStepUm == nil {
		return 0.25
	}
	return *c.ZStepUm
}

// GetTStartC returns the first temperature set-point or the default.
func (c *AnalysisConfig) GetTStartC() float64 {
	if c.TStartC == nil {
		return 22
	}
	return *c.TStartC
}

// GetTStopC returns the exclusive set-point limit or the default.
func (c *AnalysisConfig) GetTStopC() float64 {
	if c.TStopC == nil {
		return 42
	}
	return *c.TStopC
}

// GetTStepC returns the set-point step or the default.
func (c *AnalysisConfig) GetTStepC() float64 {
	if c.TStepC == nil {
		return 1
	}
	return *c.TStepC
}

// GetDataCropped reports whether the cropped data set is analysed.
func (c *AnalysisConfig) GetDataCropped() bool {
	if c.DataCropped == nil {
		return true
	}
	return *c.DataCropped
}

// GetDataDir returns the directory holding the full data set.
func (c *AnalysisConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "data"
	}
	return *c.DataDir
}

// GetMetadataFile returns the metadata file name inside the data directory.
func (c *AnalysisConfig) GetMetadataFile() string {
	if c.MetadataFile == nil || *c.MetadataFile == "" {
		return "metadata.txt"
	}
	return *c.MetadataFile
}

// GetCroppedDir returns the directory holding the cropped stacks.
func (c *AnalysisConfig) GetCroppedDir() string {
	if c.CroppedDir == nil || *c.CroppedDir == "" {
		return "data_cropped"
	}
	return *c.CroppedDir
}

// DepthGrid returns the stage depths in µm, one per slice.
func (c *AnalysisConfig) DepthGrid() []float64 {
	return Arange(c.GetZStartUm(), c.GetZStopUm(), c.GetZStepUm())
}

// Setpoints returns the nominal temperature set-points in °C.
func (c *AnalysisConfig) Setpoints() []float64 {
	return Arange(c.GetTStartC(), c.GetTStopC(), c.GetTStepC())
}

// DriftConfig returns the fitter constants.
func (c *AnalysisConfig) DriftConfig() drift.Config {
	return drift.Config{
		CalibrationUmPerC: c.GetCalibrationUmPerC(),
		ReferenceLengthMM: c.GetReferenceLengthMM(),
		ReferenceIndex:    c.GetReferenceIndex(),
		Convention:        c.GetShiftConvention(),
	}
}

// SharpnessOptions returns the scorer options.
func (c *AnalysisConfig) SharpnessOptions() sharpness.Options {
	return sharpness.Options{
		Sigma:    c.GetSigmaPx(),
		Truncate: c.GetTruncate(),
		Workers:  c.GetWorkers(),
	}
}

// Arange returns start, start+step, ... for values below stop. The count is
// ceil((stop-start)/step), computed once so accumulated rounding cannot add
// or drop an element.
func Arange(start, stop, step float64) []float64 {
	if !(step > 0) || !(stop > start) {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
