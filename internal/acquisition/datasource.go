package acquisition

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DataSource maps a temperature sample to the location of its depth stack.
type DataSource interface {
	StackPath(s TemperatureSample) string
	// Name identifies the data set in reports.
	Name() string
}

// FullDataSource resolves the filename recorded in the metadata, relative to
// Root. Backslash separators written by Windows acquisition hosts are
// accepted.
type FullDataSource struct {
	Root string
}

// StackPath returns the recorded stack location.
func (d FullDataSource) StackPath(s TemperatureSample) string {
	name := filepath.FromSlash(strings.ReplaceAll(s.Filename, `\`, "/"))
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Root, name)
}

// Name returns "full".
func (FullDataSource) Name() string { return "full" }

// CroppedDataSource ignores the recorded filename and reads the cropped
// stack named after the integer set-point, e.g. Dir/z_stack_22C.tif.
type CroppedDataSource struct {
	Dir string
}

// StackPath returns the cropped stack location for the sample's set-point.
func (d CroppedDataSource) StackPath(s TemperatureSample) string {
	return filepath.Join(d.Dir, CroppedStackName(s.Setpoint)+".tif")
}

// Name returns "cropped".
func (CroppedDataSource) Name() string { return "cropped" }

// CroppedStackName returns the stack name used for a set-point. Fractional
// set-points are truncated.
func CroppedStackName(setpoint float64) string {
	return fmt.Sprintf("z_stack_%dC", int(setpoint))
}

// NewDataSource selects the cropped or full data set.
func NewDataSource(cropped bool, dataRoot, croppedDir string) DataSource {
	if cropped {
		return CroppedDataSource{Dir: croppedDir}
	}
	return FullDataSource{Root: dataRoot}
}
