package acquisition

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/focusdrift/internal/fsutil"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// SyntheticStudy describes a generated acquisition with a known focal drift.
type SyntheticStudy struct {
	Setpoints []float64 // °C
	Depths    []float64 // µm
	Size      int       // slice edge length in pixels
	// FocusStartUm is the focal depth at the first set-point and
	// FocusUmPerC how far it moves per °C of stage temperature.
	FocusStartUm float64
	FocusUmPerC  float64
	// SecondaryStartC and SecondaryPerC set the recorded O2 temperatures.
	SecondaryStartC float64
	SecondaryPerC   float64
	Start           time.Time
}

// FocusDepth returns the focal depth the study places at set-point t.
func (s SyntheticStudy) FocusDepth(t float64) float64 {
	return s.FocusStartUm + s.FocusUmPerC*(t-s.Setpoints[0])
}

// Slice renders the image at depth z for a focal plane at focus. Vertical
// stripes lose contrast as 1/(1+|z-focus|/step).
func (s SyntheticStudy) Slice(z, focus float64) *mat.Dense {
	step := 1.0
	if len(s.Depths) > 1 {
		step = s.Depths[1] - s.Depths[0]
	}
	contrast := 1 / (1 + math.Abs(z-focus)/step)
	img := mat.NewDense(s.Size, s.Size, nil)
	for i := 0; i < s.Size; i++ {
		for j := 0; j < s.Size; j++ {
			v := 1.0
			if (j/4)%2 == 0 {
				v += contrast
			}
			img.Set(i, j, v)
		}
	}
	return img
}

// Samples returns the metadata records of the study. Filenames follow the
// full data set layout under dataDir.
func (s SyntheticStudy) Samples(dataDir string) []TemperatureSample {
	out := make([]TemperatureSample, len(s.Setpoints))
	for i, t := range s.Setpoints {
		o2 := s.SecondaryStartC + s.SecondaryPerC*(t-s.Setpoints[0])
		out[i] = TemperatureSample{
			Setpoint:  t,
			Date:      s.Start.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:04:05"),
			Filename:  fmt.Sprintf(`%s\%s.tif`, dataDir, CroppedStackName(t)),
			Primary:   [2]float64{t - 0.1, t + 0.1},
			Secondary: [2]float64{o2, o2},
		}
	}
	return out
}

// WriteStudy writes the metadata file, the cropped data set as one
// multi-page TIFF per set-point and the full data set as one slice directory
// per set-point.
func WriteStudy(fsys fsutil.FileSystem, root, dataDir, metadataFile, croppedDir string, s SyntheticStudy) error {
	samples := s.Samples(dataDir)

	var meta strings.Builder
	for _, smp := range samples {
		meta.WriteString(FormatMetadataLine(smp))
		meta.WriteByte('\n')
	}
	if err := fsys.MkdirAll(filepath.Join(root, dataDir), 0755); err != nil {
		return err
	}
	if err := fsys.WriteFile(filepath.Join(root, dataDir, metadataFile), []byte(meta.String()), 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	cropped := CroppedDataSource{Dir: filepath.Join(root, croppedDir)}
	if err := fsys.MkdirAll(cropped.Dir, 0755); err != nil {
		return err
	}

	for _, smp := range samples {
		focus := s.FocusDepth(smp.Setpoint)
		full := FullDataSource{Root: root}.StackPath(smp)
		dir := strings.TrimSuffix(full, filepath.Ext(full))
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return err
		}

		pages := make([]*image.Gray16, len(s.Depths))
		for j, z := range s.Depths {
			pages[j] = DenseToGray16(s.Slice(z, focus))
			var buf bytes.Buffer
			if err := tiff.Encode(&buf, pages[j], &tiff.Options{Compression: tiff.Deflate}); err != nil {
				return fmt.Errorf("encode slice %d: %w", j, err)
			}
			name := filepath.Join(dir, fmt.Sprintf("slice_%04d.tif", j))
			if err := fsys.WriteFile(name, buf.Bytes(), 0644); err != nil {
				return err
			}
		}

		var stack bytes.Buffer
		if err := EncodeTIFFPages(&stack, pages); err != nil {
			return fmt.Errorf("encode %.0fC stack: %w", smp.Setpoint, err)
		}
		if err := fsys.WriteFile(cropped.StackPath(smp), stack.Bytes(), 0644); err != nil {
			return err
		}
	}
	return nil
}
