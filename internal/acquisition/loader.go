package acquisition

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/focusdrift/internal/fsutil"
	"github.com/banshee-data/focusdrift/internal/sharpness"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// ErrStackLength is returned when a stack's slice count differs from the
// depth grid.
var ErrStackLength = errors.New("stack length does not match depth grid")

// Loader reads depth stacks stored either as one multi-page TIFF or as a
// directory of per-slice images.
type Loader struct {
	FS fsutil.FileSystem
	// Depths is the stage depth of each slice in µm.
	Depths []float64
}

// NewLoader returns a Loader on the OS filesystem.
func NewLoader(depths []float64) *Loader {
	return &Loader{FS: fsutil.OSFileSystem{}, Depths: depths}
}

// IsSliceFile reports whether name has an image extension the loader decodes.
func IsSliceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff", ".png":
		return true
	}
	return false
}

func isTIFF(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// resolveDir accepts either the stack directory itself or a recorded stack
// filename whose extension-less form is the directory.
func (l *Loader) resolveDir(path string) (string, error) {
	if _, err := l.FS.ReadDir(path); err == nil {
		return path, nil
	}
	if ext := filepath.Ext(path); ext != "" {
		trimmed := strings.TrimSuffix(path, ext)
		if _, err := l.FS.ReadDir(trimmed); err == nil {
			return trimmed, nil
		}
	}
	return "", fmt.Errorf("stack %s not found", path)
}

// SliceFiles returns the slice image paths of the stack at path, in order.
func (l *Loader) SliceFiles(path string) ([]string, error) {
	dir, err := l.resolveDir(path)
	if err != nil {
		return nil, err
	}
	names, err := l.FS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(names))
	for _, n := range names {
		if IsSliceFile(n) {
			files = append(files, filepath.Join(dir, n))
		}
	}
	return files, nil
}

// LoadStack decodes every slice of the stack at path. A TIFF file is read
// page by page; otherwise path, or path without its extension, must be a
// slice directory.
func (l *Loader) LoadStack(path string) (sharpness.DepthStack, error) {
	if _, err := l.FS.ReadDir(path); err != nil && isTIFF(path) {
		if data, err := l.FS.ReadFile(path); err == nil {
			return l.loadPages(path, data)
		}
	}

	files, err := l.SliceFiles(path)
	if err != nil {
		return sharpness.DepthStack{}, err
	}
	if err := l.checkLength(path, len(files)); err != nil {
		return sharpness.DepthStack{}, err
	}

	slices := make([]*mat.Dense, len(files))
	for i, f := range files {
		img, err := l.decodeFile(f)
		if err != nil {
			return sharpness.DepthStack{}, fmt.Errorf("slice %d (%s): %w", i, filepath.Base(f), err)
		}
		slices[i] = ImageToDense(img)
	}
	return sharpness.DepthStack{Slices: slices, Depths: l.Depths}, nil
}

func (l *Loader) loadPages(path string, data []byte) (sharpness.DepthStack, error) {
	pages, err := DecodeTIFFPages(data)
	if err != nil {
		return sharpness.DepthStack{}, fmt.Errorf("stack %s: %w", path, err)
	}
	if err := l.checkLength(path, len(pages)); err != nil {
		return sharpness.DepthStack{}, err
	}
	slices := make([]*mat.Dense, len(pages))
	for i, p := range pages {
		slices[i] = ImageToDense(p)
	}
	return sharpness.DepthStack{Slices: slices, Depths: l.Depths}, nil
}

func (l *Loader) checkLength(path string, n int) error {
	if n == 0 {
		return fmt.Errorf("stack %s: %w", path, sharpness.ErrEmptyStack)
	}
	if l.Depths != nil && n != len(l.Depths) {
		return fmt.Errorf("stack %s has %d slices, grid has %d: %w", path, n, len(l.Depths), ErrStackLength)
	}
	return nil
}

func (l *Loader) decodeFile(path string) (image.Image, error) {
	f, err := l.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeSlice(f, filepath.Ext(path))
}

// DecodeSlice decodes a TIFF or PNG slice image. Only the first page of a
// TIFF is read.
func DecodeSlice(r io.Reader, ext string) (image.Image, error) {
	switch strings.ToLower(ext) {
	case ".tif", ".tiff":
		return tiff.Decode(r)
	case ".png":
		return png.Decode(r)
	}
	return nil, fmt.Errorf("unsupported slice format %q", ext)
}

// ImageToDense converts img to a matrix of intensities with rows along y.
// Grey images keep their native scale; colour images are reduced to 16-bit
// luminance.
func ImageToDense(img image.Image) *mat.Dense {
	b := img.Bounds()
	out := mat.NewDense(b.Dy(), b.Dx(), nil)
	switch m := img.(type) {
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(y-b.Min.Y, x-b.Min.X, float64(m.Gray16At(x, y).Y))
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(y-b.Min.Y, x-b.Min.X, float64(m.GrayAt(x, y).Y))
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
				out.Set(y-b.Min.Y, x-b.Min.X, float64(g.Y))
			}
		}
	}
	return out
}

// DenseToGray16 converts a matrix into a 16-bit grey image, scaling so the
// matrix maximum maps to 65535. Negative values clamp to 0.
func DenseToGray16(m *mat.Dense) *image.Gray16 {
	r, c := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, c, r))
	peak := mat.Max(m)
	scale := 0.0
	if peak > 0 {
		scale = 65535 / peak
	}
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			v := m.At(y, x) * scale
			if v < 0 {
				v = 0
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return img
}
