package acquisition

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// x/image/tiff decodes only the first image file directory (IFD) of a file.
// Later pages are decoded by pointing a copy of the header at their IFD;
// strip offsets are absolute, so the rest of the file is reused unchanged.

// ErrMalformedTIFF is returned when the IFD chain of a TIFF cannot be walked.
var ErrMalformedTIFF = errors.New("malformed TIFF")

const (
	tiffHeaderLen = 8
	tiffEntryLen  = 12
	maxTIFFPages  = 1 << 16
)

// TIFF tags and field types written by EncodeTIFFPages.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	typeShort           = 3
	typeLong            = 4
	photometricMinBlack = 1
)

func tiffByteOrder(data []byte) (binary.ByteOrder, error) {
	if len(data) < tiffHeaderLen {
		return nil, fmt.Errorf("%d byte file: %w", len(data), ErrMalformedTIFF)
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("byte order mark %q: %w", data[:2], ErrMalformedTIFF)
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("not a classic TIFF: %w", ErrMalformedTIFF)
	}
	return order, nil
}

// TIFFPageOffsets returns the offset of every IFD in data, in file order.
func TIFFPageOffsets(data []byte) ([]uint32, error) {
	order, err := tiffByteOrder(data)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	seen := make(map[uint32]bool)
	var offsets []uint32
	for off := order.Uint32(data[4:8]); off != 0; {
		if seen[off] || len(offsets) >= maxTIFFPages {
			return nil, fmt.Errorf("IFD chain revisits offset %d: %w", off, ErrMalformedTIFF)
		}
		seen[off] = true
		if int64(off)+2 > size {
			return nil, fmt.Errorf("IFD offset %d beyond end of file: %w", off, ErrMalformedTIFF)
		}
		n := int64(order.Uint16(data[off:]))
		next := int64(off) + 2 + n*tiffEntryLen
		if next+4 > size {
			return nil, fmt.Errorf("IFD at %d truncated: %w", off, ErrMalformedTIFF)
		}
		offsets = append(offsets, off)
		off = order.Uint32(data[next:])
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no image directories: %w", ErrMalformedTIFF)
	}
	return offsets, nil
}

// DecodeTIFFPages decodes every page of a single- or multi-page TIFF.
func DecodeTIFFPages(data []byte) ([]image.Image, error) {
	offsets, err := TIFFPageOffsets(data)
	if err != nil {
		return nil, err
	}
	order, _ := tiffByteOrder(data)

	buf := bytes.Clone(data)
	pages := make([]image.Image, len(offsets))
	for i, off := range offsets {
		order.PutUint32(buf[4:8], off)
		img, err := tiff.Decode(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages[i] = img
	}
	return pages, nil
}

// EncodeTIFFPages writes pages as one uncompressed little-endian 16-bit
// greyscale TIFF, one strip per page.
func EncodeTIFFPages(w io.Writer, pages []*image.Gray16) error {
	if len(pages) == 0 {
		return errors.New("no pages to encode")
	}
	le := binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(0)) // patched with the first IFD offset

	// prevNext is where the previous IFD's next-IFD pointer lives.
	prevNext := 4
	for _, p := range pages {
		b := p.Bounds()
		width, height := b.Dx(), b.Dy()
		stripOffset := buf.Len()
		row := make([]byte, 2*width)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				le.PutUint16(row[2*(x-b.Min.X):], p.Gray16At(x, y).Y)
			}
			buf.Write(row)
		}
		stripBytes := buf.Len() - stripOffset

		ifd := buf.Len()
		if int64(ifd) > math.MaxUint32-1024 {
			return fmt.Errorf("stack exceeds 4 GiB at %d bytes", ifd)
		}
		le.PutUint32(buf.Bytes()[prevNext:], uint32(ifd))

		entries := [][3]uint32{
			{tagImageWidth, typeLong, uint32(width)},
			{tagImageLength, typeLong, uint32(height)},
			{tagBitsPerSample, typeShort, 16},
			{tagCompression, typeShort, 1},
			{tagPhotometric, typeShort, photometricMinBlack},
			{tagStripOffsets, typeLong, uint32(stripOffset)},
			{tagSamplesPerPixel, typeShort, 1},
			{tagRowsPerStrip, typeLong, uint32(height)},
			{tagStripByteCounts, typeLong, uint32(stripBytes)},
		}
		binary.Write(&buf, le, uint16(len(entries)))
		for _, e := range entries {
			var entry [tiffEntryLen]byte
			le.PutUint16(entry[0:], uint16(e[0]))
			le.PutUint16(entry[2:], uint16(e[1]))
			le.PutUint32(entry[4:], 1)
			if e[1] == typeShort {
				le.PutUint16(entry[8:], uint16(e[2]))
			} else {
				le.PutUint32(entry[8:], e[2])
			}
			buf.Write(entry[:])
		}
		prevNext = buf.Len()
		binary.Write(&buf, le, uint32(0))
	}
	_, err := w.Write(buf.Bytes())
	return err
}
