// Package acquisition loads the inputs of a focus-vs-temperature run: the
// per-temperature metadata written by the acquisition software and the depth
// stacks it recorded.
package acquisition

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMetadataShort is returned when the metadata file has fewer records than
// configured temperature set-points.
var ErrMetadataShort = errors.New("metadata has fewer records than set-points")

// metadataFields is the number of comma separated fields per record:
// date, filename, t1_C, t2_C, t1_O2_C, t2_O2_C.
const metadataFields = 6

// TemperatureSample is one acquisition event at a temperature set-point.
type TemperatureSample struct {
	Setpoint  float64    // nominal stage set-point, °C
	Date      string     // acquisition timestamp as recorded
	Filename  string     // stack filename as recorded
	Primary   [2]float64 // stage sensor readings, °C
	Secondary [2]float64 // O2 objective sensor readings, °C
}

// Actual returns the averaged primary temperature.
func (s TemperatureSample) Actual() float64 {
	return (s.Primary[0] + s.Primary[1]) / 2
}

// ActualSecondary returns the averaged secondary (O2) temperature.
func (s TemperatureSample) ActualSecondary() float64 {
	return (s.Secondary[0] + s.Secondary[1]) / 2
}

// ParseMetadataLine parses one record.
func ParseMetadataLine(line string) (TemperatureSample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != metadataFields {
		return TemperatureSample{}, fmt.Errorf("expected %d fields, got %d", metadataFields, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var temps [4]float64
	names := [4]string{"t1_C", "t2_C", "t1_O2_C", "t2_O2_C"}
	for i := range temps {
		v, err := strconv.ParseFloat(fields[2+i], 64)
		if err != nil {
			return TemperatureSample{}, fmt.Errorf("invalid %s '%s': %w", names[i], fields[2+i], err)
		}
		temps[i] = v
	}

	return TemperatureSample{
		Date:      fields[0],
		Filename:  fields[1],
		Primary:   [2]float64{temps[0], temps[1]},
		Secondary: [2]float64{temps[2], temps[3]},
	}, nil
}

// ParseMetadata reads one record per set-point, in order. Blank lines are
// skipped; records beyond the last set-point are ignored.
func ParseMetadata(r io.Reader, setpoints []float64) ([]TemperatureSample, error) {
	samples := make([]TemperatureSample, 0, len(setpoints))
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() && len(samples) < len(setpoints) {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s, err := ParseMetadataLine(line)
		if err != nil {
			return nil, fmt.Errorf("metadata line %d: %w", lineNo, err)
		}
		s.Setpoint = setpoints[len(samples)]
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if len(samples) < len(setpoints) {
		return nil, fmt.Errorf("%d records for %d set-points: %w", len(samples), len(setpoints), ErrMetadataShort)
	}
	return samples, nil
}

// FormatMetadataLine renders a sample in the on-disk record format.
func FormatMetadataLine(s TemperatureSample) string {
	return fmt.Sprintf("%s,%s,%.2f,%.2f,%.2f,%.2f",
		s.Date, s.Filename, s.Primary[0], s.Primary[1], s.Secondary[0], s.Secondary[1])
}
