package units

import (
	"math"
	"testing"
)

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		from, to string
		expected float64
	}{
		{"objective length mm to um", 108.15, MM, UM, 108150},
		{"um to nm", 0.25, UM, NM, 250},
		{"nm to um", 1580, NM, UM, 1.58},
		{"m to mm", 0.1, M, MM, 100},
		{"identity", 3.5, UM, UM, 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertLength(tt.v, tt.from, tt.to)
			if err != nil {
				t.Fatalf("ConvertLength(%f, %s, %s) error: %v", tt.v, tt.from, tt.to, err)
			}
			if math.Abs(got-tt.expected) > 1e-9*math.Max(1, math.Abs(tt.expected)) {
				t.Errorf("ConvertLength(%f, %s, %s) = %f, want %f", tt.v, tt.from, tt.to, got, tt.expected)
			}
		})
	}

	if _, err := ConvertLength(1, "furlong", UM); err == nil {
		t.Error("expected error for unknown source unit")
	}
	if _, err := ConvertLength(1, UM, "inch"); err == nil {
		t.Error("expected error for unknown target unit")
	}
}

func TestIsValidLength(t *testing.T) {
	for _, u := range ValidLengthUnits {
		if !IsValidLength(u) {
			t.Errorf("IsValidLength(%s) = false, want true", u)
		}
	}
	for _, u := range []string{"", "UM", "µm", "km"} {
		if IsValidLength(u) {
			t.Errorf("IsValidLength(%q) = true, want false", u)
		}
	}
}

func TestConvertExpansion(t *testing.T) {
	clte := 2.3e-6
	if got := ConvertExpansion(clte, PPMPerK); math.Abs(got-2.3) > 1e-12 {
		t.Errorf("ConvertExpansion(ppm) = %g, want 2.3", got)
	}
	if got := ConvertExpansion(clte, PerK); got != clte {
		t.Errorf("ConvertExpansion(per_k) = %g, want %g", got, clte)
	}
	if got := ConvertExpansion(clte, "unknown"); got != clte {
		t.Errorf("ConvertExpansion(unknown) = %g, want %g", got, clte)
	}
	for _, u := range ValidExpansionUnits {
		if !IsValidExpansion(u) {
			t.Errorf("IsValidExpansion(%s) = false", u)
		}
	}
}

func TestLabels(t *testing.T) {
	if ExpansionLabel(PPMPerK) != "ppm/K" || ExpansionLabel(PerK) != "1/K" {
		t.Errorf("unexpected expansion labels %q %q", ExpansionLabel(PPMPerK), ExpansionLabel(PerK))
	}
	if LengthLabel(UM) != "µm" || LengthLabel(MM) != "mm" {
		t.Errorf("unexpected length labels %q %q", LengthLabel(UM), LengthLabel(MM))
	}
}
