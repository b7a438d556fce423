// Package testutil provides shared test utilities and fixtures.
//
// The fixtures build synthetic depth stacks whose sharpest slice is known in
// advance, so focus detection can be checked without recorded microscope data.
package testutil

import (
	"math"
	"testing"
)

// AssertFloatsNear fails the test if got and want differ in length or any
// element differs by more than tol.
func AssertFloatsNear(t testing.TB, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("[%d] = %g, want %g (tol %g)", i, got[i], want[i], tol)
		}
	}
}
