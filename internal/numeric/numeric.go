package numeric

import (
	"fmt"
	"math"
)

const (
	DefaultStep    float64 = 0.5
	DefaultEpsilon float64 = 0.05
)

// RoundToStep rounds x to the nearest multiple of step. Ties round half away
// from zero (72.25 -> 72.5, -72.25 -> -72.5). A non-positive or non-finite
// step returns x unchanged.
func RoundToStep(x, step float64) float64 {
	if !Valid(step) || step <= 0 || !Valid(x) {
		return x
	}
	return math.Round(x/step) * step
}

// ApproxEqual reports whether |a-b| <= eps.
func ApproxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// Valid reports whether x is a usable number (not NaN or infinite).
func Valid(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func FormatTenths(x float64) string {
	return fmt.Sprintf("%.1f", x)
}
