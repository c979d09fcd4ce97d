package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		step float64
		want float64
	}{
		{"rounds up to half", 72.3, DefaultStep, 72.5},
		{"rounds down to whole", 72.2, DefaultStep, 72.0},
		{"negative rounds away from zero", -0.3, DefaultStep, -0.5},
		{"tie rounds away from zero", 72.25, DefaultStep, 72.5},
		{"negative tie rounds away from zero", -72.25, DefaultStep, -72.5},
		{"already aligned", 70.0, DefaultStep, 70.0},
		{"whole step", 21.4, 1, 21},
		{"zero step leaves value", 21.37, 0, 21.37},
		{"negative step leaves value", 21.37, -0.5, 21.37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToStep(tt.x, tt.step), 1e-9)
		})
	}
}

func TestRoundToStep_NaNPassesThrough(t *testing.T) {
	assert.True(t, math.IsNaN(RoundToStep(math.NaN(), DefaultStep)))
}

func TestApproxEqual(t *testing.T) {
	assert.True(t, ApproxEqual(72.0, 72.0, DefaultEpsilon))
	assert.True(t, ApproxEqual(72.0, 71.96, DefaultEpsilon))
	assert.True(t, ApproxEqual(72.0, 72.04, DefaultEpsilon))
	assert.False(t, ApproxEqual(72.0, 71.4, DefaultEpsilon))
	assert.False(t, ApproxEqual(72.0, 72.5, DefaultEpsilon))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(0))
	assert.True(t, Valid(-12.5))
	assert.False(t, Valid(math.NaN()))
	assert.False(t, Valid(math.Inf(1)))
	assert.False(t, Valid(math.Inf(-1)))
}

func TestFormatTenths(t *testing.T) {
	assert.Equal(t, "70.0", FormatTenths(70))
	assert.Equal(t, "71.5", FormatTenths(71.5))
	assert.Equal(t, "-0.5", FormatTenths(-0.5))
}
