package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		name    string
		x, tick float64
		want    float64
	}{
		{"float sum artefact lands on the penny", 0.30000000000000004, 0.01, 0.3},
		// 2.675 is stored as 2.67499999..., which naive float scaling rounds down
		{"binary shortfall still ties up", 2.675, 0.01, 2.68},
		{"half cent rounds away from zero", 1.005, 0.01, 1.01},
		{"negative half cent rounds away from zero", -1.005, 0.01, -1.01},
		{"nickel tick", 2.37, 0.05, 2.35},
		{"quarter tick tie", 1.125, 0.25, 1.25},
		{"strike increment", 1012.4, 5, 1010},
		{"negative tick uses its magnitude", 2.37, -0.05, 2.35},
		{"zero tick is identity", 3.14159, 0, 3.14159},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RoundToTick(tc.x, tc.tick))
		})
	}
}

func TestRoundToTick_NonFinite(t *testing.T) {
	assert.True(t, math.IsNaN(RoundToTick(math.NaN(), 0.01)))
	assert.True(t, math.IsInf(RoundToTick(math.Inf(1), 0.01), 1))
	assert.Equal(t, 1.234, RoundToTick(1.234, math.NaN()))
	assert.Equal(t, 1.234, RoundToTick(1.234, math.Inf(-1)))
}

func TestFloorCeilToTick(t *testing.T) {
	cases := []struct {
		name        string
		x, tick     float64
		floor, ceil float64
	}{
		// 0.3/0.1 is 2.9999999999999996 in float64
		{"exact multiple survives division", 0.3, 0.1, 0.3, 0.3},
		{"between nickels", 1.07, 0.05, 1.05, 1.1},
		{"negative between nickels", -1.01, 0.05, -1.05, -1},
		{"on the grid", 450, 5, 450, 450},
		{"between strikes", 452.5, 5, 450, 455},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.floor, FloorToTick(tc.x, tc.tick), "floor")
			assert.Equal(t, tc.ceil, CeilToTick(tc.x, tc.tick), "ceil")
		})
	}

	assert.Equal(t, 7.77, FloorToTick(7.77, 0))
	assert.Equal(t, 7.77, CeilToTick(7.77, 0))
}

func TestStrikeGrid(t *testing.T) {
	cases := []struct {
		name         string
		lo, hi, step float64
		want         []float64
	}{
		{"ends snap outward", 97.3, 108.1, 5, []float64{95, 100, 105, 110}},
		{"tenths do not drift", 1.0, 1.5, 0.1, []float64{1.0, 1.1, 1.2, 1.3, 1.4, 1.5}},
		{"half dollar strikes", 49.2, 50.6, 0.5, []float64{49, 49.5, 50, 50.5, 51}},
		{"single point", 100, 100, 5, []float64{100}},
		{"inverted range", 10, 5, 1, nil},
		{"zero step", 1, 5, 0, nil},
		{"negative step", 1, 5, -1, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StrikeGrid(tc.lo, tc.hi, tc.step))
		})
	}
}
