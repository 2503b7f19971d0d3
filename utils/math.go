// Package utils contains math and concurrency helpers shared across the
// rectification pipeline.
package utils

import (
	"math"
	"math/rand"
	"sort"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Square is faster than math.Pow(x, 2).
func Square(n float64) float64 {
	return n * n
}

// AbsInt returns the absolute value of an int.
func AbsInt(n int) int {
	if n < 0 {
		return -1 * n
	}
	return n
}

// MaxInt returns the larger of two ints.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the smaller of two ints.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampF64 clamps a float64 value to the given range.
func ClampF64(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampInt clamps n into [min, max].
func ClampInt(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// Median returns the median of the given values, NaN for an empty input.
// The input slice is sorted in place.
func Median(values ...float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)

	return values[int(math.Floor(float64(len(values))/2))]
}

// SampleRandomIntRange samples a random integer within a range given by [min, max]
// using the given rand.Rand.
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax] with the
// given rand.Rand.
func SampleNIntegersUniform(n int, vMin, vMax float64, r *rand.Rand) []int {
	samples := make([]int, n)
	for i := range samples {
		samples[i] = SampleRandomIntRange(int(vMin), int(vMax), r)
	}
	return samples
}

// SampleNIntegersNormal samples n integers from an approximately normal
// distribution centered on the middle of [vMin, vMax], clamped to the range.
func SampleNIntegersNormal(n int, vMin, vMax float64, r *rand.Rand) []int {
	mean := (vMax + vMin) / 2
	// +/- 3 sigma covers the whole range
	sigma := (vMax - vMin) / 6
	samples := make([]int, n)
	for i := range samples {
		v := int(math.Round(r.NormFloat64()*sigma + mean))
		samples[i] = ClampInt(v, int(vMin), int(vMax))
	}
	return samples
}

// SampleNRegularlySpaced returns n integers evenly spread over [vMin, vMax].
func SampleNRegularlySpaced(n int, vMin, vMax float64) []int {
	step := (vMax - vMin) / float64(n)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(math.Round(vMin + float64(i)*step))
	}
	return samples
}
