package utils

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestAngleConversions(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90)
	test.That(t, RadToDeg(DegToRad(37.5)), test.ShouldAlmostEqual, 37.5)
}

func TestClamp(t *testing.T) {
	test.That(t, ClampF64(-0.5, 0, 255), test.ShouldEqual, 0.0)
	test.That(t, ClampF64(300, 0, 255), test.ShouldEqual, 255.0)
	test.That(t, ClampF64(12.5, 0, 255), test.ShouldEqual, 12.5)
	test.That(t, ClampInt(-3, 0, 10), test.ShouldEqual, 0)
	test.That(t, ClampInt(11, 0, 10), test.ShouldEqual, 10)
	test.That(t, ClampInt(7, 0, 10), test.ShouldEqual, 7)
}

func TestMedian(t *testing.T) {
	test.That(t, Median(1, 2, 3), test.ShouldEqual, 2.0)
	test.That(t, Median(5, 1, 9, 3), test.ShouldEqual, 5.0)
	test.That(t, Median(42), test.ShouldEqual, 42.0)
	test.That(t, math.IsNaN(Median()), test.ShouldBeTrue)
}

func TestSampleRandomIntRange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		v := SampleRandomIntRange(-5, 5, r)
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -5)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 5)
	}
}

func TestSampleNIntegersUniform(t *testing.T) {
	samples := SampleNIntegersUniform(97, -8, 8, rand.New(rand.NewSource(2)))
	test.That(t, len(samples), test.ShouldEqual, 97)
	for _, v := range samples {
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -8)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 8)
	}
	// deterministic for a fixed seed
	again := SampleNIntegersUniform(97, -8, 8, rand.New(rand.NewSource(2)))
	test.That(t, again, test.ShouldResemble, samples)
}

func TestSampleNIntegersNormal(t *testing.T) {
	samples := SampleNIntegersNormal(1000, -12, 12, rand.New(rand.NewSource(3)))
	test.That(t, len(samples), test.ShouldEqual, 1000)
	mean := 0.0
	for _, v := range samples {
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -12)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 12)
		mean += float64(v)
	}
	mean /= float64(len(samples))
	test.That(t, mean, test.ShouldBeBetween, -1.0, 1.0)
}

func TestSampleNRegularlySpaced(t *testing.T) {
	samples := SampleNRegularlySpaced(5, -10, 10)
	test.That(t, len(samples), test.ShouldEqual, 5)
	test.That(t, samples[0], test.ShouldEqual, -10)
	for i := 1; i < len(samples); i++ {
		test.That(t, samples[i], test.ShouldBeGreaterThan, samples[i-1])
	}
}
