package segmentation

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestSphereDistance(t *testing.T) {
	s := Sphere{}
	z := r3.Vector{Z: 1}
	test.That(t, s.Distance(z, z), test.ShouldAlmostEqual, 0)
	test.That(t, s.Distance(z, r3.Vector{X: 1}), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, s.Distance(z, r3.Vector{Z: -1}), test.ShouldAlmostEqual, math.Pi)
}

func TestSphereMean(t *testing.T) {
	s := Sphere{}
	mean, ok := s.Mean([]r3.Vector{{X: 1}, {Y: 1}})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mean.Norm(), test.ShouldAlmostEqual, 1)
	test.That(t, mean.X, test.ShouldAlmostEqual, math.Sqrt2/2)
	test.That(t, mean.Y, test.ShouldAlmostEqual, math.Sqrt2/2)

	// antipodal cancellation has no defined mean
	_, ok = s.Mean([]r3.Vector{{Z: 1}, {Z: -1}})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = s.Mean(nil)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestEuclideanMean(t *testing.T) {
	e := Euclidean{}
	mean, ok := e.Mean([]r3.Vector{{X: 2}, {X: 4}})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mean.X, test.ShouldAlmostEqual, 3)
	test.That(t, e.Distance(r3.Vector{X: 1}, r3.Vector{X: 4}), test.ShouldAlmostEqual, 3)
}

func TestRunKMeansSingleCluster(t *testing.T) {
	v := r3.Vector{X: 0.3, Y: -0.1, Z: -1}.Normalize()
	points := []r3.Vector{v, v, v, v}
	result := RunKMeans(Sphere{}, points, []r3.Vector{{Z: -1}}, 20)
	// identical points converge in a single iteration
	test.That(t, result.Iterations, test.ShouldEqual, 1)
	test.That(t, result.Centers[0].X, test.ShouldAlmostEqual, v.X)
	test.That(t, result.Centers[0].Y, test.ShouldAlmostEqual, v.Y)
	test.That(t, result.Centers[0].Z, test.ShouldAlmostEqual, v.Z)
	for _, a := range result.Assignments {
		test.That(t, a, test.ShouldEqual, 0)
	}
}

func TestRunKMeansTwoClusters(t *testing.T) {
	cluster1 := []r3.Vector{{X: 1, Z: -0.01}, {X: 1, Y: 0.05, Z: 0.01}, {X: 1, Y: -0.04}}
	cluster2 := []r3.Vector{{Y: 1, X: -0.02}, {Y: 1, X: 0.03, Z: 0.02}, {Y: 1, Z: -0.03}}
	var points []r3.Vector
	for _, p := range append(append([]r3.Vector{}, cluster1...), cluster2...) {
		points = append(points, p.Normalize())
	}
	initial := []r3.Vector{{X: 1}, {Y: 1}}
	result := RunKMeans(Sphere{}, points, initial, 20)

	for i := 0; i < 3; i++ {
		test.That(t, result.Assignments[i], test.ShouldEqual, 0)
	}
	for i := 3; i < 6; i++ {
		test.That(t, result.Assignments[i], test.ShouldEqual, 1)
	}

	// deterministic: same inputs, same outcome
	again := RunKMeans(Sphere{}, points, initial, 20)
	test.That(t, again.Assignments, test.ShouldResemble, result.Assignments)
	test.That(t, again.Centers, test.ShouldResemble, result.Centers)
}

func TestRunKMeansDegenerate(t *testing.T) {
	result := RunKMeans(Sphere{}, nil, []r3.Vector{{Z: 1}}, 10)
	test.That(t, len(result.Assignments), test.ShouldEqual, 0)
	result = RunKMeans(Sphere{}, []r3.Vector{{Z: 1}}, nil, 10)
	test.That(t, result.Assignments, test.ShouldResemble, []int{-1})
}

func TestSpherePoints(t *testing.T) {
	points := SpherePoints(300)
	test.That(t, len(points), test.ShouldEqual, 300)
	for _, p := range points {
		test.That(t, p.Norm(), test.ShouldAlmostEqual, 1, 1e-9)
	}
	// the covering spans both hemispheres
	test.That(t, points[0].Z, test.ShouldBeGreaterThan, 0.9)
	test.That(t, points[299].Z, test.ShouldBeLessThan, -0.9)
}
