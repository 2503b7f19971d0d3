// Package segmentation groups surface normals into dominant plane
// orientations. Normals live on the unit sphere, so clustering distance is
// angular rather than Euclidean; the k-means skeleton is shared between the
// spherical and Euclidean geometries through the Manifold interface.
package segmentation

import (
	"math"

	"github.com/golang/geo/r3"
)

// Manifold supplies the distance metric and centroid update used by the
// k-means iteration. Implementations must be safe for concurrent reads.
type Manifold interface {
	// Distance returns the dissimilarity between two points.
	Distance(a, b r3.Vector) float64
	// Mean returns the centroid of the given points, false when undefined
	// (e.g. an empty member set or antipodal cancellation on the sphere).
	Mean(pts []r3.Vector) (r3.Vector, bool)
}

// Sphere is the unit-sphere manifold: angular distance, normalized mean.
type Sphere struct{}

// Distance returns the angle in radians between two unit vectors.
func (Sphere) Distance(a, b r3.Vector) float64 {
	dot := a.Dot(b)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}

// Mean returns the normalized Euclidean mean, the spherical centroid of the points.
func (Sphere) Mean(pts []r3.Vector) (r3.Vector, bool) {
	if len(pts) == 0 {
		return r3.Vector{}, false
	}
	var sum r3.Vector
	for _, p := range pts {
		sum = sum.Add(p)
	}
	norm := sum.Norm()
	if norm < 1e-12 {
		return r3.Vector{}, false
	}
	return sum.Mul(1 / norm), true
}

// Euclidean is the flat manifold, provided so the same iteration skeleton
// can run ordinary k-means for comparison and testing.
type Euclidean struct{}

// Distance returns the Euclidean distance between two points.
func (Euclidean) Distance(a, b r3.Vector) float64 {
	return a.Sub(b).Norm()
}

// Mean returns the arithmetic mean of the points.
func (Euclidean) Mean(pts []r3.Vector) (r3.Vector, bool) {
	if len(pts) == 0 {
		return r3.Vector{}, false
	}
	var sum r3.Vector
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(pts))), true
}

// KMeansResult holds the outcome of one k-means run.
type KMeansResult struct {
	Centers     []r3.Vector
	Assignments []int
	Iterations  int
}

// RunKMeans iterates assignment and centroid update on the given manifold
// until assignments stabilize or maxIterations is reached. The initial
// centers determine k; they are not mutated. Empty clusters keep their
// previous center. The run is deterministic for fixed inputs.
func RunKMeans(m Manifold, points []r3.Vector, initialCenters []r3.Vector, maxIterations int) *KMeansResult {
	k := len(initialCenters)
	centers := make([]r3.Vector, k)
	copy(centers, initialCenters)
	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}
	if k == 0 || len(points) == 0 {
		return &KMeansResult{Centers: centers, Assignments: assignments}
	}

	members := make([][]r3.Vector, k)
	iterations := 0
	for ; iterations < maxIterations; iterations++ {
		changed := false
		for i := range members {
			members[i] = members[i][:0]
		}
		for i, p := range points {
			best := 0
			bestDist := m.Distance(p, centers[0])
			for c := 1; c < k; c++ {
				if d := m.Distance(p, centers[c]); d < bestDist {
					best = c
					bestDist = d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
			members[best] = append(members[best], p)
		}
		if !changed {
			break
		}
		for c := 0; c < k; c++ {
			if mean, ok := m.Mean(members[c]); ok {
				centers[c] = mean
			}
		}
	}
	return &KMeansResult{Centers: centers, Assignments: assignments, Iterations: iterations}
}

// SpherePoints returns n points spread roughly evenly across the unit
// sphere along a spiral, used for deterministic centroid seeding.
func SpherePoints(n int) []r3.Vector {
	s := 3.6 / math.Sqrt(float64(n))
	dz := 2.0 / float64(n)
	longitude := 0.0
	z := 1 - dz/2

	points := make([]r3.Vector, n)
	for k := 0; k < n; k++ {
		r := math.Sqrt(1 - z*z)
		points[k] = r3.Vector{X: math.Cos(longitude) * r, Y: math.Sin(longitude) * r, Z: z}
		z -= dz
		longitude += s / r
	}
	return points
}
