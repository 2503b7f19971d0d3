package segmentation

import (
	"github.com/golang/geo/r3"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

func normalFrom(point clusters.Coordinates) r3.Vector {
	return r3.Vector{X: point[0], Y: point[1], Z: point[2]}
}

// NormalObservation adapts a surface normal to the kmeans module.
type NormalObservation struct {
	normal r3.Vector
}

// Coordinates returns the normal components as clustering coordinates.
func (o NormalObservation) Coordinates() clusters.Coordinates {
	return clusters.Coordinates{o.normal.X, o.normal.Y, o.normal.Z}
}

// Distance returns the squared Euclidean distance to a candidate center.
func (o NormalObservation) Distance(point clusters.Coordinates) float64 {
	return o.normal.Sub(normalFrom(point)).Norm2()
}

// ClusterNormalsEuclidean partitions normals with ordinary Euclidean
// k-means. Chord distance on the unit sphere is monotone in angular
// distance, so for well-separated orientations the partition agrees with
// the spherical clustering; the centers it returns are renormalized onto
// the sphere. Used as a cross-check against the spherical path.
func ClusterNormalsEuclidean(data []r3.Vector, numClusters int) ([]r3.Vector, error) {
	all := []clusters.Observation{}
	for _, n := range data {
		all = append(all, NormalObservation{n})
	}

	km := kmeans.New()

	clusters, err := km.Partition(all, numClusters)
	if err != nil {
		return nil, err
	}

	res := []r3.Vector{}
	for _, c := range clusters {
		center := normalFrom(c.Center)
		if norm := center.Norm(); norm > 1e-12 {
			center = center.Mul(1 / norm)
		}
		res = append(res, center)
	}

	return res, nil
}
