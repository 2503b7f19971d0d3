// Package rectification warps dominant scene planes to fronto-parallel views
// so that wide-baseline image pairs can be matched patch by patch. The
// pipeline estimates surface normals from depth, clusters them into plane
// orientations, synthesizes a rectifying homography per plane, warps each
// plane region onto a bounded canvas, and pairs the resulting regions across
// the two views.
package rectification

import (
	"github.com/pkg/errors"

	"github.com/planerect/planerect/rimage/transform"
)

// ErrDegenerateGeometry flags a plane/view configuration with no usable
// homography. Cluster-local: the orchestrator skips the cluster and keeps
// going.
var ErrDegenerateGeometry = transform.ErrDegenerateGeometry

// ErrResourceBound flags a warp whose projected extent exceeds the output
// canvas cap. Under the reject policy it is returned wrapped; under the clip
// policy the source region is shrunk instead.
var ErrResourceBound = errors.New("projected warp exceeds output bound")
