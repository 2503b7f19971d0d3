package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/planerect/planerect/rimage"
)

// planeDepthMap builds the depth map of the plane n . X = dist seen through
// the given intrinsics. n must point away from the camera (positive Z).
func planeDepthMap(params *PinholeCameraIntrinsics, n r3.Vector, dist float64) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(params.Width, params.Height)
	for y := 0; y < params.Height; y++ {
		for x := 0; x < params.Width; x++ {
			denom := n.X*(float64(x)-params.Ppx)/params.Fx +
				n.Y*(float64(y)-params.Ppy)/params.Fy + n.Z
			if denom <= 0 {
				continue
			}
			dm.Set(x, y, dist/denom)
		}
	}
	return dm
}

func TestNormalsFrontalPlane(t *testing.T) {
	params := testIntrinsics()
	dm := planeDepthMap(params, r3.Vector{Z: 1}, 2.0)

	for _, mode := range []NeighborhoodMode{CrossNeighborhood, SobelNeighborhood} {
		nf, err := DepthMapToNormalField(dm, params, mode)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, nf.CountValid(), test.ShouldBeGreaterThan, 90*90)
		expected := r3.Vector{Z: -1}
		nf.EachValid(func(x, y int, n r3.Vector) {
			test.That(t, n.Norm(), test.ShouldAlmostEqual, 1, rimage.UnitNormTolerance)
			test.That(t, rimage.AngleBetween(n, expected), test.ShouldBeLessThan, 1e-6)
		})
	}
}

func TestNormalsSlantedPlane(t *testing.T) {
	params := testIntrinsics()
	away := r3.Vector{X: 0.3, Y: 0.1, Z: 1}.Normalize()
	dm := planeDepthMap(params, away, 3.0)

	nf, err := DepthMapToNormalField(dm, params, CrossNeighborhood)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nf.CountValid(), test.ShouldBeGreaterThan, 0)
	expected := away.Mul(-1)
	nf.EachValid(func(x, y int, n r3.Vector) {
		test.That(t, rimage.AngleBetween(n, expected), test.ShouldBeLessThan, 1e-3)
	})
}

func TestNormalsScaleInvariance(t *testing.T) {
	params := testIntrinsics()
	away := r3.Vector{X: -0.2, Y: 0.25, Z: 1}.Normalize()
	dm := planeDepthMap(params, away, 1.5)

	nf1, err := DepthMapToNormalField(dm, params, CrossNeighborhood)
	test.That(t, err, test.ShouldBeNil)
	nf2, err := DepthMapToNormalField(dm.Scaled(3.7), params, CrossNeighborhood)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, nf2.CountValid(), test.ShouldEqual, nf1.CountValid())
	nf1.EachValid(func(x, y int, n r3.Vector) {
		test.That(t, nf2.ValidAt(x, y), test.ShouldBeTrue)
		test.That(t, rimage.AngleBetween(n, nf2.Get(x, y)), test.ShouldBeLessThan, 1e-6)
	})
}

func TestNormalsInvalidNeighborhoods(t *testing.T) {
	params := testIntrinsics()
	dm := planeDepthMap(params, r3.Vector{Z: 1}, 2.0)
	dm.Set(50, 50, math.NaN())

	nf, err := DepthMapToNormalField(dm, params, CrossNeighborhood)
	test.That(t, err, test.ShouldBeNil)
	// the invalid pixel and its 4-neighborhood dependents produce no normal
	test.That(t, nf.ValidAt(50, 50), test.ShouldBeFalse)
	test.That(t, nf.ValidAt(49, 50), test.ShouldBeFalse)
	test.That(t, nf.ValidAt(51, 50), test.ShouldBeFalse)
	test.That(t, nf.ValidAt(50, 49), test.ShouldBeFalse)
	test.That(t, nf.ValidAt(50, 51), test.ShouldBeFalse)
	// borders never have a full neighborhood
	test.That(t, nf.ValidAt(0, 0), test.ShouldBeFalse)
}

func TestNormalsAllInvalidDepth(t *testing.T) {
	params := testIntrinsics()
	dm := rimage.NewEmptyDepthMap(params.Width, params.Height)
	nf, err := DepthMapToNormalField(dm, params, SobelNeighborhood)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nf.CountValid(), test.ShouldEqual, 0)
}

func TestNormalsInvalidInput(t *testing.T) {
	params := testIntrinsics()
	_, err := DepthMapToNormalField(nil, params, CrossNeighborhood)
	test.That(t, err, test.ShouldNotBeNil)

	dm := planeDepthMap(params, r3.Vector{Z: 1}, 2.0)
	_, err = DepthMapToNormalField(dm, nil, CrossNeighborhood)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DepthMapToNormalField(dm, params, NeighborhoodMode("diamond"))
	test.That(t, err, test.ShouldNotBeNil)
}
