package rectification

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/planerect/planerect/rimage/transform"
)

func rotateVec(r *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
}

// syntheticCorrespondences projects a non-coplanar point cloud into two views
// related by rotation r and translation tr.
func syntheticCorrespondences(
	params *transform.PinholeCameraIntrinsics,
	r *mat.Dense,
	tr r3.Vector,
	n int,
) []Correspondence {
	rng := rand.New(rand.NewSource(11))
	var corrs []Correspondence
	for len(corrs) < n {
		p1 := r3.Vector{
			X: rng.Float64()*2 - 1,
			Y: rng.Float64()*2 - 1,
			Z: 2 + rng.Float64()*4,
		}
		p2 := rotateVec(r, p1).Add(tr)
		if p2.Z <= 0 {
			continue
		}
		u1, v1 := params.PointToPixel(p1.X, p1.Y, p1.Z)
		u2, v2 := params.PointToPixel(p2.X, p2.Y, p2.Z)
		corrs = append(corrs, Correspondence{
			A:     r2.Point{X: u1, Y: v1},
			B:     r2.Point{X: u2, Y: v2},
			Valid: true,
		})
	}
	return corrs
}

func TestEstimatePose(t *testing.T) {
	params := pipelineIntrinsics()
	rot := transform.RodriguesRotation(r3.Vector{Y: 1}, 0.1)
	tr := r3.Vector{X: 0.5, Y: 0.05, Z: 0.1}
	corrs := syntheticCorrespondences(params, rot, tr, 30)

	pose, err := EstimatePose(corrs, params, params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.RotationAngle(), test.ShouldAlmostEqual, 0.1, 1e-3)
	test.That(t, transform.TranslationDifference(pose.TranslationVector(), tr), test.ShouldBeLessThan, 1e-3)
}

func TestEstimatePoseTooFewValid(t *testing.T) {
	params := pipelineIntrinsics()
	rot := transform.RodriguesRotation(r3.Vector{Y: 1}, 0.1)
	corrs := syntheticCorrespondences(params, rot, r3.Vector{X: 0.5}, 30)
	// invalid correspondences never reach the estimator
	for i := 5; i < len(corrs); i++ {
		corrs[i].Valid = false
	}
	_, err := EstimatePose(corrs, params, params)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = EstimatePose(nil, params, params)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = EstimatePose(corrs, nil, params)
	test.That(t, err, test.ShouldNotBeNil)
}

func rectTestImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 300, 200))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{0}}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(50, 30, 100, 150), &image.Uniform{color.Gray{255}}, image.Point{}, draw.Src)
	return img
}

func TestMatchRegions(t *testing.T) {
	logger := golog.NewTestLogger(t)
	img := rectTestImage()
	h := identityHomography(t)
	region, err := WarpBounded(img, img.Bounds(), h, 0, 4096, BilinearInterpolation, ClipPolicy)
	test.That(t, err, test.ShouldBeNil)

	cfg := DefaultConfig()
	corrs, err := MatchRegions(region, region, img.Bounds(), img.Bounds(),
		&cfg.Fast, &cfg.Brief, &cfg.Matching, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(corrs), test.ShouldBeGreaterThan, 0)
	// matching a region against itself back-maps to identical points
	for _, c := range corrs {
		test.That(t, c.Valid, test.ShouldBeTrue)
		test.That(t, c.B.X, test.ShouldAlmostEqual, c.A.X, 1e-9)
		test.That(t, c.B.Y, test.ShouldAlmostEqual, c.A.Y, 1e-9)
	}
}
