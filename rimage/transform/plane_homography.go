package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/planerect/planerect/utils"
)

// ErrDegenerateGeometry flags a plane/view configuration for which no
// well-conditioned homography exists. Callers skip the offending plane and
// continue with the others.
var ErrDegenerateGeometry = errors.New("degenerate plane geometry")

// Default gates for homography synthesis.
const (
	// DefaultPlaneAngleLimitDeg is the largest angle between a plane normal
	// and the negated optical axis for which rectification is attempted.
	DefaultPlaneAngleLimitDeg = 75.0
	// DefaultConditionNumberCeiling rejects homographies whose singular
	// value spread makes the warp numerically useless.
	DefaultConditionNumberCeiling = 1e7
	// DefaultBaselineAngleMinDeg is the smallest allowed angle between a
	// plane normal and the stereo baseline for a plane-induced homography.
	DefaultBaselineAngleMinDeg = 5.0
)

// SynthesisGates bundles the rejection thresholds for homography synthesis.
type SynthesisGates struct {
	PlaneAngleLimitDeg     float64 `json:"plane_angle_limit_deg"`
	ConditionNumberCeiling float64 `json:"condition_number_ceiling"`
	BaselineAngleMinDeg    float64 `json:"baseline_angle_min_deg"`
}

// DefaultSynthesisGates returns the default rejection thresholds.
func DefaultSynthesisGates() SynthesisGates {
	return SynthesisGates{
		PlaneAngleLimitDeg:     DefaultPlaneAngleLimitDeg,
		ConditionNumberCeiling: DefaultConditionNumberCeiling,
		BaselineAngleMinDeg:    DefaultBaselineAngleMinDeg,
	}
}

// RodriguesRotation builds the rotation matrix for a rotation of theta
// radians around the given unit axis.
// R = I + sin(theta) K + (1 - cos(theta)) K^2, K the cross product matrix.
func RodriguesRotation(axis r3.Vector, theta float64) *mat.Dense {
	k := getCrossProductMatFromPoint(axis)
	var k2 mat.Dense
	k2.Mul(k, k)

	r := eye(3)
	var sinTerm, cosTerm mat.Dense
	sinTerm.Scale(math.Sin(theta), k)
	cosTerm.Scale(1-math.Cos(theta), &k2)
	r.Add(r, &sinTerm)
	r.Add(r, &cosTerm)
	return r
}

// RectificationRotation returns the rotation that carries the negated plane
// normal onto the optical axis, so that the plane becomes fronto-parallel.
// The normal must face the camera (negative Z component).
func RectificationRotation(normal r3.Vector) (*mat.Dense, error) {
	inward := normal.Mul(-1)
	if inward.Z <= 0 {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "plane normal does not face the camera (nz = %v)", normal.Z)
	}
	z := r3.Vector{X: 0, Y: 0, Z: 1}
	axis := z.Cross(inward)
	axisNorm := axis.Norm()
	if axisNorm < 1e-12 {
		// already fronto-parallel
		return eye(3), nil
	}
	theta := math.Asin(math.Min(axisNorm, 1))
	// R carries inward onto z, so rotate by -theta around the axis from z
	return RodriguesRotation(axis.Mul(1/axisNorm), -theta), nil
}

// SynthesizeRectifyingHomography computes the homography H = K R K^-1 that
// warps the image so the plane with the given normal appears
// fronto-parallel. planeDistance is the representative distance of the plane
// along the cluster's mean ray, up to the depth map's unknown scale; it is
// validated here because the plane parameterization downstream depends on
// it. Degenerate configurations return an error wrapping
// ErrDegenerateGeometry instead of an ill-conditioned matrix.
func SynthesizeRectifyingHomography(
	params *PinholeCameraIntrinsics,
	normal r3.Vector,
	planeDistance float64,
	gates SynthesisGates,
) (*Homography, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if math.IsNaN(planeDistance) || planeDistance <= 0 {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "plane distance %v is not positive", planeDistance)
	}
	viewAxis := r3.Vector{X: 0, Y: 0, Z: -1}
	angle := utils.RadToDeg(angleBetweenUnit(normal, viewAxis))
	if angle >= gates.PlaneAngleLimitDeg {
		return nil, errors.Wrapf(ErrDegenerateGeometry,
			"plane normal is %.1f deg from the view axis, limit %.1f", angle, gates.PlaneAngleLimitDeg)
	}

	rot, err := RectificationRotation(normal)
	if err != nil {
		return nil, err
	}
	k := params.GetCameraMatrix()
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return nil, errors.Wrap(err, "cannot invert camera matrix")
	}
	var h mat.Dense
	h.Mul(k, rot)
	h.Mul(&h, &kInv)
	h.Scale(1/h.At(2, 2), &h)

	homography, err := NewHomographyFromMat(&h)
	if err != nil {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "rectifying homography rejected: %v", err)
	}
	if cond := homography.ConditionNumber(); cond > gates.ConditionNumberCeiling {
		return nil, errors.Wrapf(ErrDegenerateGeometry,
			"rectifying homography condition number %v exceeds ceiling %v", cond, gates.ConditionNumberCeiling)
	}
	return homography, nil
}

// PlaneInducedHomography computes the homography induced between two views
// by the plane n . X = d expressed in the first camera frame:
// H = K2 (R - t n^T / d) K1^-1. The relation is exact for points on the
// plane. It is rejected when the plane distance is not positive, when the
// normal is near-parallel to the baseline, or when the result is
// ill-conditioned.
func PlaneInducedHomography(
	rotation *mat.Dense,
	translation r3.Vector,
	normal r3.Vector,
	planeDistance float64,
	params1, params2 *PinholeCameraIntrinsics,
	gates SynthesisGates,
) (*Homography, error) {
	if err := params1.CheckValid(); err != nil {
		return nil, err
	}
	if err := params2.CheckValid(); err != nil {
		return nil, err
	}
	if math.IsNaN(planeDistance) || planeDistance <= 0 {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "plane distance %v is not positive", planeDistance)
	}
	baselineNorm := translation.Norm()
	if baselineNorm > 1e-12 {
		baseline := translation.Mul(1 / baselineNorm)
		angle := utils.RadToDeg(angleBetweenUnit(normal, baseline))
		// the relation collapses when the plane contains the baseline direction
		offParallel := math.Min(angle, 180-angle)
		if offParallel < gates.BaselineAngleMinDeg {
			return nil, errors.Wrapf(ErrDegenerateGeometry,
				"plane normal is within %.1f deg of the baseline, minimum %.1f", offParallel, gates.BaselineAngleMinDeg)
		}
	}

	// R - t n^T / d
	tn := mat.NewDense(3, 3, nil)
	t := []float64{translation.X, translation.Y, translation.Z}
	n := []float64{normal.X, normal.Y, normal.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tn.Set(i, j, t[i]*n[j]/planeDistance)
		}
	}
	var core mat.Dense
	core.Sub(rotation, tn)

	k1 := params1.GetCameraMatrix()
	k2 := params2.GetCameraMatrix()
	var k1Inv mat.Dense
	if err := k1Inv.Inverse(k1); err != nil {
		return nil, errors.Wrap(err, "cannot invert camera matrix")
	}
	var h mat.Dense
	h.Mul(k2, &core)
	h.Mul(&h, &k1Inv)
	if scale := h.At(2, 2); math.Abs(scale) > 1e-12 {
		h.Scale(1/scale, &h)
	}

	homography, err := NewHomographyFromMat(&h)
	if err != nil {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "plane-induced homography rejected: %v", err)
	}
	if cond := homography.ConditionNumber(); cond > gates.ConditionNumberCeiling {
		return nil, errors.Wrapf(ErrDegenerateGeometry,
			"plane-induced homography condition number %v exceeds ceiling %v", cond, gates.ConditionNumberCeiling)
	}
	return homography, nil
}

func angleBetweenUnit(a, b r3.Vector) float64 {
	dot := a.Dot(b)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}
