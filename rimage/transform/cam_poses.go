package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and Translation matrices.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a pointer to a camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	u3 := pose.ColView(3)
	t := mat.NewDense(3, 1, []float64{u3.AtVec(0), u3.AtVec(1), u3.AtVec(2)})
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// TranslationVector returns the translation as an r3.Vector.
func (cp *CamPose) TranslationVector() r3.Vector {
	return r3.Vector{
		X: cp.Translation.At(0, 0),
		Y: cp.Translation.At(1, 0),
		Z: cp.Translation.At(2, 0),
	}
}

// RotationAngle returns the magnitude in radians of the pose rotation.
func (cp *CamPose) RotationAngle() float64 {
	return rotationAngle(cp.Rotation)
}

// rotationAngle returns the angle of a 3x3 rotation matrix via its trace.
func rotationAngle(r *mat.Dense) float64 {
	c := (mat.Trace(r) - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// RotationDifference returns the angle in radians between two rotations.
func RotationDifference(r1, r2 *mat.Dense) float64 {
	var diff mat.Dense
	diff.Mul(transposeDense(r1), r2)
	return rotationAngle(&diff)
}

// TranslationDifference returns the angle in radians between two translation
// directions; translation from an essential matrix is only known up to scale.
func TranslationDifference(t1, t2 r3.Vector) float64 {
	n1, n2 := t1.Norm(), t2.Norm()
	if n1 < 1e-12 || n2 < 1e-12 {
		return 0
	}
	dot := t1.Dot(t2) / (n1 * n2)
	if dot < 0 {
		dot = -dot // sign of t is not observable
	}
	if dot > 1 {
		dot = 1
	}
	return math.Acos(dot)
}

// adjustPoseSign adjusts the sign of a pose so its rotation has positive determinant.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	subPose := pose.Slice(0, 3, 0, 3)
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential matrix.
func GetPossibleCameraPoses(essMat *mat.Dense) ([]*mat.Dense, error) {
	r1, r2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return nil, err
	}
	var tOpp mat.Dense
	tOpp.Scale(-1, t)
	poses := make([]mat.Dense, 4)
	poses[0].Augment(r1, t)
	poses[1].Augment(r1, &tOpp)
	poses[2].Augment(r2, t)
	poses[3].Augment(r2, &tOpp)
	posesOut := make([]*mat.Dense, 4)
	for i := range poses {
		posesOut[i] = mat.DenseCopyOf(adjustPoseSign(&poses[i]))
	}
	return posesOut, nil
}

// getCrossProductMatFromPoint returns the cross product with point p matrix.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// GetLinearTriangulatedPoints computes triangulated 3D points with the linear method.
func GetLinearTriangulatedPoints(pose *mat.Dense, pts1, pts2 []r3.Vector) ([]r3.Vector, error) {
	// identity pose for pts1
	p := mat.NewDense(3, 4, nil)
	p.Set(0, 0, 1)
	p.Set(1, 1, 1)
	p.Set(2, 2, 1)
	pdash := mat.DenseCopyOf(pose)
	nPoints := len(pts1)
	pts3d := make([]r3.Vector, nPoints)
	for i := range pts1 {
		p1Cross := getCrossProductMatFromPoint(pts1[i])
		p2Cross := getCrossProductMatFromPoint(pts2[i])
		p1CrossP := mat.NewDense(3, 4, nil)
		p1CrossP.Mul(p1Cross, p)
		p2CrossPdash := mat.NewDense(3, 4, nil)
		p2CrossPdash.Mul(p2Cross, pdash)
		var a mat.Dense
		a.Stack(p1CrossP, p2CrossPdash)

		var svd mat.SVD
		if ok := svd.Factorize(&a, mat.SVDFull); !ok {
			return nil, errors.New("failed to factorize triangulation system")
		}
		const rcond = 1e-15
		if rank := svd.Rank(rcond); rank == 0 {
			return nil, errors.New("zero rank system")
		}
		var v mat.Dense
		svd.VTo(&v)
		pt3d := v.ColView(3)
		w := pt3d.AtVec(3)
		pts3d[i] = r3.Vector{
			X: pt3d.AtVec(0) / w,
			Y: pt3d.AtVec(1) / w,
			Z: pt3d.AtVec(2) / w,
		}
	}
	return pts3d, nil
}

// GetNumberPositiveDepth computes the number of triangulated points with positive depth in both views.
func GetNumberPositiveDepth(pose *mat.Dense, pts1, pts2 []r3.Vector) (int, *mat.Dense) {
	rot3 := r3.Vector{X: pose.At(2, 0), Y: pose.At(2, 1), Z: pose.At(2, 2)}
	c := r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)}

	pts3D, err := GetLinearTriangulatedPoints(pose, pts1, pts2)
	if err != nil {
		return 0, nil
	}
	nPositiveDepth := 0
	for _, pt := range pts3D {
		if pt.Z > 0 && rot3.Dot(pt.Sub(c)) > 0 {
			nPositiveDepth++
		}
	}
	return nPositiveDepth, pose
}

// GetCorrectCameraPose returns the best pose, which is the pose with the most positive depth values.
func GetCorrectCameraPose(poses []*mat.Dense, pts1, pts2 []r3.Vector) *mat.Dense {
	maxNumPosDepth := 0
	correctPose := poses[0]
	for _, pose := range poses {
		nPosDepth, candidate := GetNumberPositiveDepth(pose, pts1, pts2)
		if candidate != nil && nPosDepth > maxNumPosDepth {
			maxNumPosDepth = nPosDepth
			correctPose = mat.DenseCopyOf(candidate)
		}
	}
	return correctPose
}

// EstimateNewPose estimates the pose of the camera of the second set of
// points with respect to the camera of the first set. pts1 and pts2 are
// matched points from two views of the same scene.
func EstimateNewPose(pts1, pts2 []r2.Point, k1, k2 *mat.Dense) (*CamPose, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	fundamentalMatrix, err := ComputeFundamentalMatrixAllPoints(pts1, pts2, true)
	if err != nil {
		return nil, err
	}
	essentialMatrix, err := GetEssentialMatrixFromFundamental(k1, k2, fundamentalMatrix)
	if err != nil {
		return nil, err
	}
	poses, err := GetPossibleCameraPoses(essentialMatrix)
	if err != nil {
		return nil, err
	}
	pts1H := Convert2DPointsToHomogeneousPoints(normalizeByIntrinsics(pts1, k1))
	pts2H := Convert2DPointsToHomogeneousPoints(normalizeByIntrinsics(pts2, k2))
	pose := GetCorrectCameraPose(poses, pts1H, pts2H)
	return NewCamPoseFromMat(pose), nil
}

// normalizeByIntrinsics moves pixel coordinates into the normalized camera frame.
func normalizeByIntrinsics(pts []r2.Point, k *mat.Dense) []r2.Point {
	fx, fy := k.At(0, 0), k.At(1, 1)
	ppx, ppy := k.At(0, 2), k.At(1, 2)
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = r2.Point{X: (pt.X - ppx) / fx, Y: (pt.Y - ppy) / fy}
	}
	return out
}
