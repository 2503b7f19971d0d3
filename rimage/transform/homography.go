package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SingularDeterminantFloor is the determinant magnitude below which a 3x3
// projective transform is treated as singular and rejected.
const SingularDeterminantFloor = 1e-10

// Homography is an invertible 3x3 projective transform between pixel
// coordinate frames.
type Homography struct {
	matrix *mat.Dense
}

// NewHomography creates a Homography from a slice of 9 floats in row-major
// order. It rejects matrices whose determinant is below the numeric floor
// rather than constructing a near-singular transform.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	return NewHomographyFromMat(mat.NewDense(3, 3, vals))
}

// NewHomographyFromMat creates a Homography from a 3x3 gonum matrix, copying
// the data. The same determinant floor applies.
func NewHomographyFromMat(m *mat.Dense) (*Homography, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("homography matrix must be 3x3, got %dx%d", r, c)
	}
	if det := math.Abs(mat.Det(m)); det < SingularDeterminantFloor {
		return nil, errors.Errorf("homography is singular within numeric floor (|det| = %v)", det)
	}
	return &Homography{matrix: mat.DenseCopyOf(m)}, nil
}

// At returns the value of the homography at the given index.
func (h *Homography) At(row, col int) float64 {
	return h.matrix.At(row, col)
}

// Mat returns a copy of the underlying 3x3 matrix.
func (h *Homography) Mat() *mat.Dense {
	return mat.DenseCopyOf(h.matrix)
}

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Inverse returns the homography that undoes this one.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.matrix); err != nil {
		return nil, errors.Wrap(err, "cannot invert homography")
	}
	return NewHomographyFromMat(&inv)
}

// ConditionNumber returns the 2-norm condition number of the transform, the
// ratio of its largest to smallest singular value.
func (h *Homography) ConditionNumber() float64 {
	var svd mat.SVD
	if ok := svd.Factorize(h.matrix, mat.SVDThin); !ok {
		return math.Inf(1)
	}
	values := svd.Values(nil)
	smallest := values[len(values)-1]
	if smallest == 0 {
		return math.Inf(1)
	}
	return values[0] / smallest
}

// Compose returns the homography applying other first, then h.
func (h *Homography) Compose(other *Homography) (*Homography, error) {
	var out mat.Dense
	out.Mul(h.matrix, other.matrix)
	return NewHomographyFromMat(&out)
}
