package rectification

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/planerect/planerect/rimage/transform"
	"github.com/planerect/planerect/utils"
)

// maxClipIterations bounds the clip shrink loop; the homography is
// projective so the fit is found iteratively.
const maxClipIterations = 12

// RectifiedRegion is a plane region warped to a fronto-parallel view,
// together with the mappings between canvas and source coordinates.
type RectifiedRegion struct {
	// ClusterID is the plane cluster the region was cut from.
	ClusterID int
	// Image is the warped canvas; dimensions never exceed the configured cap.
	Image *image.Gray
	// Source is the source-image rectangle that was warped. Under the clip
	// policy it can be smaller than requested.
	Source image.Rectangle
	// Forward maps source coordinates to canvas coordinates.
	Forward *transform.Homography
	// Inverse maps canvas coordinates back to source coordinates.
	Inverse *transform.Homography
}

// projectedExtent pushes the corners of rect through h and returns the
// bounding box of the projections.
func projectedExtent(h *transform.Homography, rect image.Rectangle) (minX, minY, maxX, maxY float64) {
	corners := []r2.Point{
		{X: float64(rect.Min.X), Y: float64(rect.Min.Y)},
		{X: float64(rect.Max.X - 1), Y: float64(rect.Min.Y)},
		{X: float64(rect.Min.X), Y: float64(rect.Max.Y - 1)},
		{X: float64(rect.Max.X - 1), Y: float64(rect.Max.Y - 1)},
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		p := h.Apply(c)
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

// shrinkRect scales the rectangle extents around its center, keeping at
// least one pixel.
func shrinkRect(rect image.Rectangle, factor float64) image.Rectangle {
	cx := float64(rect.Min.X+rect.Max.X) / 2
	cy := float64(rect.Min.Y+rect.Max.Y) / 2
	halfW := float64(rect.Dx()) / 2 * factor
	halfH := float64(rect.Dy()) / 2 * factor
	if halfW < 0.5 {
		halfW = 0.5
	}
	if halfH < 0.5 {
		halfH = 0.5
	}
	return image.Rect(
		int(math.Floor(cx-halfW)), int(math.Floor(cy-halfH)),
		int(math.Ceil(cx+halfW)), int(math.Ceil(cy+halfH)),
	)
}

// WarpBounded warps the given source rectangle of img through h onto a
// canvas whose dimensions never exceed maxDim. The projected extent is
// checked before any canvas is materialized; an oversized projection is
// clipped or rejected per policy. Pixels whose inverse mapping falls outside
// the source rectangle are left black.
func WarpBounded(
	img *image.Gray,
	source image.Rectangle,
	h *transform.Homography,
	clusterID int,
	maxDim int,
	interp Interpolation,
	policy BoundPolicy,
) (*RectifiedRegion, error) {
	source = source.Intersect(img.Bounds())
	if source.Empty() {
		return nil, errors.New("source region is empty")
	}

	// the bound is enforced on the integer canvas dimensions, not the
	// fractional extent: a half-pixel overhang still costs a full pixel
	minX, minY, maxX, maxY := projectedExtent(h, source)
	width := int(math.Ceil(maxX)) - int(math.Floor(minX)) + 1
	height := int(math.Ceil(maxY)) - int(math.Floor(minY)) + 1
	for iter := 0; width > maxDim || height > maxDim; iter++ {
		if policy == RejectPolicy {
			return nil, errors.Wrapf(ErrResourceBound,
				"projected canvas %dx%d exceeds cap %d", width, height, maxDim)
		}
		if iter >= maxClipIterations || source.Dx() <= 1 && source.Dy() <= 1 {
			return nil, errors.Wrapf(ErrResourceBound,
				"cannot clip source region under cap %d", maxDim)
		}
		factor := math.Min(
			float64(maxDim)/float64(width),
			float64(maxDim)/float64(height),
		)
		// projective scaling is not linear, shrink conservatively
		shrunk := shrinkRect(source, math.Min(factor, 0.9)).Intersect(img.Bounds())
		if shrunk.Dx() >= source.Dx() && shrunk.Dy() >= source.Dy() {
			// outward rounding can swallow a mild shrink; force progress
			shrunk = source.Inset(1)
		}
		source = shrunk
		if source.Empty() {
			return nil, errors.Wrapf(ErrResourceBound, "cannot clip source region under cap %d", maxDim)
		}
		minX, minY, maxX, maxY = projectedExtent(h, source)
		width = int(math.Ceil(maxX)) - int(math.Floor(minX)) + 1
		height = int(math.Ceil(maxY)) - int(math.Floor(minY)) + 1
	}

	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	offsetX := math.Floor(minX)
	offsetY := math.Floor(minY)

	// forward = T h, T the canvas translation
	shift, err := transform.NewHomography([]float64{
		1, 0, -offsetX,
		0, 1, -offsetY,
		0, 0, 1,
	})
	if err != nil {
		return nil, err
	}
	forward, err := shift.Compose(h)
	if err != nil {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "cannot compose canvas shift: %v", err)
	}
	inverse, err := forward.Inverse()
	if err != nil {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "homography is not invertible: %v", err)
	}

	canvas := image.NewGray(image.Rect(0, 0, width, height))
	utils.ParallelForEachPixel(image.Point{width, height}, func(x, y int) {
		src := inverse.Apply(r2.Point{X: float64(x), Y: float64(y)})
		if src.X < float64(source.Min.X) || src.X > float64(source.Max.X-1) ||
			src.Y < float64(source.Min.Y) || src.Y > float64(source.Max.Y-1) {
			return
		}
		var v float64
		if interp == NearestInterpolation {
			v = float64(img.GrayAt(int(math.Round(src.X)), int(math.Round(src.Y))).Y)
		} else {
			v = bilinearGray(img, src.X, src.Y)
		}
		canvas.SetGray(x, y, color.Gray{uint8(utils.ClampF64(v, 0, 255))})
	})

	return &RectifiedRegion{
		ClusterID: clusterID,
		Image:     canvas,
		Source:    source,
		Forward:   forward,
		Inverse:   inverse,
	}, nil
}

// bilinearGray samples the image at a fractional position with bilinear
// area weighting.
func bilinearGray(img *image.Gray, x, y float64) float64 {
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	total := 0.0
	for _, p := range [4][2]int{{x0, y0}, {x0 + 1, y0}, {x0, y0 + 1}, {x0 + 1, y0 + 1}} {
		dx := 1 - math.Abs(float64(p[0])-x)
		dy := 1 - math.Abs(float64(p[1])-y)
		if dx < 0 || dy < 0 {
			continue
		}
		total += float64(img.GrayAt(p[0], p[1]).Y) * dx * dy
	}
	return total
}

// BackMap maps a canvas point back into source-image coordinates. The
// returned flag is false when the point lands outside the image; the point
// is never clamped.
func (rr *RectifiedRegion) BackMap(p r2.Point, imgBounds image.Rectangle) (r2.Point, bool) {
	src := rr.Inverse.Apply(p)
	inside := src.X >= float64(imgBounds.Min.X) && src.X <= float64(imgBounds.Max.X-1) &&
		src.Y >= float64(imgBounds.Min.Y) && src.Y <= float64(imgBounds.Max.Y-1)
	return src, inside
}
