package transform

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/planerect/planerect/rimage"
	"github.com/planerect/planerect/utils"
)

// NeighborhoodMode selects how local surface tangents are estimated from the
// depth map.
type NeighborhoodMode string

const (
	// CrossNeighborhood uses central differences over the 4-neighborhood.
	CrossNeighborhood = NeighborhoodMode("cross")
	// SobelNeighborhood uses Sobel-weighted differences over the full 3x3
	// window, trading border coverage for noise robustness.
	SobelNeighborhood = NeighborhoodMode("sobel")
)

// sobel 3x3 kernels, indexed [dy+1][dx+1]
var (
	sobelX = [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY = [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
)

// DepthMapToNormalField estimates a per-pixel surface normal field from an
// up-to-scale depth map. Pixels are back-projected through the pinhole model
// and the normal is the cross product of the local horizontal and vertical
// tangents, oriented to face the camera. Border pixels and pixels adjacent
// to invalid depth get an invalid normal; a depth map with no usable
// neighborhoods yields an all-invalid field, not an error.
//
// Because the input depth is only known up to a positive scale, normal
// directions are exact but any magnitude derived from them (such as plane
// distance along a ray) carries the same unknown scale.
func DepthMapToNormalField(
	dm *rimage.DepthMap,
	params *PinholeCameraIntrinsics,
	mode NeighborhoodMode,
) (*rimage.NormalField, error) {
	if dm == nil || !dm.HasData() {
		return nil, errors.New("cannot estimate normals: no depth data")
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if mode != CrossNeighborhood && mode != SobelNeighborhood {
		return nil, errors.Errorf("unknown neighborhood mode %q", mode)
	}

	nf := rimage.NewNormalField(dm.Width(), dm.Height())
	utils.ParallelForEachPixel(image.Point{dm.Width(), dm.Height()}, func(x, y int) {
		var n r3.Vector
		var ok bool
		switch mode {
		case CrossNeighborhood:
			n, ok = crossNormal(dm, params, x, y)
		case SobelNeighborhood:
			n, ok = sobelNormal(dm, params, x, y)
		}
		if !ok {
			return
		}
		norm := n.Norm()
		if norm < 1e-12 {
			return
		}
		n = n.Mul(1 / norm)
		// orient outward: the normal must face the camera
		if n.Dot(viewRayAt(dm, params, x, y)) > 0 {
			n = n.Mul(-1)
		}
		nf.Set(x, y, n)
	})
	return nf, nil
}

func viewRayAt(dm *rimage.DepthMap, params *PinholeCameraIntrinsics, x, y int) r3.Vector {
	return params.ViewRay(float64(x), float64(y))
}

func backProject(dm *rimage.DepthMap, params *PinholeCameraIntrinsics, x, y int) (r3.Vector, bool) {
	if !dm.ValidAt(x, y) {
		return r3.Vector{}, false
	}
	px, py, pz := params.PixelToPoint(float64(x), float64(y), dm.GetDepth(x, y))
	return r3.Vector{X: px, Y: py, Z: pz}, true
}

// crossNormal estimates the normal from central differences over the
// 4-neighborhood.
func crossNormal(dm *rimage.DepthMap, params *PinholeCameraIntrinsics, x, y int) (r3.Vector, bool) {
	left, ok := backProject(dm, params, x-1, y)
	if !ok {
		return r3.Vector{}, false
	}
	right, ok := backProject(dm, params, x+1, y)
	if !ok {
		return r3.Vector{}, false
	}
	up, ok := backProject(dm, params, x, y-1)
	if !ok {
		return r3.Vector{}, false
	}
	down, ok := backProject(dm, params, x, y+1)
	if !ok {
		return r3.Vector{}, false
	}
	if !dm.ValidAt(x, y) {
		return r3.Vector{}, false
	}
	tangentH := right.Sub(left)
	tangentV := down.Sub(up)
	return tangentH.Cross(tangentV), true
}

// sobelNormal estimates the tangents with Sobel weights over the full 3x3
// window.
func sobelNormal(dm *rimage.DepthMap, params *PinholeCameraIntrinsics, x, y int) (r3.Vector, bool) {
	if !dm.ValidAt(x, y) {
		return r3.Vector{}, false
	}
	var tangentH, tangentV r3.Vector
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			wx := sobelX[dy+1][dx+1]
			wy := sobelY[dy+1][dx+1]
			if wx == 0 && wy == 0 {
				continue
			}
			p, ok := backProject(dm, params, x+dx, y+dy)
			if !ok {
				return r3.Vector{}, false
			}
			tangentH = tangentH.Add(p.Mul(wx))
			tangentV = tangentV.Add(p.Mul(wy))
		}
	}
	return tangentH.Cross(tangentV), true
}
