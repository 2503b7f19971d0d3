package segmentation

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// UpsampleLabels rescales a label map to the given resolution with
// nearest-neighbor sampling, for depth maps computed at a lower resolution
// than the image to rectify. Labels are categorical so no interpolation is
// ever applied. Shrinking is allowed.
func UpsampleLabels(labels *ClusterLabels, width, height int) (*ClusterLabels, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target resolution %dx%d", width, height)
	}
	if labels.Width() == width && labels.Height() == height {
		return labels, nil
	}

	// labels are small non-negative ints (plus ResidualLabel), so they fit a
	// 16-bit gray channel shifted by one
	src := image.NewGray16(image.Rect(0, 0, labels.Width(), labels.Height()))
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			label := labels.Get(x, y)
			if label < ResidualLabel || label > 0xfffe {
				return nil, errors.Errorf("label %d at (%d,%d) out of range", label, x, y)
			}
			src.SetGray16(x, y, color.Gray16{Y: uint16(label + 1)})
		}
	}

	dst := image.NewGray16(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := NewClusterLabels(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := dst.Gray16At(x, y).Y
			out.Set(x, y, int(v)-1)
		}
	}
	return out, nil
}
