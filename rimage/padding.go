package rimage

import (
	"image"

	"github.com/pkg/errors"
)

// BorderPad selects how pixels outside the image are synthesized when
// padding for a convolution.
type BorderPad int

const (
	// BorderConstant pads with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate pads with the nearest edge pixel.
	BorderReplicate
	// BorderReflect pads with the mirror image of the rows and columns
	// adjacent to the border.
	BorderReflect
)

// PaddingGray pads a grayscale image for a convolution with the given kernel
// size and anchor. The anchor is the kernel position that lands on the source
// pixel, so the padding is anchor on the leading sides and size-1-anchor on
// the trailing sides.
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if kernelSize.X < 1 || kernelSize.Y < 1 {
		return nil, errors.Errorf("invalid kernel size %v", kernelSize)
	}
	if anchor.X < 0 || anchor.X >= kernelSize.X || anchor.Y < 0 || anchor.Y >= kernelSize.Y {
		return nil, errors.Errorf("anchor %v outside kernel of size %v", anchor, kernelSize)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	left, top := anchor.X, anchor.Y
	right, bottom := kernelSize.X-1-anchor.X, kernelSize.Y-1-anchor.Y

	padded := image.NewGray(image.Rect(0, 0, w+left+right, h+top+bottom))
	for y := 0; y < h+top+bottom; y++ {
		for x := 0; x < w+left+right; x++ {
			sx, sy := x-left, y-top
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				padded.SetGray(x, y, img.GrayAt(img.Bounds().Min.X+sx, img.Bounds().Min.Y+sy))
				continue
			}
			switch border {
			case BorderConstant:
				// zero already
			case BorderReplicate:
				cx := clampIndex(sx, w)
				cy := clampIndex(sy, h)
				padded.SetGray(x, y, img.GrayAt(img.Bounds().Min.X+cx, img.Bounds().Min.Y+cy))
			case BorderReflect:
				rx := reflectIndex(sx, w)
				ry := reflectIndex(sy, h)
				padded.SetGray(x, y, img.GrayAt(img.Bounds().Min.X+rx, img.Bounds().Min.Y+ry))
			}
		}
	}
	return padded, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
