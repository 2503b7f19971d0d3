package rimage

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
)

// NormalField stores one estimated surface normal per pixel of a depth map.
// Valid entries are unit vectors (within numeric tolerance); the zero vector
// tags a pixel whose normal could not be estimated. A field is immutable
// once filled by its producer.
type NormalField struct {
	width  int
	height int

	data []r3.Vector
}

// UnitNormTolerance is the tolerance within which valid normals are unit norm.
const UnitNormTolerance = 1e-5

// NewNormalField returns an all-invalid normal field of the given dimensions.
func NewNormalField(width, height int) *NormalField {
	return &NormalField{
		width:  width,
		height: height,
		data:   make([]r3.Vector, width*height),
	}
}

func (nf *NormalField) kxy(x, y int) int {
	return (y * nf.width) + x
}

// Width returns the width in pixels.
func (nf *NormalField) Width() int {
	return nf.width
}

// Height returns the height in pixels.
func (nf *NormalField) Height() int {
	return nf.height
}

// Bounds returns the pixel bounds of the field.
func (nf *NormalField) Bounds() image.Rectangle {
	return image.Rect(0, 0, nf.width, nf.height)
}

// Get returns the normal at (x,y), the zero vector if invalid.
func (nf *NormalField) Get(x, y int) r3.Vector {
	return nf.data[nf.kxy(x, y)]
}

// Set writes the normal at (x,y). Producers must only store unit vectors or
// the zero vector.
func (nf *NormalField) Set(x, y int, n r3.Vector) {
	nf.data[nf.kxy(x, y)] = n
}

// ValidAt reports whether the pixel at (x,y) holds a usable normal.
func (nf *NormalField) ValidAt(x, y int) bool {
	n := nf.data[nf.kxy(x, y)]
	return n.X != 0 || n.Y != 0 || n.Z != 0
}

// CountValid returns the number of pixels with a usable normal.
func (nf *NormalField) CountValid() int {
	count := 0
	for _, n := range nf.data {
		if n.X != 0 || n.Y != 0 || n.Z != 0 {
			count++
		}
	}
	return count
}

// EachValid calls f for every pixel holding a usable normal.
func (nf *NormalField) EachValid(f func(x, y int, n r3.Vector)) {
	for y := 0; y < nf.height; y++ {
		for x := 0; x < nf.width; x++ {
			n := nf.data[nf.kxy(x, y)]
			if n.X != 0 || n.Y != 0 || n.Z != 0 {
				f(x, y, n)
			}
		}
	}
}

// AngleBetween returns the angle in radians between two unit vectors.
func AngleBetween(a, b r3.Vector) float64 {
	dot := a.Dot(b)
	// guard acos against numeric drift outside [-1, 1]
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}
