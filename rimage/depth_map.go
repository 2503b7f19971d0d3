// Package rimage defines the raster types the rectification pipeline works
// on: up-to-scale depth maps and per-pixel surface normal fields.
package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DepthMap is a dense map of per-pixel scene depth, as estimated by a
// monocular depth network. Values are only meaningful up to an unknown
// positive scale relative to true metric depth; any quantity derived from
// depth magnitude (e.g. plane distance) carries the same unknown scale.
// A value <= 0 or NaN marks an invalid/unknown pixel.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns an all-invalid depth map of the given dimensions.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewDepthMapFromData wraps row-major depth data. The slice is retained.
func NewDepthMapFromData(width, height int, data []float64) (*DepthMap, error) {
	if len(data) != width*height {
		return nil, errors.Errorf("depth data length %d does not match %dx%d", len(data), width, height)
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// HasData reports whether the map holds any pixels.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.data != nil
}

// Width returns the width in pixels.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height in pixels.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the pixel bounds of the map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// In reports whether (x,y) lies inside the map.
func (dm *DepthMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// GetDepth returns the depth value at (x,y).
func (dm *DepthMap) GetDepth(x, y int) float64 {
	return dm.data[dm.kxy(x, y)]
}

// Get returns the depth value at p.
func (dm *DepthMap) Get(p image.Point) float64 {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// Set writes the depth value at (x,y).
func (dm *DepthMap) Set(x, y int, val float64) {
	dm.data[dm.kxy(x, y)] = val
}

// ValidDepth reports whether v is a usable depth value.
func ValidDepth(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidAt reports whether the pixel at (x,y) holds a usable depth value.
func (dm *DepthMap) ValidAt(x, y int) bool {
	return dm.In(x, y) && ValidDepth(dm.data[dm.kxy(x, y)])
}

// MinMax returns the smallest and largest valid depth values.
func (dm *DepthMap) MinMax() (float64, float64) {
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, z := range dm.data {
		if !ValidDepth(z) {
			continue
		}
		if z < min {
			min = z
		}
		if z > max {
			max = z
		}
	}
	return min, max
}

// Scaled returns a copy with every valid depth multiplied by c. Useful for
// exercising the scale ambiguity of monocular depth.
func (dm *DepthMap) Scaled(c float64) *DepthMap {
	out := NewEmptyDepthMap(dm.width, dm.height)
	for i, z := range dm.data {
		if ValidDepth(z) {
			out.data[i] = z * c
		} else {
			out.data[i] = z
		}
	}
	return out
}

// ToGrayPicture renders the depth map to an 8-bit grayscale image for
// inspection, near depths bright and far depths dark. Invalid pixels are black.
func (dm *DepthMap) ToGrayPicture() *image.Gray {
	img := image.NewGray(dm.Bounds())
	min, max := dm.MinMax()
	span := max - min
	if span <= 0 {
		span = 1
	}
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			z := dm.GetDepth(x, y)
			if !ValidDepth(z) {
				continue
			}
			ratio := (z - min) / span
			img.SetGray(x, y, color.Gray{Y: 255 - uint8(ratio*255)})
		}
	}
	return img
}

// ParseDepthMap reads a depth map from a file, gunzipping if the file ends
// in .gz.
func ParseDepthMap(fn string) (*DepthMap, error) {
	var f io.Reader

	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(fn) == ".gz" {
		f, err = gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
	}

	return ReadDepthMap(bufio.NewReader(f))
}

// ReadDepthMap reads the binary depth format: two little-endian uint64s for
// width and height, then width*height little-endian float64s in row-major
// order.
func ReadDepthMap(r *bufio.Reader) (*DepthMap, error) {
	rawWidth, err := readNextUint64(r)
	if err != nil {
		return nil, err
	}
	rawHeight, err := readNextUint64(r)
	if err != nil {
		return nil, err
	}
	width, height := int(rawWidth), int(rawHeight)
	if width <= 0 || width >= 100000 || height <= 0 || height >= 100000 {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}

	dm := NewEmptyDepthMap(width, height)
	buf := make([]byte, 8)
	for i := range dm.data {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrapf(err, "short depth map, read %d of %d values", i, len(dm.data))
		}
		dm.data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	}
	return dm, nil
}

// WriteToFile writes the depth map to a file, gzipping if the file ends
// in .gz.
func (dm *DepthMap) WriteToFile(fn string) error {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer f.Close()

	var gout *gzip.Writer
	var out io.Writer = f

	if filepath.Ext(fn) == ".gz" {
		gout = gzip.NewWriter(f)
		out = gout
		//nolint:errcheck
		defer gout.Close()
	}

	if err := dm.WriteTo(out); err != nil {
		return err
	}

	if gout != nil {
		if err := gout.Flush(); err != nil {
			return err
		}
	}
	return f.Sync()
}

// WriteTo writes the binary depth format to out.
func (dm *DepthMap) WriteTo(out io.Writer) error {
	buf := make([]byte, 8)

	binary.LittleEndian.PutUint64(buf, uint64(dm.width))
	if _, err := out.Write(buf); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf, uint64(dm.height))
	if _, err := out.Write(buf); err != nil {
		return err
	}

	for _, z := range dm.data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(z))
		if _, err := out.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func readNextUint64(r io.Reader) (uint64, error) {
	data := make([]byte, 8)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, errors.Wrap(err, "cannot read depth map header")
	}
	return binary.LittleEndian.Uint64(data), nil
}
