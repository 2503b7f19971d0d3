package rimage

import (
	"image"
	"image/color"

	"github.com/planerect/planerect/utils"
)

// Kernel is a 2D convolution kernel.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// At returns the kernel coefficient at (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the kernel dimensions.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// Sum returns the sum of all coefficients.
func (k *Kernel) Sum() float64 {
	sum := 0.0
	for _, row := range k.Content {
		for _, v := range row {
			sum += v
		}
	}
	return sum
}

// Normalize returns a copy of the kernel scaled so its coefficients sum to 1.
// A zero-sum kernel is returned unchanged.
func (k *Kernel) Normalize() *Kernel {
	sum := k.Sum()
	if sum == 0 {
		sum = 1
	}
	content := make([][]float64, k.Height)
	for y := range content {
		content[y] = make([]float64, k.Width)
		for x := range content[y] {
			content[y][x] = k.Content[y][x] / sum
		}
	}
	return &Kernel{content, k.Width, k.Height}
}

// GetSobelX returns the Sobel kernel in the x direction.
func GetSobelX() *Kernel {
	return &Kernel{[][]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}, 3, 3}
}

// GetSobelY returns the Sobel kernel in the y direction.
func GetSobelY() *Kernel {
	return &Kernel{[][]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}, 3, 3}
}

// GetGaussian5 returns the 5x5 binomial approximation of a Gaussian kernel.
// Normalize before convolving to preserve image brightness.
func GetGaussian5() *Kernel {
	return &Kernel{[][]float64{
		{1, 4, 6, 4, 1},
		{4, 16, 24, 16, 4},
		{6, 24, 36, 24, 6},
		{4, 16, 24, 16, 4},
		{1, 4, 6, 4, 1},
	}, 5, 5}
}

// ConvolveGray applies a convolution kernel to a grayscale image. The anchor
// is the kernel position that lands on the output pixel.
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	kernelSize := kernel.Size()
	padded, err := PaddingGray(img, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	originalSize := img.Bounds().Size()
	resultImage := image.NewGray(image.Rect(0, 0, originalSize.X, originalSize.Y))
	utils.ParallelForEachPixel(originalSize, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				pixel := padded.GrayAt(x+kx, y+ky)
				sum += float64(pixel.Y) * kernel.At(kx, ky)
			}
		}
		sum = utils.ClampF64(sum, 0, 255)
		resultImage.SetGray(x, y, color.Gray{uint8(sum)})
	})
	return resultImage, nil
}
