// Package fractal defines the contract between the viewport controller and
// the compute pipeline: the per-frame request, the returned pixel buffer and
// the error taxonomy. It also carries the kernel source and a scalar
// reference of the kernel used to check GPU output.
package fractal

import (
	"fmt"
	"image"
	"image/color"
)

// BytesPerPixel is the RGBA stride of a PixelBuffer.
const BytesPerPixel = 4

// ComputeRequest fully describes one render.
type ComputeRequest struct {
	Width         uint32
	Height        uint32
	MaxIterations uint32

	CenterX float64
	CenterY float64

	// World units per pixel along each axis
	ScaleX float64
	ScaleY float64
}

// BufferSize returns the number of bytes the rendered image occupies.
func (r ComputeRequest) BufferSize() int {
	return int(r.Width) * int(r.Height) * BytesPerPixel
}

// Validate reports requests no pipeline can execute. A zero iteration
// budget is valid and renders every pixel black.
func (r ComputeRequest) Validate() error {
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("%w: image is %dx%d", ErrInvalidRequest, r.Width, r.Height)
	}
	return nil
}

// PixelBuffer is a row-major RGBA image with its origin at the top-left.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer allocates a zeroed buffer for a width x height image.
func NewPixelBuffer(width, height int) PixelBuffer {
	return PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Offset returns the index of the first byte of pixel (x, y).
func (b PixelBuffer) Offset(x, y int) int {
	return (y*b.Width + x) * BytesPerPixel
}

// At returns the color of pixel (x, y).
func (b PixelBuffer) At(x, y int) color.RGBA {
	i := b.Offset(x, y)
	return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: b.Pix[i+3]}
}

// Empty reports whether the buffer holds no image.
func (b PixelBuffer) Empty() bool {
	return b.Width == 0 || b.Height == 0 || len(b.Pix) == 0
}

// Image wraps the buffer as an *image.RGBA sharing the same bytes.
func (b PixelBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: b.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Pipeline produces a fully populated pixel buffer for a request.
type Pipeline interface {
	Render(req ComputeRequest) (PixelBuffer, error)
}
