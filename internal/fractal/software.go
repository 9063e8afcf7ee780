package fractal

import "image/color"

// Black is the color of points that never escape.
var Black = color.RGBA{A: 255}

// Escape iterates z = z^2 + c from zero and returns the number of
// iterations performed before |z|^2 reached 4 or the budget ran out.
func Escape(cx, cy float64, maxIter uint32) uint32 {
	var zx, zy float64
	var iter uint32
	for zx*zx+zy*zy < 4.0 && iter < maxIter {
		tmp := zx*zx - zy*zy + cx
		zy = 2.0*zx*zy + cy
		zx = tmp
		iter++
	}
	return iter
}

// Shade maps an escape count to the kernel's palette.
func Shade(iter, maxIter uint32) color.RGBA {
	if iter >= maxIter {
		return Black
	}
	t := float64(iter) / float64(maxIter)
	s := 1.0 - t
	return color.RGBA{
		R: uint8(9.0*s*t*t*t*255.0 + 10),
		G: uint8(15.0*s*s*t*t*255.0 + 10),
		B: uint8(9.0*s*s*s*t*255.0 + 10),
		A: 255,
	}
}

// PixelToWorld maps the pixel grid coordinate (x, y) of req to the
// complex plane the same way the kernel does.
func PixelToWorld(req ComputeRequest, x, y int) (cx, cy float64) {
	cx = req.CenterX + (float64(x)-float64(req.Width)/2.0)*req.ScaleX
	cy = req.CenterY + (float64(y)-float64(req.Height)/2.0)*req.ScaleY
	return cx, cy
}

// Software evaluates the kernel on the CPU, one pixel at a time. It is the
// reference the GPU output is checked against and is never used as a
// fallback for a missing GPU.
type Software struct{}

var _ Pipeline = Software{}

// Render implements Pipeline.
func (Software) Render(req ComputeRequest) (PixelBuffer, error) {
	if err := req.Validate(); err != nil {
		return PixelBuffer{}, err
	}

	buf := NewPixelBuffer(int(req.Width), int(req.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			cx, cy := PixelToWorld(req, x, y)
			c := Shade(Escape(cx, cy, req.MaxIterations), req.MaxIterations)
			i := buf.Offset(x, y)
			buf.Pix[i] = c.R
			buf.Pix[i+1] = c.G
			buf.Pix[i+2] = c.B
			buf.Pix[i+3] = c.A
		}
	}
	return buf, nil
}
