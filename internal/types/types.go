package types

import (
	"fmt"
	"image"
	"image/draw"
)

// Geometry describes the pixel dimensions of a frame.
type Geometry struct {
	Width  int
	Height int
}

// FrameSize returns the number of bytes an RGBA frame of this geometry occupies.
func (g Geometry) FrameSize() int {
	return g.Width * g.Height * 4
}

// Empty reports whether the geometry has no area.
func (g Geometry) Empty() bool {
	return g.Width <= 0 || g.Height <= 0
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Frame is a raw RGBA pixel buffer (stride = Width*4).
// Frames are treated as immutable once produced; transforms return new frames.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrame allocates a zeroed (black, transparent) frame.
func NewFrame(g Geometry) Frame {
	return Frame{Width: g.Width, Height: g.Height, Pix: make([]byte, g.FrameSize())}
}

// BlankFrame returns an opaque black frame, used for slots that produced no result.
func BlankFrame(g Geometry) Frame {
	f := NewFrame(g)
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = 255
	}
	return f
}

// FrameFromImage copies any image into an RGBA frame.
func FrameFromImage(img image.Image) Frame {
	b := img.Bounds()
	f := NewFrame(Geometry{Width: b.Dx(), Height: b.Dy()})
	// Fast path for images that are already RGBA with a tight stride
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == b.Dx()*4 && rgba.Rect.Min == (image.Point{}) {
		copy(f.Pix, rgba.Pix)
		return f
	}
	dst := f.Image()
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return f
}

// Geometry returns the frame's dimensions.
func (f Frame) Geometry() Geometry {
	return Geometry{Width: f.Width, Height: f.Height}
}

// Image wraps the pixel buffer in an image.RGBA without copying.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Validate checks that the buffer length matches the declared geometry.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Geometry().FrameSize() {
		return fmt.Errorf("frame buffer is %d bytes, expected %d for %s", len(f.Pix), f.Geometry().FrameSize(), f.Geometry())
	}
	return nil
}

// IndexedItem pairs a payload with its dense, zero-based sequence index.
// Identity and reassembly order are by Index only.
type IndexedItem[T any] struct {
	Index   int
	Payload T
}

// Outcome is what a worker reports for one index: a transformed frame, or a
// tombstone carrying the failure.
type Outcome struct {
	Frame Frame
	Err   error
}

// Failed reports whether the outcome is a tombstone.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
