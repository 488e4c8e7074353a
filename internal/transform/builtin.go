package transform

import "github.com/andresmejia3/posepipe/internal/types"

// Identity returns a copy of the frame.
func Identity(f types.Frame) (types.Frame, error) {
	if err := f.Validate(); err != nil {
		return types.Frame{}, err
	}
	return f.Clone(), nil
}

// Invert inverts the color channels and keeps alpha.
func Invert(f types.Frame) (types.Frame, error) {
	if err := f.Validate(); err != nil {
		return types.Frame{}, err
	}
	out := f.Clone()
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255 - out.Pix[i]
		out.Pix[i+1] = 255 - out.Pix[i+1]
		out.Pix[i+2] = 255 - out.Pix[i+2]
	}
	return out, nil
}

// Grayscale converts to luma using integer BT.601 weights.
func Grayscale(f types.Frame) (types.Frame, error) {
	if err := f.Validate(); err != nil {
		return types.Frame{}, err
	}
	out := f.Clone()
	for i := 0; i < len(out.Pix); i += 4 {
		r, g, b := uint32(out.Pix[i]), uint32(out.Pix[i+1]), uint32(out.Pix[i+2])
		y := uint8((299*r + 587*g + 114*b + 500) / 1000)
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = y, y, y
	}
	return out, nil
}

// Mirror flips the frame horizontally.
func Mirror(f types.Frame) (types.Frame, error) {
	if err := f.Validate(); err != nil {
		return types.Frame{}, err
	}
	out := types.NewFrame(f.Geometry())
	stride := f.Width * 4
	for y := 0; y < f.Height; y++ {
		row := y * stride
		for x := 0; x < f.Width; x++ {
			src := row + x*4
			dst := row + (f.Width-1-x)*4
			copy(out.Pix[dst:dst+4], f.Pix[src:src+4])
		}
	}
	return out, nil
}
