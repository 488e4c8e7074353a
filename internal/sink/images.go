package sink

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/andresmejia3/posepipe/internal/types"
)

var encoders = map[string]func(io.Writer, image.Image) error{
	"png":  png.Encode,
	"jpg":  encodeJPEG,
	"bmp":  bmp.Encode,
	"tiff": encodeTIFF,
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}

func encodeTIFF(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

// ImageDir writes frame_000000.<ext>, frame_000001.<ext>, ... into a directory.
type ImageDir struct {
	dir    string
	ext    string
	encode func(io.Writer, image.Image) error
	geom   types.Geometry
	next   int
}

// NewImageDir creates dir if needed. format is one of png, jpg, bmp, tiff.
func NewImageDir(dir, format string, g types.Geometry) (*ImageDir, error) {
	enc, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ImageDir{dir: dir, ext: format, encode: enc, geom: g}, nil
}

func (s *ImageDir) Write(f types.Frame) error {
	if err := checkGeometry(s.geom, f); err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.%s", s.next, s.ext))
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.encode(out, f.Image()); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	s.next++
	return nil
}

// Written is the number of images on disk.
func (s *ImageDir) Written() int { return s.next }

func (s *ImageDir) Close() error { return nil }
