// Package imageio reads and writes page images and masks. PNG, JPEG, BMP and
// TIFF are supported both ways; WebP can only be read.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/inkclean/raster"
)

// ErrUnsupportedFormat is returned when an output format cannot be written.
var ErrUnsupportedFormat = errors.New("imageio: unsupported format")

// DefaultJPEGQuality is used by Save for .jpg/.jpeg paths.
const DefaultJPEGQuality = 95

// Format names an encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WebP Format = "webp"
)

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".jpg", ".jpeg":
		return JPEG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	case ".webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Decode reads any registered format and returns it as a gray or RGB image.
func Decode(r io.Reader) (*raster.Image, Format, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("imageio: decode: %w", err)
	}
	return raster.FromImage(img), Format(format), nil
}

// Load decodes the image file at path.
func Load(path string) (*raster.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := Decode(f)
	return img, err
}

// LoadMask decodes a mask file. Pixels are selected by luminance and fully
// transparent pixels are ignored.
func LoadMask(path string) (*raster.Mask, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode mask: %w", err)
	}
	return raster.MaskFromImage(img), nil
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("imageio: encode %s: %w", format, err)
	}
	return nil
}

// Save writes img to path, choosing the format from the extension.
func Save(path string, img *raster.Image) error {
	return save(path, img.ToStdImage())
}

// SaveMask writes m as a grayscale image.
func SaveMask(path string, m *raster.Mask) error {
	return save(path, m.ToStdImage())
}

func save(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format == WebP {
		return fmt.Errorf("%w: webp output", ErrUnsupportedFormat)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("imageio: create file: %w", err)
	}
	if err := Encode(f, img, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
