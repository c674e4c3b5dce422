package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// ErrSizeMismatch is returned when an image and its mask do not share the same
// dimensions.
var ErrSizeMismatch = errors.New("image and mask dimensions differ")

// Image is an 8-bit raster stored row-major with interleaved channels.
// Channels is 1 (grayscale) or 3 (RGB).
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewImage allocates a zeroed image.
func NewImage(width, height, channels int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Stride returns the number of samples in one row.
func (im *Image) Stride() int { return im.Width * im.Channels }

// Empty reports whether the image has no pixels.
func (im *Image) Empty() bool { return im == nil || im.Width <= 0 || im.Height <= 0 }

// Bounds returns the image rectangle anchored at the origin.
func (im *Image) Bounds() image.Rectangle { return image.Rect(0, 0, im.Width, im.Height) }

// Row returns the samples of row y. The slice aliases the image.
func (im *Image) Row(y int) []uint8 {
	s := im.Stride()
	return im.Pix[y*s : (y+1)*s]
}

// Rows returns the samples of rows [start, end). The slice aliases the image.
func (im *Image) Rows(start, end int) []uint8 {
	s := im.Stride()
	return im.Pix[start*s : end*s]
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := &Image{Width: im.Width, Height: im.Height, Channels: im.Channels}
	out.Pix = append([]uint8(nil), im.Pix...)
	return out
}

// CropRows copies rows [start, end) into a new image.
func (im *Image) CropRows(start, end int) *Image {
	out := NewImage(im.Width, end-start, im.Channels)
	copy(out.Pix, im.Rows(start, end))
	return out
}

// ToRGB returns a 3-channel copy of the image. RGB inputs are cloned.
func (im *Image) ToRGB() *Image {
	if im.Channels == 3 {
		return im.Clone()
	}
	out := NewImage(im.Width, im.Height, 3)
	for i, v := range im.Pix {
		out.Pix[3*i] = v
		out.Pix[3*i+1] = v
		out.Pix[3*i+2] = v
	}
	return out
}

// WithChannels converts the image to the requested channel count.
func (im *Image) WithChannels(channels int) *Image {
	switch {
	case im.Channels == channels:
		return im
	case channels == 3:
		return im.ToRGB()
	default:
		return &Image{Width: im.Width, Height: im.Height, Channels: 1, Pix: im.Gray()}
	}
}

// Gray returns a luma plane (ITU-R BT.601 weights) of width*height samples.
func (im *Image) Gray() []uint8 {
	n := im.Width * im.Height
	if im.Channels == 1 {
		return append([]uint8(nil), im.Pix[:n]...)
	}
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		p := im.Pix[3*i : 3*i+3]
		out[i] = luma(p[0], p[1], p[2])
	}
	return out
}

// Saturation returns the HSV saturation plane scaled to 0..255. Grayscale
// images have zero saturation everywhere.
func (im *Image) Saturation() []uint8 {
	n := im.Width * im.Height
	out := make([]uint8, n)
	if im.Channels != 3 {
		return out
	}
	for i := 0; i < n; i++ {
		p := im.Pix[3*i : 3*i+3]
		hi := max(p[0], p[1], p[2])
		if hi == 0 {
			continue
		}
		lo := min(p[0], p[1], p[2])
		out[i] = uint8((int(hi-lo)*255 + int(hi)/2) / int(hi))
	}
	return out
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}

// FromImage converts any image.Image. Grayscale sources stay single channel;
// everything else becomes RGB. Translucent pixels are composited onto white,
// the background of a scanned page.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	switch s := src.(type) {
	case *image.Gray:
		out := NewImage(w, h, 1)
		for y := 0; y < h; y++ {
			off := s.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Row(y), s.Pix[off:off+w])
		}
		return out
	case *image.RGBA:
		return fromRGBA(s)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Over)
	return fromRGBA(rgba)
}

func fromRGBA(s *image.RGBA) *Image {
	b := s.Bounds()
	w, h := b.Dx(), b.Dy()
	out := NewImage(w, h, 3)
	for y := 0; y < h; y++ {
		off := s.PixOffset(b.Min.X, b.Min.Y+y)
		row := out.Row(y)
		for x := 0; x < w; x++ {
			px := s.Pix[off+4*x : off+4*x+4]
			// Premultiplied: c + (255-a) is c over white.
			bg := 255 - px[3]
			row[3*x], row[3*x+1], row[3*x+2] = px[0]+bg, px[1]+bg, px[2]+bg
		}
	}
	return out
}

// ToStdImage returns an *image.Gray or opaque *image.RGBA copy.
func (im *Image) ToStdImage() image.Image {
	if im.Channels == 1 {
		g := image.NewGray(im.Bounds())
		copy(g.Pix, im.Pix)
		return g
	}
	rgba := image.NewRGBA(im.Bounds())
	n := im.Width * im.Height
	for i := 0; i < n; i++ {
		copy(rgba.Pix[4*i:4*i+3], im.Pix[3*i:3*i+3])
		rgba.Pix[4*i+3] = 0xff
	}
	return rgba
}

// Mask is a single-channel selection buffer; non-zero samples are selected.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask allocates an all-zero mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// MaskFor allocates an all-zero mask matching the image dimensions.
func MaskFor(im *Image) *Mask { return NewMask(im.Width, im.Height) }

// Bounds returns the mask rectangle anchored at the origin.
func (m *Mask) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

// At returns the sample at (x, y), or 0 outside the mask.
func (m *Mask) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Pix[y*m.Width+x]
}

// Set writes a sample; coordinates outside the mask are ignored.
func (m *Mask) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = v
}

// Row returns the samples of row y. The slice aliases the mask.
func (m *Mask) Row(y int) []uint8 { return m.Pix[y*m.Width : (y+1)*m.Width] }

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	return &Mask{Width: m.Width, Height: m.Height, Pix: append([]uint8(nil), m.Pix...)}
}

// CropRows copies rows [start, end) into a new mask.
func (m *Mask) CropRows(start, end int) *Mask {
	out := NewMask(m.Width, end-start)
	copy(out.Pix, m.Pix[start*m.Width:end*m.Width])
	return out
}

// Any reports whether any sample is selected.
func (m *Mask) Any() bool { return m.AnyRows(0, m.Height) }

// AnyRows reports whether any sample in rows [start, end) is selected.
func (m *Mask) AnyRows(start, end int) bool {
	for _, v := range m.Pix[start*m.Width : end*m.Width] {
		if v != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of selected samples.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Binarize returns a copy where samples above threshold become 255 and the
// rest become 0.
func (m *Mask) Binarize(threshold uint8) *Mask {
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Pix {
		if v > threshold {
			out.Pix[i] = 0xff
		}
	}
	return out
}

// Union sets every sample selected in other. Both masks must be the same size.
func (m *Mask) Union(other *Mask) error {
	if m.Width != other.Width || m.Height != other.Height {
		return fmt.Errorf("union %dx%d with %dx%d: %w", m.Width, m.Height, other.Width, other.Height, ErrSizeMismatch)
	}
	for i, v := range other.Pix {
		if v != 0 {
			m.Pix[i] = 0xff
		}
	}
	return nil
}

// MaskFromImage builds a mask from an image's luminance; fully transparent
// pixels are treated as unselected.
func MaskFromImage(src image.Image) *Mask {
	b := src.Bounds()
	out := NewMask(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			if _, _, _, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA(); a == 0 {
				continue
			}
			out.Pix[y*out.Width+x] = c.Y
		}
	}
	return out
}

// MaskFromAlpha selects the pixels of src whose alpha exceeds threshold.
func MaskFromAlpha(src image.Image, threshold uint8) *Mask {
	b := src.Bounds()
	out := NewMask(b.Dx(), b.Dy())
	if rgba, ok := src.(*image.RGBA); ok {
		for y := 0; y < out.Height; y++ {
			off := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			row := out.Row(y)
			for x := range row {
				if rgba.Pix[off+4*x+3] > threshold {
					row[x] = 255
				}
			}
		}
		return out
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			if _, _, _, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA(); uint8(a>>8) > threshold {
				out.Pix[y*out.Width+x] = 255
			}
		}
	}
	return out
}

// ToStdImage returns the mask as an *image.Gray copy.
func (m *Mask) ToStdImage() *image.Gray {
	g := image.NewGray(m.Bounds())
	copy(g.Pix, m.Pix)
	return g
}

// CheckSize verifies that the mask matches the image dimensions.
func CheckSize(im *Image, m *Mask) error {
	if im == nil || m == nil {
		return ErrSizeMismatch
	}
	if im.Width != m.Width || im.Height != m.Height {
		return fmt.Errorf("image %dx%d, mask %dx%d: %w", im.Width, im.Height, m.Width, m.Height, ErrSizeMismatch)
	}
	return nil
}
