package imageio

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/wudi/inkclean/raster"
)

func sample() *raster.Image {
	img := raster.NewImage(5, 4, 3)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	return img
}

func TestLosslessRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := sample()
	for _, name := range []string{"a.png", "a.bmp", "a.tiff", "a.TIF"} {
		path := filepath.Join(dir, name)
		if err := Save(path, img); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if got.Channels != 3 || !bytes.Equal(got.Pix, img.Pix) {
			t.Fatalf("%s: round trip mismatch", name)
		}
	}
}

func TestJPEGKeepsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := Save(path, sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Width != 5 || got.Height != 4 {
		t.Fatalf("size = %dx%d", got.Width, got.Height)
	}
}

func TestMaskRoundTrip(t *testing.T) {
	m := raster.NewMask(6, 3)
	m.Set(1, 1, 255)
	m.Set(4, 2, 255)
	path := filepath.Join(t.TempDir(), "mask.png")
	if err := SaveMask(path, m); err != nil {
		t.Fatalf("SaveMask() error = %v", err)
	}
	got, err := LoadMask(path)
	if err != nil {
		t.Fatalf("LoadMask() error = %v", err)
	}
	if !bytes.Equal(got.Pix, m.Pix) {
		t.Fatalf("mask mismatch: %v", got.Pix)
	}
}

func TestGrayStaysSingleChannel(t *testing.T) {
	var buf bytes.Buffer
	img := raster.NewImage(3, 3, 1)
	img.Pix[4] = 200
	if err := Encode(&buf, img.ToStdImage(), PNG); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, format, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != PNG || got.Channels != 1 || got.Pix[4] != 200 {
		t.Fatalf("format=%s channels=%d", format, got.Channels)
	}
}

func TestUnsupportedOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.webp", "a.gif", "a"} {
		if err := Save(filepath.Join(dir, name), sample()); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("Save(%s) = %v, want ErrUnsupportedFormat", name, err)
		}
	}
}
