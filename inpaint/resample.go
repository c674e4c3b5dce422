package inpaint

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/wudi/inkclean/raster"
)

// Resample scales img to width×height using Catmull-Rom interpolation. The
// channel count is preserved. Images that already have the requested size
// are returned unchanged.
func Resample(img *raster.Image, width, height int) *raster.Image {
	if img.Width == width && img.Height == height {
		return img
	}
	src := img.ToStdImage()
	if img.Channels == 1 {
		dst := image.NewGray(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return raster.FromImage(dst)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return raster.FromImage(dst)
}
