package internal

import (
	"image"

	"golang.org/x/image/draw"
)

// AspectFill scales src so it covers a size x size square, then crops the
// centre.
func AspectFill(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	b := src.Bounds()
	if b.Empty() || size <= 0 {
		return dst
	}

	w, h := b.Dx(), b.Dy()
	// Crop the source to a square region matching the destination aspect.
	crop := b
	if w > h {
		off := (w - h) / 2
		crop = image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	} else if h > w {
		off := (h - w) / 2
		crop = image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
