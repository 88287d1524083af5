package background

import (
	"image"

	"golang.org/x/image/draw"
)

// Panel frame geometry.
const (
	frameWidth  = 320
	frameHeight = 240

	// frameRGBBytes is the size of one RGB frame handed to the caller.
	frameRGBBytes = frameWidth * frameHeight * 3
)

// resizeNRGBA scales src to the panel size with a high-quality
// resampler.
func resizeNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Dx() == frameWidth && b.Dy() == frameHeight {
		return cloneNRGBA(n)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// composeOver blends the foreground over the background using the
// foreground's alpha channel, returning an opaque frame. Both images
// must be panel-sized.
func composeOver(fg, bg *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	for y := 0; y < frameHeight; y++ {
		fo := fg.PixOffset(0, y)
		bo := bg.PixOffset(0, y)
		oo := out.PixOffset(0, y)
		for x := 0; x < frameWidth; x++ {
			alpha := float64(fg.Pix[fo+3]) / 255.0
			for c := 0; c < 3; c++ {
				f := float64(fg.Pix[fo+c]) / 255.0
				b := float64(bg.Pix[bo+c]) / 255.0
				out.Pix[oo+c] = byte((f*alpha + b*(1-alpha)) * 255.0)
			}
			out.Pix[oo+3] = 0xFF
			fo += 4
			bo += 4
			oo += 4
		}
	}
	return out
}

// toRGB flattens a panel-sized NRGBA frame to the 3-bytes-per-pixel
// RGB layout the packer consumes.
func toRGB(img *image.NRGBA) []byte {
	out := make([]byte, 0, frameRGBBytes)
	for y := 0; y < frameHeight; y++ {
		off := img.PixOffset(0, y)
		for x := 0; x < frameWidth; x++ {
			out = append(out, img.Pix[off], img.Pix[off+1], img.Pix[off+2])
			off += 4
		}
	}
	return out
}
