package mosaic

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode reads a PNG, JPEG, GIF, BMP or WebP image. The returned string is
// the format name reported by the decoder.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("mosaic: decode image: %w", err)
	}
	return img, format, nil
}

// Downscale shrinks img so its longer side is at most maxDim, keeping the
// aspect ratio and rounding to the nearest pixel. Images already within the
// limit are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	fw, fh := float64(w), float64(h)
	if w > h {
		fh *= float64(maxDim) / fw
		fw = float64(maxDim)
	} else {
		fw *= float64(maxDim) / fh
		fh = float64(maxDim)
	}
	nw := max(1, int(math.Round(fw)))
	nh := max(1, int(math.Round(fh)))

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// LoadImage decodes r and downscales it to MaxDimension, the form Encode
// expects.
func LoadImage(r io.Reader) (image.Image, error) {
	img, _, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Downscale(img, MaxDimension), nil
}
