package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// trimTolerance is the per-channel distance (0-255) still treated as border.
const trimTolerance = 10

// Trim crops away borders whose colour matches the top-left pixel within
// tolerance. It reports false when there is nothing to trim or the image is
// a single uniform colour.
func Trim(img image.Image, tolerance uint8) (image.Image, bool) {
	b := img.Bounds()
	if b.Empty() {
		return img, false
	}
	bg := rgb8(img.At(b.Min.X, b.Min.Y))

	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if closeTo(rgb8(img.At(x, y)), bg, tolerance) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return img, false
	}
	content := image.Rect(minX, minY, maxX+1, maxY+1)
	if content == b {
		return img, false
	}
	return crop(img, content), true
}

// crop copies r out of img into a new image anchored at the origin.
func crop(img image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

type rgb struct{ r, g, b uint8 }

func rgb8(c color.Color) rgb {
	r, g, b, _ := c.RGBA()
	return rgb{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

func closeTo(a, b rgb, tolerance uint8) bool {
	return absDiff(a.r, b.r) <= tolerance &&
		absDiff(a.g, b.g) <= tolerance &&
		absDiff(a.b, b.b) <= tolerance
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// luma is the integer Rec. 601 approximation on 8-bit channels.
func luma(c color.Color) uint8 {
	p := rgb8(c)
	return uint8((299*uint32(p.r) + 587*uint32(p.g) + 114*uint32(p.b)) / 1000)
}
