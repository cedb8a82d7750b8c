package imaging

import (
	"image"
	"math"
)

const (
	// AspectRatioThreshold is the height/width ratio above which a page is
	// split into sections.
	AspectRatioThreshold = 5.0

	maxSearchWindow = 100 // rows either side of a target cut
	minSectionGap   = 50  // rows kept between cuts and from the bottom edge
)

// SplitTall cuts img into ceil(ratio/threshold) horizontal sections. Each cut
// lands on the row with the least edge activity near its evenly spaced
// target, so cuts prefer whitespace between lines of text. Section heights
// always sum to the source height.
func SplitTall(img image.Image, threshold float64) []image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return []image.Image{img}
	}

	count := int(math.Ceil(float64(h) / float64(w) / threshold))
	if count <= 1 {
		return []image.Image{img}
	}

	cuts := splitPoints(rowEdgeDensity(img), count)
	sections := make([]image.Image, 0, len(cuts)-1)
	for i := 0; i < len(cuts)-1; i++ {
		r := image.Rect(b.Min.X, b.Min.Y+cuts[i], b.Max.X, b.Min.Y+cuts[i+1])
		sections = append(sections, crop(img, r))
	}
	return sections
}

// splitPoints returns the row offsets bounding each section, starting at 0
// and ending at len(density).
func splitPoints(density []int, count int) []int {
	h := len(density)
	approx := h / count
	window := min(maxSearchWindow, approx/4)
	gap := min(minSectionGap, approx/4)

	cuts := []int{0}
	prev := 0
	for i := 1; i < count; i++ {
		target := i * approx
		start := max(target-window, prev+gap)
		end := min(target+window, h-gap)

		best := target
		if start <= end {
			bestScore := math.MaxInt
			for y := start; y <= end; y++ {
				if density[y] < bestScore {
					bestScore = density[y]
					best = y
				}
			}
		}
		if best <= prev {
			best = prev + 1
		}
		if best >= h {
			break
		}
		cuts = append(cuts, best)
		prev = best
	}
	return append(cuts, h)
}

// rowEdgeDensity sums the luma gradient magnitude across each row. Rows that
// cross text score high; blank rows score zero.
func rowEdgeDensity(img image.Image) []int {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray[y*w+x] = luma(img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	density := make([]int, h)
	for y := 0; y < h; y++ {
		sum := 0
		for x := 0; x < w; x++ {
			v := int(gray[y*w+x])
			if y > 0 {
				sum += abs(v - int(gray[(y-1)*w+x]))
			}
			if x > 0 {
				sum += abs(v - int(gray[y*w+x-1]))
			}
		}
		density[y] = sum
	}
	return density
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
