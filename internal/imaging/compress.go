package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

const (
	startQuality = 90
	minQuality   = 20
	qualityStep  = 10
)

// ErrCompressionFailed is returned when no quality step fits the budget.
var ErrCompressionFailed = errors.New("image could not be compressed below the size limit")

// Compress re-encodes img as JPEG, lowering quality in steps until the
// result fits in maxBytes. It returns ErrCompressionFailed when even the
// lowest quality is too large.
func Compress(img image.Image, maxBytes int) ([]byte, error) {
	for quality := startQuality; quality >= minQuality; quality -= qualityStep {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode at quality %d: %w", quality, err)
		}
		if buf.Len() <= maxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, ErrCompressionFailed
}
