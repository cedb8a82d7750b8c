// Package imaging prepares rendered page images for a vision model: it trims
// uniform borders, rights rotated scans, splits very tall pages and keeps
// each result under a byte budget.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// OrientationDetector reports the clockwise rotation in degrees (0, 90, 180
// or 270) that turns an image upright.
type OrientationDetector interface {
	DetectRotation(ctx context.Context, png []byte) (int, error)
}

// Options selects the normalization steps applied to one page.
type Options struct {
	TrimEdges          bool
	CorrectOrientation bool
	// MaxSizeMB is the per-section size budget. Zero disables compression.
	MaxSizeMB float64
}

// NormalizerConfig configures a Normalizer.
type NormalizerConfig struct {
	Detector OrientationDetector // Optional, required for CorrectOrientation
	Logger   *slog.Logger
}

// Normalizer runs the per-page image pipeline.
type Normalizer struct {
	detector OrientationDetector
	logger   *slog.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		detector: cfg.Detector,
		logger:   logger,
	}
}

// webFormats are the encodings vision APIs accept as is.
var webFormats = map[string]bool{"png": true, "jpeg": true, "gif": true, "webp": true}

// Normalize decodes buf and returns one or more encoded sections ordered top
// to bottom. When no step changes the image the original buffer is returned
// as the only section. Formats outside webFormats are always re-encoded as
// PNG.
func (n *Normalizer) Normalize(ctx context.Context, buf []byte, opts Options) ([][]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	changed := !webFormats[format]
	if changed {
		n.logger.Debug("re-encoding as png", "format", format)
	}
	if opts.TrimEdges {
		if trimmed, ok := Trim(img, trimTolerance); ok {
			n.logger.Debug("trimmed borders",
				"from", img.Bounds().Size().String(),
				"to", trimmed.Bounds().Size().String())
			img = trimmed
			changed = true
		}
	}

	if opts.CorrectOrientation && n.detector != nil {
		rotation, err := n.detectRotation(ctx, img)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			n.logger.Warn("orientation detection failed, keeping image as is", "error", err)
		case rotation != 0:
			n.logger.Debug("correcting orientation", "degrees", rotation)
			img = Rotate(img, rotation)
			changed = true
		}
	}

	sections := []image.Image{img}
	if aspectRatio(img) > AspectRatioThreshold {
		sections = SplitTall(img, AspectRatioThreshold)
		n.logger.Debug("split tall image", "sections", len(sections), "format", format)
		changed = true
	}

	limit := int(opts.MaxSizeMB * 1024 * 1024)
	out := make([][]byte, 0, len(sections))
	for i, section := range sections {
		encoded := buf
		if changed {
			if encoded, err = EncodePNG(section); err != nil {
				return nil, fmt.Errorf("failed to encode section %d: %w", i, err)
			}
		}

		if limit > 0 && len(encoded) > limit {
			compressed, err := Compress(section, limit)
			if err != nil {
				n.logger.Warn("compression failed, sending uncompressed image",
					"section", i, "bytes", len(encoded), "limit", limit, "error", err)
			} else {
				encoded = compressed
			}
		}
		out = append(out, encoded)
	}
	return out, nil
}

func (n *Normalizer) detectRotation(ctx context.Context, img image.Image) (int, error) {
	encoded, err := EncodePNG(img)
	if err != nil {
		return 0, err
	}
	return n.detector.DetectRotation(ctx, encoded)
}

func aspectRatio(img image.Image) float64 {
	b := img.Bounds()
	if b.Dx() == 0 {
		return 0
	}
	return float64(b.Dy()) / float64(b.Dx())
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
