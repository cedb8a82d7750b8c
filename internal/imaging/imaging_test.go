package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"golang.org/x/image/tiff"
)

func filled(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func noisy(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func TestTrim(t *testing.T) {
	t.Run("crops to content", func(t *testing.T) {
		img := filled(100, 80, color.White)
		for y := 20; y < 40; y++ {
			for x := 30; x < 55; x++ {
				img.Set(x, y, color.Black)
			}
		}
		out, ok := Trim(img, trimTolerance)
		if !ok {
			t.Fatal("expected trim")
		}
		if got := out.Bounds().Size(); got != image.Pt(25, 20) {
			t.Errorf("size = %v, want (25,20)", got)
		}
	})

	t.Run("uniform image untouched", func(t *testing.T) {
		img := filled(10, 10, color.White)
		if _, ok := Trim(img, trimTolerance); ok {
			t.Error("uniform image should not be trimmed")
		}
	})

	t.Run("near background within tolerance", func(t *testing.T) {
		img := filled(10, 10, color.White)
		img.Set(5, 5, color.RGBA{250, 250, 250, 255})
		if _, ok := Trim(img, trimTolerance); ok {
			t.Error("pixel within tolerance should count as border")
		}
	})
}

func TestRotate(t *testing.T) {
	img := filled(3, 2, color.White)
	img.Set(0, 0, color.Black) // top-left marker

	tests := []struct {
		degrees int
		size    image.Point
		marker  image.Point
	}{
		{0, image.Pt(3, 2), image.Pt(0, 0)},
		{90, image.Pt(2, 3), image.Pt(1, 0)},
		{180, image.Pt(3, 2), image.Pt(2, 1)},
		{270, image.Pt(2, 3), image.Pt(0, 2)},
		{-90, image.Pt(2, 3), image.Pt(0, 2)},
	}
	for _, tt := range tests {
		out := Rotate(img, tt.degrees)
		if got := out.Bounds().Size(); got != tt.size {
			t.Errorf("Rotate(%d) size = %v, want %v", tt.degrees, got, tt.size)
			continue
		}
		if luma(out.At(tt.marker.X, tt.marker.Y)) != 0 {
			t.Errorf("Rotate(%d) marker not at %v", tt.degrees, tt.marker)
		}
	}
}

func TestSplitTall(t *testing.T) {
	t.Run("section count follows threshold", func(t *testing.T) {
		// ratio 12.5 is 2.5x the threshold
		img := filled(10, 125, color.White)
		sections := SplitTall(img, AspectRatioThreshold)
		if len(sections) != 3 {
			t.Fatalf("sections = %d, want 3", len(sections))
		}
		total := 0
		for _, s := range sections {
			if s.Bounds().Dx() != 10 {
				t.Errorf("section width = %d, want 10", s.Bounds().Dx())
			}
			total += s.Bounds().Dy()
		}
		if total != 125 {
			t.Errorf("section heights sum to %d, want 125", total)
		}
	})

	t.Run("short image not split", func(t *testing.T) {
		img := filled(100, 400, color.White)
		if got := len(SplitTall(img, AspectRatioThreshold)); got != 1 {
			t.Errorf("sections = %d, want 1", got)
		}
	})

	t.Run("cuts land in whitespace", func(t *testing.T) {
		// Striped rows everywhere except a blank band at 440..460.
		img := filled(100, 800, color.White)
		for y := 0; y < 800; y++ {
			if y >= 440 && y <= 460 {
				continue
			}
			if y%2 == 0 {
				for x := 0; x < 100; x++ {
					img.Set(x, y, color.Black)
				}
			}
		}
		sections := SplitTall(img, AspectRatioThreshold)
		if len(sections) != 2 {
			t.Fatalf("sections = %d, want 2", len(sections))
		}
		cut := sections[0].Bounds().Dy()
		if cut < 440 || cut > 461 {
			t.Errorf("cut at row %d, want within blank band 440..461", cut)
		}
	})
}

func TestSplitPoints_PicksQuietestRow(t *testing.T) {
	density := make([]int, 30)
	for i := range density {
		density[i] = 5
	}
	density[11] = 0

	cuts := splitPoints(density, 3)
	want := []int{0, 11, 18, 30}
	if len(cuts) != len(want) {
		t.Fatalf("cuts = %v, want %v", cuts, want)
	}
	for i := range want {
		if cuts[i] != want[i] {
			t.Fatalf("cuts = %v, want %v", cuts, want)
		}
	}
}

func TestCompress(t *testing.T) {
	img := noisy(256, 256, 1)

	t.Run("fits budget", func(t *testing.T) {
		out, err := Compress(img, 10<<20)
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		if _, format, err := image.Decode(bytes.NewReader(out)); err != nil || format != "jpeg" {
			t.Errorf("expected jpeg output, got %q (%v)", format, err)
		}
	})

	t.Run("impossible budget", func(t *testing.T) {
		_, err := Compress(img, 10)
		if !errors.Is(err, ErrCompressionFailed) {
			t.Errorf("err = %v, want ErrCompressionFailed", err)
		}
	})
}

type fixedDetector struct {
	degrees int
	err     error
	calls   int
}

func (d *fixedDetector) DetectRotation(ctx context.Context, png []byte) (int, error) {
	d.calls++
	return d.degrees, d.err
}

func TestNormalize(t *testing.T) {
	ctx := context.Background()

	t.Run("no changes returns original buffer", func(t *testing.T) {
		buf := pngBytes(t, noisy(40, 40, 2))
		n := NewNormalizer(NormalizerConfig{})
		out, err := n.Normalize(ctx, buf, Options{TrimEdges: true})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(out) != 1 || !bytes.Equal(out[0], buf) {
			t.Error("expected the original buffer back")
		}
	})

	t.Run("applies detected rotation", func(t *testing.T) {
		img := filled(20, 10, color.White)
		img.Set(0, 0, color.Black)
		det := &fixedDetector{degrees: 180}
		n := NewNormalizer(NormalizerConfig{Detector: det})

		out, err := n.Normalize(ctx, pngBytes(t, img), Options{CorrectOrientation: true})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if det.calls != 1 {
			t.Errorf("detector calls = %d, want 1", det.calls)
		}
		got := decode(t, out[0])
		if luma(got.At(19, 9)) != 0 {
			t.Error("marker should move to bottom-right after 180 rotation")
		}
	})

	t.Run("detector failure is not fatal", func(t *testing.T) {
		buf := pngBytes(t, noisy(20, 20, 3))
		n := NewNormalizer(NormalizerConfig{Detector: &fixedDetector{err: errors.New("ocr down")}})
		out, err := n.Normalize(ctx, buf, Options{CorrectOrientation: true})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(out) != 1 {
			t.Errorf("sections = %d, want 1", len(out))
		}
	})

	t.Run("tall page yields ordered sections", func(t *testing.T) {
		buf := pngBytes(t, filled(10, 125, color.White))
		n := NewNormalizer(NormalizerConfig{})
		out, err := n.Normalize(ctx, buf, Options{})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(out) != 3 {
			t.Fatalf("sections = %d, want 3", len(out))
		}
	})

	t.Run("compression failure falls back", func(t *testing.T) {
		buf := pngBytes(t, noisy(64, 64, 4))
		n := NewNormalizer(NormalizerConfig{})
		out, err := n.Normalize(ctx, buf, Options{MaxSizeMB: 0.000001})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if !bytes.Equal(out[0], buf) {
			t.Error("expected original buffer when compression cannot fit")
		}
	})

	t.Run("oversized section is compressed", func(t *testing.T) {
		buf := pngBytes(t, noisy(128, 128, 5))
		n := NewNormalizer(NormalizerConfig{})
		limit := float64(len(buf)-1) / (1024 * 1024)
		out, err := n.Normalize(ctx, buf, Options{MaxSizeMB: limit})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(out[0]) >= len(buf) {
			t.Errorf("compressed size %d not below original %d", len(out[0]), len(buf))
		}
	})

	t.Run("tiff is re-encoded as png", func(t *testing.T) {
		var buf bytes.Buffer
		if err := tiff.Encode(&buf, noisy(30, 30, 6), nil); err != nil {
			t.Fatalf("tiff encode: %v", err)
		}
		n := NewNormalizer(NormalizerConfig{})
		out, err := n.Normalize(ctx, buf.Bytes(), Options{})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(out) != 1 {
			t.Fatalf("sections = %d, want 1", len(out))
		}
		_, format, err := image.Decode(bytes.NewReader(out[0]))
		if err != nil || format != "png" {
			t.Errorf("output format = %q, %v; want png", format, err)
		}
		if b := decode(t, out[0]).Bounds(); b.Dx() != 30 || b.Dy() != 30 {
			t.Errorf("bounds = %v", b)
		}
	})

	t.Run("undecodable input", func(t *testing.T) {
		n := NewNormalizer(NormalizerConfig{})
		if _, err := n.Normalize(ctx, []byte("not an image"), Options{}); err == nil {
			t.Error("expected decode error")
		}
	})
}
