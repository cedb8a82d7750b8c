package orientation

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractWorker scores images by mean word confidence using one gosseract
// client. A client is not safe for concurrent use, which the pool respects.
type TesseractWorker struct {
	client *gosseract.Client
}

// NewTesseractWorker creates a worker for the given languages.
func NewTesseractWorker(languages ...string) (*TesseractWorker, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	return &TesseractWorker{client: client}, nil
}

// TesseractFactory returns a WorkerFactory producing tesseract workers.
func TesseractFactory(languages ...string) WorkerFactory {
	return func() (Worker, error) {
		return NewTesseractWorker(languages...)
	}
}

// Confidence returns the mean word confidence in 0..1, or 0 when no words
// are found.
func (w *TesseractWorker) Confidence(ctx context.Context, png []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := w.client.SetImageFromBytes(png); err != nil {
		return 0, fmt.Errorf("set image: %w", err)
	}
	boxes, err := w.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return 0, fmt.Errorf("recognize words: %w", err)
	}
	if len(boxes) == 0 {
		return 0, nil
	}

	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes)), nil
}

// Close releases the tesseract client.
func (w *TesseractWorker) Close() error {
	return w.client.Close()
}
