package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ToPDF converts an office document to PDF with LibreOffice.
func ToPDF(ctx context.Context, runner Runner, path, outDir string) (string, error) {
	return sofficeConvert(ctx, runner, path, outDir, "pdf")
}

// ToXLSX converts a legacy spreadsheet (.xls, .xlsb) to .xlsx with
// LibreOffice so it can be read natively.
func ToXLSX(ctx context.Context, runner Runner, path, outDir string) (string, error) {
	return sofficeConvert(ctx, runner, path, outDir, "xlsx")
}

func sofficeConvert(ctx context.Context, runner Runner, path, outDir, format string) (string, error) {
	_, stderr, err := runner.Run(ctx, "soffice",
		"--headless",
		"--convert-to", format,
		"--outdir", outDir,
		path,
	)
	if err != nil {
		return "", fmt.Errorf("soffice failed: %w (output: %s)", err, truncate(string(stderr), 1<<10))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outDir, base+"."+format)
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("soffice did not create expected output: %w", err)
	}
	return out, nil
}

// HEICToJPEG converts a HEIC/HEIF photo to JPEG with libheif's heif-convert.
func HEICToJPEG(ctx context.Context, runner Runner, path, outDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outDir, base+".jpg")

	_, stderr, err := runner.Run(ctx, "heif-convert", "-q", "100", path, out)
	if err != nil {
		return "", fmt.Errorf("heif-convert failed: %w (output: %s)", err, truncate(string(stderr), 1<<10))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("heif-convert did not create expected output: %w", err)
	}
	return out, nil
}
