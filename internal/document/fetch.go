package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Fetched is a source file copied into the scratch directory.
type Fetched struct {
	Path        string
	ContentType string // As reported by the server; empty for local files
	Ext         string // Extension of the original source, lowercase
}

// IsURL reports whether source is an http(s) URL.
func IsURL(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads source when it is a URL, or copies it when it is a local
// path, into dir under a random name that keeps the extension.
func Fetch(ctx context.Context, client *http.Client, source, dir string) (*Fetched, error) {
	ext := extFromSource(source)
	dst := filepath.Join(dir, uuid.New().String()+ext)

	if !IsURL(source) {
		if err := copyFile(source, dst); err != nil {
			return nil, err
		}
		return &Fetched{Path: dst, Ext: ext}, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: HTTP status %d", source, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to save download: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to save download: %w", err)
	}

	return &Fetched{Path: dst, ContentType: resp.Header.Get("Content-Type"), Ext: ext}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// readHead returns up to the first 512 bytes of a file.
func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
