// Package document turns an input file or URL into ordered page images, or
// into already-textual pages for spreadsheets.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for inputs that cannot be turned into pages.
var ErrUnsupportedType = errors.New("unsupported document type")

// Kind classifies an input file by how it becomes pages.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindImage       Kind = "image"
	KindHEIC        Kind = "heic"
	KindOffice      Kind = "office"
	KindSpreadsheet Kind = "spreadsheet"
)

var (
	pdfMagic = []byte("%PDF-")
	// OLE compound file (legacy .doc/.xls/.ppt), which must go through
	// conversion even when named .pdf.
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

var spreadsheetExts = map[string]bool{
	".xlsx": true, ".xlsm": true, ".xls": true, ".xlsb": true,
}

var officeExts = map[string]bool{
	".doc": true, ".docx": true, ".odt": true, ".rtf": true,
	".ppt": true, ".pptx": true, ".odp": true, ".ods": true,
	".txt": true, ".html": true, ".htm": true,
}

// DetectKind classifies a file from its first bytes, the server-reported
// content type (may be empty) and its extension. Byte signatures win over
// the extension.
func DetectKind(head []byte, contentType, ext string) (Kind, error) {
	ext = strings.ToLower(ext)

	switch {
	case bytes.HasPrefix(head, cfbMagic):
		if spreadsheetExts[ext] {
			return KindSpreadsheet, nil
		}
		return KindOffice, nil
	case bytes.HasPrefix(head, pdfMagic):
		return KindPDF, nil
	case isHEIC(head):
		return KindHEIC, nil
	}

	if sniffed := http.DetectContentType(head); strings.HasPrefix(sniffed, "image/") {
		return KindImage, nil
	}

	if ext == "" && contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
				ext = exts[0]
			}
			if mt == "image/heic" || mt == "image/heif" {
				return KindHEIC, nil
			}
		}
	}

	switch {
	case ext == ".pdf":
		return KindPDF, nil
	case ext == ".heic" || ext == ".heif":
		return KindHEIC, nil
	case imageExts[ext]:
		return KindImage, nil
	case spreadsheetExts[ext]:
		return KindSpreadsheet, nil
	case officeExts[ext]:
		return KindOffice, nil
	}
	return "", fmt.Errorf("%w: extension %q, content type %q", ErrUnsupportedType, ext, contentType)
}

// isHEIC checks the ISO-BMFF ftyp box for a HEIF brand.
func isHEIC(head []byte) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	switch string(head[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// extFromSource returns the lowercase extension of a path or URL path,
// ignoring any query string.
func extFromSource(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return strings.ToLower(filepath.Ext(source))
}
