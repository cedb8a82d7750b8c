package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"
)

// fakeRunner records commands and creates the output files the real tools
// would have produced.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  string // command name to fail
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	if name == r.fail {
		return nil, []byte("boom"), errors.New("exit status 1")
	}

	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		return nil, nil, os.WriteFile(prefix+".png", testPNG(), 0o644)
	case "soffice":
		var format, outDir string
		for i := 0; i < len(args)-1; i++ {
			switch args[i] {
			case "--convert-to":
				format = args[i+1]
			case "--outdir":
				outDir = args[i+1]
			}
		}
		in := args[len(args)-1]
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		out := filepath.Join(outDir, base+"."+format)
		if format == "pdf" {
			return nil, nil, os.WriteFile(out, minimalPDF(2), 0o644)
		}
		return nil, nil, copyFile(in, out)
	case "heif-convert":
		return nil, nil, os.WriteFile(args[len(args)-1], testPNG(), 0o644)
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func (r *fakeRunner) commands(name string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, c := range r.calls {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// minimalPDF builds a valid PDF with n empty pages and a correct xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func writeWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	f.SetCellValue("Sheet1", "A1", "Item")
	f.SetCellValue("Sheet1", "B1", "Price")
	f.SetCellValue("Sheet1", "A2", "Tea & Cake")
	f.SetCellValue("Sheet1", "B2", 4.5)
	if _, err := f.NewSheet("Totals"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}
	f.SetCellValue("Totals", "A1", "Sum")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
}

func TestDetectKind(t *testing.T) {
	heic := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
	cfb := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}

	tests := []struct {
		name        string
		head        []byte
		contentType string
		ext         string
		want        Kind
		wantErr     bool
	}{
		{"pdf magic", []byte("%PDF-1.7\n"), "", ".bin", KindPDF, false},
		{"png magic", testPNG(), "", "", KindImage, false},
		{"heic brand", heic, "", "", KindHEIC, false},
		{"cfb named pdf", cfb, "", ".pdf", KindOffice, false},
		{"cfb xls", cfb, "", ".xls", KindSpreadsheet, false},
		{"docx by extension", []byte("PK\x03\x04"), "", ".docx", KindOffice, false},
		{"xlsx by extension", []byte("PK\x03\x04"), "", ".XLSX", KindSpreadsheet, false},
		{"pdf by content type", []byte("junk"), "application/pdf", "", KindPDF, false},
		{"heic by content type", []byte("junk"), "image/heic", "", KindHEIC, false},
		{"unknown", []byte("junk"), "", ".xyz", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectKind(tt.head, tt.contentType, tt.ext)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectKind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("error %v should wrap ErrUnsupportedType", err)
			}
			if got != tt.want {
				t.Errorf("DetectKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	t.Run("local copy", func(t *testing.T) {
		src := writeFile(t, t.TempDir(), "scan.PNG", testPNG())
		dir := t.TempDir()

		got, err := Fetch(context.Background(), nil, src, dir)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if got.Ext != ".png" || filepath.Dir(got.Path) != dir {
			t.Errorf("Fetch() = %+v", got)
		}
		data, _ := os.ReadFile(got.Path)
		if !bytes.Equal(data, testPNG()) {
			t.Error("copied content differs")
		}
	})

	t.Run("missing local file", func(t *testing.T) {
		if _, err := Fetch(context.Background(), nil, "/nonexistent/file.pdf", t.TempDir()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("download", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(minimalPDF(1))
		}))
		defer server.Close()

		got, err := Fetch(context.Background(), server.Client(), server.URL+"/files/report.pdf?sig=abc", t.TempDir())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if got.Ext != ".pdf" || got.ContentType != "application/pdf" {
			t.Errorf("Fetch() = %+v", got)
		}
	})

	t.Run("http error", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		_, err := Fetch(context.Background(), server.Client(), server.URL+"/missing.pdf", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "404") {
			t.Errorf("error = %v, want HTTP 404", err)
		}
	})
}

func TestSelectPages(t *testing.T) {
	tests := []struct {
		name      string
		requested []int
		total     int
		want      []int
	}{
		{"all", nil, 3, []int{1, 2, 3}},
		{"sorted and filtered", []int{5, 2, 0, 1, 2, 9}, 5, []int{1, 2, 5}},
		{"none in range", []int{7, 8}, 3, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPages(tt.requested, tt.total)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("SelectPages() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageCount(t *testing.T) {
	p := writeFile(t, t.TempDir(), "doc.pdf", minimalPDF(3))
	n, err := PageCount(p)
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("PageCount() = %d, want 3", n)
	}
}

func TestRasterize(t *testing.T) {
	t.Run("renders pages in order", func(t *testing.T) {
		runner := &fakeRunner{}
		dir := t.TempDir()
		paths, err := Rasterize(context.Background(), RasterizeOptions{
			Runner:  runner,
			PDFPath: "/in/book.pdf",
			OutDir:  dir,
			Pages:   []int{2, 4, 7},
			Height:  2048,
		})
		if err != nil {
			t.Fatalf("Rasterize() error = %v", err)
		}
		want := []string{"book_page_0002.png", "book_page_0004.png", "book_page_0007.png"}
		for i, p := range paths {
			if filepath.Base(p) != want[i] {
				t.Errorf("paths[%d] = %s, want %s", i, filepath.Base(p), want[i])
			}
		}

		cmds := runner.commands("pdftoppm")
		if len(cmds) != 3 {
			t.Fatalf("got %d pdftoppm calls, want 3", len(cmds))
		}
		joined := strings.Join(cmds[0], " ")
		for _, flag := range []string{"-r 300", "-scale-to-y 2048", "-singlefile"} {
			if !strings.Contains(joined, flag) {
				t.Errorf("command %q missing %q", joined, flag)
			}
		}
	})

	t.Run("render failure", func(t *testing.T) {
		_, err := Rasterize(context.Background(), RasterizeOptions{
			Runner:  &fakeRunner{fail: "pdftoppm"},
			PDFPath: "/in/book.pdf",
			OutDir:  t.TempDir(),
			Pages:   []int{1},
		})
		if err == nil || !strings.Contains(err.Error(), "page 1") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	writeWorkbook(t, path)

	sheets, err := Sheets(path)
	if err != nil {
		t.Fatalf("Sheets() error = %v", err)
	}
	if len(sheets) != 2 {
		t.Fatalf("got %d sheets, want 2", len(sheets))
	}
	first := sheets[0].Content
	if !strings.HasPrefix(first, "<h2>Sheet: Sheet1</h2>") {
		t.Errorf("heading: %s", first)
	}
	if !strings.Contains(first, "<tr><th>Item</th><th>Price</th></tr>") {
		t.Errorf("header row: %s", first)
	}
	if !strings.Contains(first, "<td>Tea &amp; Cake</td>") {
		t.Errorf("escaped cell: %s", first)
	}
	if sheets[1].Name != "Totals" {
		t.Errorf("second sheet = %q", sheets[1].Name)
	}
}

func TestFileLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("image", func(t *testing.T) {
		src := writeFile(t, t.TempDir(), "photo.png", testPNG())
		l := &FileLoader{Runner: &fakeRunner{}}

		doc, err := l.Load(ctx, src, LoadOptions{Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if doc.Kind != KindImage || len(doc.Pages) != 1 || doc.Pages[0].Number != 1 {
			t.Errorf("doc = %+v", doc)
		}
		if doc.Structured() {
			t.Error("image should not be structured")
		}
	})

	t.Run("pdf with page selection", func(t *testing.T) {
		src := writeFile(t, t.TempDir(), "report.pdf", minimalPDF(4))
		runner := &fakeRunner{}
		l := &FileLoader{Runner: runner}

		doc, err := l.Load(ctx, src, LoadOptions{Dir: t.TempDir(), Pages: []int{4, 2, 10}})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(doc.Pages) != 2 || doc.Pages[0].Number != 2 || doc.Pages[1].Number != 4 {
			t.Errorf("pages = %+v", doc.Pages)
		}
		if len(doc.Images()) != 2 {
			t.Errorf("Images() = %d", len(doc.Images()))
		}
	})

	t.Run("office converts to pdf", func(t *testing.T) {
		src := writeFile(t, t.TempDir(), "memo.docx", []byte("PK\x03\x04 fake docx"))
		runner := &fakeRunner{}
		l := &FileLoader{Runner: runner}

		doc, err := l.Load(ctx, src, LoadOptions{Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if doc.Kind != KindOffice || len(doc.Pages) != 2 {
			t.Errorf("doc kind=%s pages=%d", doc.Kind, len(doc.Pages))
		}
		if len(runner.commands("soffice")) != 1 {
			t.Error("expected one soffice call")
		}
	})

	t.Run("heic", func(t *testing.T) {
		heic := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		src := writeFile(t, t.TempDir(), "IMG_0001.HEIC", heic)
		runner := &fakeRunner{}
		l := &FileLoader{Runner: runner}

		doc, err := l.Load(ctx, src, LoadOptions{Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if doc.Kind != KindHEIC || len(doc.Pages) != 1 {
			t.Errorf("doc = %+v", doc)
		}
	})

	t.Run("spreadsheet", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "ledger.xlsx")
		writeWorkbook(t, src)
		l := &FileLoader{Runner: &fakeRunner{}}

		doc, err := l.Load(ctx, src, LoadOptions{Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !doc.Structured() || len(doc.Pages) != 2 {
			t.Fatalf("doc = %+v", doc)
		}
		if doc.Pages[1].Number != 2 || !strings.Contains(doc.Pages[1].Text, "Totals") {
			t.Errorf("page 2 = %+v", doc.Pages[1])
		}
	})

	t.Run("conversion failure", func(t *testing.T) {
		src := writeFile(t, t.TempDir(), "memo.docx", []byte("PK\x03\x04"))
		l := &FileLoader{Runner: &fakeRunner{fail: "soffice"}}

		if _, err := l.Load(ctx, src, LoadOptions{Dir: t.TempDir()}); err == nil {
			t.Error("expected error")
		}
	})
}
