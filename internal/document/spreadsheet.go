package document

import (
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
)

const tableClass = "folio-excel-table"

// Sheet is one worksheet rendered as an HTML table.
type Sheet struct {
	Name    string
	Content string
}

// Sheets renders every worksheet of an .xlsx/.xlsm workbook, in workbook
// order. The first row of each sheet becomes the header row.
func Sheets(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("no sheets found in %s", path)
	}

	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Content: renderSheet(name, rows)})
	}
	return sheets, nil
}

func renderSheet(name string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<h2>Sheet: " + html.EscapeString(name) + "</h2>")
	b.WriteString(`<table class="` + tableClass + `">`)
	for i, row := range rows {
		tag := "td"
		if i == 0 {
			tag = "th"
		}
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<" + tag + ">" + html.EscapeString(cell) + "</" + tag + ">")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
