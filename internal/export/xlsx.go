package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tilesmart/tiles-admin/internal/layout"
)

const maxSheetName = 31

// XLSX writes every table of doc to its own sheet, preceded by the report
// header fields. Right aligned cells holding numbers are stored as numbers.
func XLSX(stem string, doc layout.Document) (File, error) {
	if !doc.Ready() {
		return File{}, ErrNotReady
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return File{}, err
	}

	used := map[string]bool{}
	for i, t := range doc.Tables {
		name := sheetName(t, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return File{}, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return File{}, err
		}
		if err := writeSheet(f, name, bold, doc, t); err != nil {
			return File{}, err
		}
	}
	if len(doc.Tables) == 0 {
		if err := f.SetCellValue("Sheet1", "A1", doc.Title); err != nil {
			return File{}, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return File{}, err
	}
	return File{Name: Filename(stem, doc, "xlsx"), ContentType: ContentTypeXLSX, Data: buf.Bytes()}, nil
}

func sheetName(t layout.Table, index int, used map[string]bool) string {
	name := t.Title
	if name == "" {
		name = t.ID
	}
	if name == "" {
		name = fmt.Sprintf("Table %d", index+1)
	}
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, name)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	base := name
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" %d", n)
		name = base[:min(len(base), maxSheetName-len(suffix))] + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func writeSheet(f *excelize.File, sheet string, bold int, doc layout.Document, t layout.Table) error {
	row := 1
	set := func(col, r int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, r)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, v)
	}
	styleRow := func(r, cols int) error {
		first, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(max(cols, 1), r)
		if err != nil {
			return err
		}
		return f.SetCellStyle(sheet, first, last, bold)
	}

	if err := set(1, row, doc.Title); err != nil {
		return err
	}
	if err := styleRow(row, 1); err != nil {
		return err
	}
	row++
	for _, field := range doc.Fields {
		if err := set(1, row, field.Label); err != nil {
			return err
		}
		if err := set(2, row, field.Value); err != nil {
			return err
		}
		row++
	}
	row++

	for i, col := range t.Columns {
		if err := set(i+1, row, col.Header); err != nil {
			return err
		}
	}
	if err := styleRow(row, len(t.Columns)); err != nil {
		return err
	}
	row++
	for _, cells := range t.Rows {
		for i, c := range cells {
			if err := set(i+1, row, cellValue(t.Columns, i, c.Text)); err != nil {
				return err
			}
		}
		row++
	}
	if t.Footer != nil {
		for i, text := range t.Footer.Cells {
			if err := set(i+1, row, cellValue(t.Columns, i, text)); err != nil {
				return err
			}
		}
		if err := styleRow(row, len(t.Columns)); err != nil {
			return err
		}
		row++
	}
	for _, field := range doc.Summary {
		row++
		if err := set(1, row, field.Label); err != nil {
			return err
		}
		if err := set(2, row, field.Value); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(cols []layout.Column, i int, text string) any {
	if i >= len(cols) || cols[i].Align != "right" {
		return text
	}
	if v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64); err == nil {
		return v
	}
	return text
}
