package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/jobs"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = cellStyle.Bold(true)
)

// WriteDocument prints doc as terminal tables.
func WriteDocument(w io.Writer, doc layout.Document) error {
	if _, err := fmt.Fprintln(w, titleStyle.Render(doc.Title)); err != nil {
		return err
	}
	if err := writeFields(w, doc.Fields); err != nil {
		return err
	}
	for _, t := range doc.Tables {
		if t.Title != "" {
			if _, err := fmt.Fprintln(w, "\n"+titleStyle.Render(t.Title)); err != nil {
				return err
			}
		}
		if t.Empty() {
			if _, err := fmt.Fprintln(w, labelStyle.Render("No matching rows")); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(w, renderTable(t)); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, labelStyle.Render(strconv.Itoa(len(t.Rows))+" of "+strconv.Itoa(t.Total)+" rows")); err != nil {
			return err
		}
	}
	if len(doc.Summary) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		return writeFields(w, doc.Summary)
	}
	return nil
}

func writeFields(w io.Writer, fields []layout.Field) error {
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%s %s\n", labelStyle.Render(f.Label+":"), f.Value); err != nil {
			return err
		}
	}
	return nil
}

func renderTable(t layout.Table) string {
	rows := make([][]string, 0, len(t.Rows)+1)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.Text
		}
		rows = append(rows, cells)
	}
	footerRow := -1
	if t.Footer != nil {
		footerRow = len(rows)
		rows = append(rows, t.Footer.Cells)
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Headers()...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			switch row {
			case table.HeaderRow:
				style = headerStyle
			case footerRow:
				style = footerStyle
			}
			if col < len(t.Columns) && t.Columns[col].Align == "right" {
				style = style.Align(lipgloss.Right)
			}
			return style
		}).
		String()
}

// WriteStats prints export queue counters.
func WriteStats(w io.Writer, stats jobs.QueueStats) error {
	out := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Queue", "Pending", "Active", "Scheduled", "Retry", "Completed", "Failed").
		Row(stats.Queue,
			strconv.Itoa(stats.Pending),
			strconv.Itoa(stats.Active),
			strconv.Itoa(stats.Scheduled),
			strconv.Itoa(stats.Retry),
			strconv.Itoa(stats.Completed),
			strconv.Itoa(stats.Failed),
		).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
	_, err := fmt.Fprintln(w, out)
	return err
}
