package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders left-aligned columns separated by two spaces.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow appends a row. Missing values render empty; extra values are dropped.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range t.headers {
		if i < len(values) {
			row[i] = values[i]
		}
		if w := lipgloss.Width(row[i]); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}
	var sb strings.Builder
	t.writeRow(&sb, t.headers, current.header)
	for _, row := range t.rows {
		t.writeRow(&sb, row, lipgloss.NewStyle())
	}
	return sb.String()
}

func (t *Table) writeRow(sb *strings.Builder, cells []string, style lipgloss.Style) {
	for i, cell := range cells {
		if i > 0 {
			sb.WriteString("  ")
		}
		padded := cell
		if i < len(cells)-1 {
			padded += strings.Repeat(" ", t.widths[i]-lipgloss.Width(cell))
		}
		sb.WriteString(style.Render(padded))
	}
	sb.WriteString("\n")
}
