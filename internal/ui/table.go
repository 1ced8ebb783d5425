package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table is a simple column-aligned listing, used for discovered devices and
// capture indexes
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given column headings
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) *Table {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
	return t
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// Render returns the styled table
func (t *Table) Render() string {
	widths := t.widths()

	render := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i]).Render(cell)
		}
		return "  " + strings.Join(parts, "  ")
	}

	lines := []string{render(t.Headers, TableHeaderStyle)}
	for _, row := range t.Rows {
		lines = append(lines, render(row, TableCellStyle))
	}
	return strings.Join(lines, "\n")
}

// Plain renders the table as tab-free, space-padded text
func (t *Table) Plain() string {
	widths := t.widths()

	line := func(cells []string) string {
		var b strings.Builder
		for i, cell := range cells {
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		return strings.TrimRight(b.String(), " ")
	}

	lines := []string{line(t.Headers)}
	for _, row := range t.Rows {
		lines = append(lines, line(row))
	}
	return strings.Join(lines, "\n") + "\n"
}

// String implements fmt.Stringer
func (t *Table) String() string {
	return t.Render()
}
