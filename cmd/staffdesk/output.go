package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusColors colors the status column of list tables.
var statusColors = map[string]lipgloss.Color{
	"pending":     lipgloss.Color("3"),
	"approved":    lipgloss.Color("2"),
	"rejected":    lipgloss.Color("1"),
	"not_started": lipgloss.Color("8"),
	"in_progress": lipgloss.Color("6"),
	"completed":   lipgloss.Color("2"),
	"overdue":     lipgloss.Color("1"),
	"draft":       lipgloss.Color("8"),
	"active":      lipgloss.Color("2"),
	"closed":      lipgloss.Color("8"),
}

// printTable renders rows under header. The cell in statusCol is colored by
// its value; pass -1 for no status column.
func printTable(w io.Writer, header []string, rows [][]string, statusCol int) {
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.ToUpper(h)
	}

	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if noColor {
				return style
			}
			if row == ltable.HeaderRow {
				return style.Bold(true)
			}
			if col == statusCol && row >= 0 && row < len(rows) && col < len(rows[row]) {
				if c, ok := statusColors[rows[row][col]]; ok {
					style = style.Foreground(c)
				}
			}
			return style
		})
	fmt.Fprintln(w, t.Render())
}
