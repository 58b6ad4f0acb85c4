package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// sizeUnits are binary multiples, largest first.
var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// formatSize returns a human-readable size such as "1.2 MB".
func formatSize(n int64) string {
	for _, u := range sizeUnits {
		if n >= u.bytes {
			return fmt.Sprintf("%.1f %s", float64(n)/float64(u.bytes), u.suffix)
		}
	}

	return fmt.Sprintf("%d B", n)
}

// formatTime renders t compactly: clock time within the current year,
// the year otherwise.
func formatTime(t time.Time) string {
	return formatTimeAt(t, time.Now())
}

func formatTimeAt(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes headers and rows as left-aligned columns separated by
// two spaces. Every row must have len(headers) cells.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder

	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}

		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
	}

	fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
}
