// Package results renders scan entries as CSV and stores the artifacts.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/tonimelisma/drivescan/internal/walk"
)

// ErrNotFound is returned when a job has no stored result artifact.
var ErrNotFound = errors.New("results: artifact not found")

// DownloadName is the filename offered to clients downloading a result.
const DownloadName = "google_drive_scan.csv"

// ContentType is the MIME type of a result artifact.
const ContentType = "text/csv"

// Header is the first row of every result table.
var Header = []string{"name", "reference", "size", "kind", "path"}

// objectName is the artifact name for jobID, shared by all backends.
func objectName(jobID string) string {
	return "scan_results_" + jobID + ".csv"
}

// WriteCSV writes the header followed by one row per entry, in order, and
// returns the number of data rows written.
func WriteCSV(w io.Writer, entries []walk.Entry) (int, error) {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("results: writing header: %w", err)
	}

	row := make([]string, len(Header))

	for i := range entries {
		e := &entries[i]
		row[0] = e.Name
		row[1] = e.Reference
		row[2] = sizeCell(e.Size)
		row[3] = string(e.Kind)
		row[4] = e.Path

		if err := cw.Write(row); err != nil {
			return i, fmt.Errorf("results: writing row %d: %w", i+1, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return len(entries), fmt.Errorf("results: flushing: %w", err)
	}

	return len(entries), nil
}

// sizeCell renders an absent size as an empty cell.
func sizeCell(size int64) string {
	if size < 0 {
		return ""
	}

	return strconv.FormatInt(size, 10)
}
