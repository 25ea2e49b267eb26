// Package records turns the rename CSV into an ordered list of rename records.
package records

import (
	"encoding/csv"
	"io"
	"strings"
)

// Column names the header row must carry.
const (
	ColumnOldEmail = "old_email"
	ColumnNewEmail = "new_email"
)

const utf8BOM = "\ufeff"

// RenameRecord is one (old_email, new_email) pair to apply.
type RenameRecord struct {
	OldEmail string
	NewEmail string
}

// Stats describes what the parser saw.
type Stats struct {
	Rows    int // data rows read, header excluded
	Kept    int // rows that became records
	Dropped int // rows with an empty field
}

// Parse reads CSV text with a header row and returns the records in input
// order. Rows where either email is empty after trimming are dropped without
// error. Header-only or empty input yields no records.
func Parse(text string) ([]RenameRecord, Stats) {
	var stats Stats

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, stats
	}
	oldIdx, newIdx := columnIndex(header)

	var out []RenameRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		stats.Rows++

		oldEmail := strings.TrimSpace(field(row, oldIdx))
		newEmail := strings.TrimSpace(field(row, newIdx))
		if oldEmail == "" || newEmail == "" {
			stats.Dropped++
			continue
		}

		out = append(out, RenameRecord{OldEmail: oldEmail, NewEmail: newEmail})
		stats.Kept++
	}

	return out, stats
}

// columnIndex locates the two email columns by name. The last occurrence of a
// duplicated name wins; a missing column yields -1.
func columnIndex(header []string) (oldIdx, newIdx int) {
	oldIdx, newIdx = -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case ColumnOldEmail:
			oldIdx = i
		case ColumnNewEmail:
			newIdx = i
		}
	}
	return oldIdx, newIdx
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
