package notation

import (
	"fmt"
	"strings"
)

// TableRow is one entry of the full encoding table.
type TableRow struct {
	Mask     uint8    `json:"mask"`
	Points   []string `json:"points"`
	Notation string   `json:"notation"`
}

// Table enumerates every subset of the eight canonical points with its
// notation for side, ordered by bitmask.
func Table(side Side) []TableRow {
	rows := make([]TableRow, 0, 256)
	for m := 0; m < 256; m++ {
		set := PointSet(m)
		rows = append(rows, TableRow{
			Mask:     uint8(m),
			Points:   set.IDs(),
			Notation: Encode(set, side),
		})
	}
	return rows
}

// FormatTable renders rows as tab-separated text, one subset per line.
func FormatTable(rows []TableRow) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%08b\t%s\t%s\n", r.Mask, strings.Join(r.Points, ","), r.Notation)
	}
	return b.String()
}
