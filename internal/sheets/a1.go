package sheets

import (
	"fmt"
	"strings"
)

// ColumnLetter converts a 1-based column number to its A1 letter form
// (1 -> "A", 27 -> "AA").
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// CellRef renders a 1-based (row, col) pair in A1 notation.
func CellRef(row, col int) string {
	return fmt.Sprintf("%s%d", ColumnLetter(col), row)
}

// quoteWorksheet wraps a worksheet title in single quotes when A1 syntax
// requires it (spaces or other non-alphanumeric characters).
func quoteWorksheet(name string) string {
	for _, r := range name {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// rangeRef renders "Worksheet!A2:A10" style ranges from 1-based bounds.
func rangeRef(worksheet string, startRow, startCol, endRow, endCol int) string {
	return fmt.Sprintf("%s!%s:%s", quoteWorksheet(worksheet), CellRef(startRow, startCol), CellRef(endRow, endCol))
}

// openColumnRef renders an open-ended single-column range ("Sheet1!A2:A").
func openColumnRef(worksheet string, fromRow, col int) string {
	letter := ColumnLetter(col)
	return fmt.Sprintf("%s!%s%d:%s", quoteWorksheet(worksheet), letter, fromRow, letter)
}
