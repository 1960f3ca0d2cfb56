package helpers

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// CleanString trims and collapses runs of whitespace into single spaces
func CleanString(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// FormatWon renders 12900 as "12,900원"
func FormatWon(num int) string {
	return humanize.Comma(int64(num)) + "원"
}
