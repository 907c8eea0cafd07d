package workflow

import "fmt"

// FormatRequestNumber renders MR-{YYYY}-{sequence}, the sequence zero-padded
// to five digits.
func FormatRequestNumber(year, seq int) string {
	return fmt.Sprintf("MR-%04d-%05d", year, seq)
}
