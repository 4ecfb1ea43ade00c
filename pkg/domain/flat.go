package domain

import "strings"

// NormalizeFlat trims and upper-cases a flat number so "a-101 " and "A-101"
// address the same unit.
func NormalizeFlat(flatNo string) string {
	return strings.ToUpper(strings.TrimSpace(flatNo))
}
