// Package util provides small helpers shared across the trackconv packages.
package util

import "strings"

// StrNumericCompare reports whether a sorts before b, comparing embedded
// runs of digits by numeric value rather than lexically. "frame2.png"
// therefore sorts before "frame10.png". Non-digit runs compare as plain
// strings.
func StrNumericCompare(a, b string) bool {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		if isDigit(a[ai]) && isDigit(b[bi]) {
			as := ai
			for ai < len(a) && isDigit(a[ai]) {
				ai++
			}
			bs := bi
			for bi < len(b) && isDigit(b[bi]) {
				bi++
			}
			an := strings.TrimLeft(a[as:ai], "0")
			bn := strings.TrimLeft(b[bs:bi], "0")
			if len(an) != len(bn) {
				return len(an) < len(bn)
			}
			if an != bn {
				return an < bn
			}
			continue
		}
		if a[ai] != b[bi] {
			return a[ai] < b[bi]
		}
		ai++
		bi++
	}
	return len(a)-ai < len(b)-bi
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
