// Package strutil holds rune-safe string helpers shared by the ai packages.
package strutil

// Ellipsis marks text shortened by Truncate.
const Ellipsis = "..."

// Clip returns at most maxRunes runes of s. It never splits a multi-byte
// character. A non-positive maxRunes yields "".
func Clip(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}

// Truncate is Clip plus an Ellipsis when anything was cut. It is meant for
// log fields and rationales, not for stored text.
func Truncate(s string, maxRunes int) string {
	clipped := Clip(s, maxRunes)
	if clipped == "" || len(clipped) == len(s) {
		return clipped
	}
	return clipped + Ellipsis
}
