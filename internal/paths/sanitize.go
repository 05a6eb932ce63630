// SPDX-License-Identifier: MIT

// Package paths turns video records into repository-relative directories.
// A configurable placeholder pattern produces the layout; titles are folded
// into filesystem-safe segments without flattening non-Latin scripts.
package paths

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxSegmentBytes caps one sanitized component. Most filesystems stop at
// 255 bytes per name; the pattern may still prepend a date prefix.
const maxSegmentBytes = 128

// Sanitize folds a free-form title into a directory-name-safe segment.
// Letters and digits of any script survive; separators, punctuation,
// controls, and path syntax become '-'; runs collapse; leading and trailing
// separators are stripped. The result is capped at a UTF-8 boundary.
func Sanitize(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	lastDash := false
	for _, r := range s {
		switch {
		case r == '.' || r == '_':
			b.WriteRune(r)
			lastDash = false
		case r == '-':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	out := strings.Trim(b.String(), "-._")
	out = truncateUTF8(out, maxSegmentBytes)
	return strings.Trim(out, "-._")
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
