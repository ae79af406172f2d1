package strutil

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// ErrInvalidArgument is returned when a string primitive (or something built
// on one) receives input it can't work with.
var ErrInvalidArgument = errors.New("invalid argument")

// IsMultibyte reports whether s, once HTML entities are decoded, contains any
// byte outside of the ASCII range.
func IsMultibyte(s string) bool {
	d := html.UnescapeString(s)
	for i := 0; i < len(d); i++ {
		if d[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// Length returns the number of code points in s after decoding HTML
// entities, so "caf&eacute;" and "café" both have a length of 4.
func Length(s string) int {
	return utf8.RuneCountInString(html.UnescapeString(s))
}

// Substring returns up to length code points of s beginning at code point
// start. A negative length means "through the end of the string". Bounds
// past the end of s are clamped, so the result may be shorter than length or
// empty.
func Substring(s string, start, length int) (string, error) {
	if start < 0 {
		return "", fmt.Errorf("%w: negative substring start %v", ErrInvalidArgument, start)
	}

	// Walk to the byte offset of the start'th code point
	from := len(s)
	n := 0
	for i := range s {
		if n == start {
			from = i
			break
		}
		n++
	}

	if length < 0 {
		return s[from:], nil
	}

	to := len(s)
	n = 0
	for i := range s[from:] {
		if n == length {
			to = from + i
			break
		}
		n++
	}

	return s[from:to], nil
}

// Upper maps s to upper case, e.g., for charset names in MIME headers.
func Upper(s string) string {
	return strings.ToUpper(s)
}

// Lower maps s to lower case, e.g., for comparing config keywords.
func Lower(s string) string {
	return strings.ToLower(s)
}
