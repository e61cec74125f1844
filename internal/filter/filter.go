// Package filter decides which paths under an archive root are kept.
package filter

import (
	"os"
	"strings"
)

// IgnoreSet holds bare path-segment names. A segment equal to a member
// excludes that path and everything beneath it.
type IgnoreSet map[string]struct{}

// NewIgnoreSet builds a set from names, dropping empty ones. Names are kept
// verbatim; " build" does not match "build".
func NewIgnoreSet(names ...string) IgnoreSet {
	set := make(IgnoreSet, len(names))
	for _, name := range names {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// Contains reports whether segment is ignored.
func (s IgnoreSet) Contains(segment string) bool {
	_, ok := s[segment]
	return ok
}

// Included reports whether relativePath survives the ignore set. Segments are
// split on the platform separator and on '/', and compared exactly.
func Included(relativePath string, ignore IgnoreSet) bool {
	if len(ignore) == 0 {
		return true
	}
	for _, segment := range strings.FieldsFunc(relativePath, isSeparator) {
		if ignore.Contains(segment) {
			return false
		}
	}
	return true
}

func isSeparator(r rune) bool {
	return r == '/' || r == os.PathSeparator
}
