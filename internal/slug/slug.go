// Package slug turns tool names into URL-safe identifiers.
package slug

import (
	"regexp"
	"strings"
)

// MaxLength is the longest slug we ever store.
const MaxLength = 120

// space is every Unicode whitespace character, which is wider
// than RE2's \s: vertical tab, Unicode space separators (NBSP, ideographic
// space, ...), line and paragraph separators and the BOM.
const space = `\s\v\p{Zs}\x{2028}\x{2029}\x{feff}`

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9` + space + `-]`)
	whitespace   = regexp.MustCompile(`[` + space + `]+`)
	dashes       = regexp.MustCompile(`-+`)
	valid        = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Generate builds the slug for name:
//
//	"Visual Studio Code" → "visual-studio-code"
//	"  Node.js -- Runtime " → "nodejs-runtime"
//
// The result is either empty (name had no usable characters) or matches
// ^[a-z0-9]+(-[a-z0-9]+)*$ and is at most MaxLength bytes long.
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = invalidChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	return s
}

// Valid reports whether s is a well-formed slug.
func Valid(s string) bool {
	return len(s) <= MaxLength && valid.MatchString(s)
}
