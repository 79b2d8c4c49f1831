package model

import (
	"regexp"
	"strings"
)

var unsafeIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Sanitize maps a channel or sample name onto identifier characters.
func Sanitize(name string) string {
	return unsafeIdent.ReplaceAllString(name, "_")
}

// Join builds an identifier from its parts, snake-case style.
func Join(parts ...string) string {
	return strings.Join(parts, "_")
}
