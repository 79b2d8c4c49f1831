package trace

import (
	"fmt"
	"strings"
)

// Origin identifies the emitter of a fragment or card entry, for example
// "from Sample.TransformParameters". Origins never contain file positions so
// that emitted artifacts stay byte-stable across builds.
type Origin string

// From builds the origin tag for a method on an entity type.
func From(entity, method string) Origin {
	return Origin(fmt.Sprintf("from %s.%s", entity, method))
}

// Traced pairs a value with the origin that produced it.
type Traced[T any] struct {
	Value  T
	Origin Origin
}

// Fragment is a traced piece of program text. An empty fragment means the
// emitter contributes nothing to the stage.
type Fragment = Traced[string]

// Lines builds a fragment from statements, one per line.
func Lines(origin Origin, lines ...string) Fragment {
	return Fragment{Value: strings.Join(lines, "\n"), Origin: origin}
}

// Empty reports whether the fragment contributes nothing.
func Empty(f Fragment) bool {
	return strings.TrimSpace(f.Value) == ""
}

// Render returns the fragment text with " // <origin>" appended to each
// non-blank line. Fragments without an origin render unchanged.
func Render(f Fragment) string {
	if f.Origin == "" || f.Value == "" {
		return f.Value
	}
	lines := strings.Split(f.Value, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines[i] = line + " // " + string(f.Origin)
	}
	return strings.Join(lines, "\n")
}

// Join renders non-empty fragments and joins them with newlines.
// When plain is set the origin comments are omitted.
func Join(frags []Fragment, plain bool) string {
	var b strings.Builder
	for _, f := range frags {
		if Empty(f) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if plain {
			b.WriteString(f.Value)
		} else {
			b.WriteString(Render(f))
		}
	}
	return b.String()
}
