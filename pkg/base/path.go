package base

import (
	"strings"
)

// PathSeparator joins the segments of a nested field path on the wire.
const PathSeparator = "."

// operatorMarker separates a field path from its operator in query keys, so
// it cannot appear inside a segment either.
const operatorMarker = "?"

// Path addresses a possibly nested field, such as "profile.age". The zero
// value is invalid; build paths with ParsePath or NewPath.
type Path struct {
	segments []string
}

// ParsePath parses a dotted field reference.
func ParsePath(dotted string) (Path, error) {
	if dotted == "" {
		return Path{}, &InvalidPathError{Path: dotted, Reason: "path is empty"}
	}
	return NewPath(strings.Split(dotted, PathSeparator)...)
}

// NewPath builds a path from explicit segments. Segments may not be empty
// and may not contain the separator or the query operator marker.
func NewPath(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return Path{}, &InvalidPathError{Reason: "path has no segments"}
	}
	joined := strings.Join(segments, PathSeparator)
	for _, s := range segments {
		switch {
		case s == "":
			return Path{}, &InvalidPathError{Path: joined, Reason: "empty segment"}
		case strings.Contains(s, PathSeparator):
			return Path{}, &InvalidPathError{Path: joined, Reason: "segment " + s + " contains the separator"}
		case strings.Contains(s, operatorMarker):
			return Path{}, &InvalidPathError{Path: joined, Reason: "segment " + s + " contains " + operatorMarker}
		}
	}
	return Path{segments: append([]string(nil), segments...)}, nil
}

// MustPath is like ParsePath but panics on error. Intended for constants.
func MustPath(dotted string) Path {
	p, err := ParsePath(dotted)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the canonical wire form.
func (p Path) String() string {
	return strings.Join(p.segments, PathSeparator)
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	return append([]string(nil), p.segments...)
}

// IsZero reports whether p was never initialised.
func (p Path) IsZero() bool {
	return len(p.segments) == 0
}

// Resolve looks the path up in item, descending through nested objects.
func (p Path) Resolve(item Item) (any, error) {
	if p.IsZero() {
		return nil, &InvalidPathError{Reason: "path has no segments"}
	}
	var cur any = map[string]any(item)
	for _, seg := range p.segments {
		obj, ok := asObject(cur)
		if !ok {
			return nil, ErrFieldNotFound
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, ErrFieldNotFound
		}
	}
	return cur, nil
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Item:
		return m, true
	default:
		return nil, false
	}
}
