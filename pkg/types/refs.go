package types

import (
	"fmt"
	"strings"
)

// URI is a structured resource identifier embedded in conversation history.
// It survives JSON round-trips as an object rather than a flat string so
// deserialization can revive it without re-parsing.
type URI struct {
	Scheme    string `json:"scheme"`
	Authority string `json:"authority,omitempty"`
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	Fragment  string `json:"fragment,omitempty"`
}

// String renders the URI in scheme://authority/path?query#fragment form.
func (u URI) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Authority)
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// IsZero reports whether the URI carries no information.
func (u URI) IsZero() bool {
	return u.Scheme == "" && u.Path == ""
}

// FileURI builds a file-scheme URI for a local path.
func FileURI(path string) URI {
	return URI{Scheme: "file", Path: path}
}

// Range is a position range inside a document, line/column based,
// one-indexed to match editor conventions.
type Range struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// String renders the range as "L1:C1-L2:C2".
func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.StartLine, r.StartColumn, r.EndLine, r.EndColumn)
}

// IsZero reports whether the range is the zero value.
func (r Range) IsZero() bool {
	return r == Range{}
}

// OffsetRange is a byte-offset span inside the raw request text.
type OffsetRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}
