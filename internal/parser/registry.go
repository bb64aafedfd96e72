// Package parser implements the Parser Registry: an extension-keyed map of
// Parser implementations, each declaring its own version so bumping one
// format's extraction logic only invalidates files of that format (data
// model invariant 5).
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/foldermind/docindex/internal/chunk"
)

// Parser extracts plain text (optionally paginated) from one file format.
type Parser interface {
	// Version identifies this parser's extraction logic. A file's recorded
	// parser_version is compared against this value to detect staleness
	// when the parser itself changes shape.
	Version() int
	// Parse reads path and returns its text, split into pages. Formats with
	// no page concept return a single Page numbered 0.
	Parse(path string) ([]chunk.Page, error)
}

// Registry dispatches to a Parser by lowercased file extension.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds the default registry: plain text and Markdown for
// everything, tree-sitter-backed parsing for common source extensions.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	text := NewTextParser()
	markdown := NewMarkdownParser()
	code := NewCodeParser()

	for _, ext := range []string{".txt", ".text", ""} {
		r.parsers[ext] = text
	}
	for _, ext := range []string{".md", ".markdown"} {
		r.parsers[ext] = markdown
	}
	for _, ext := range code.Extensions() {
		r.parsers[ext] = code
	}

	return r
}

// Register overrides (or adds) the parser used for ext (must start with a
// dot, e.g. ".rst").
func (r *Registry) Register(ext string, p Parser) {
	r.parsers[strings.ToLower(ext)] = p
}

// For resolves the parser for path's extension. Unknown extensions fall
// back to the plain-text parser: every file is at least readable as text.
func (r *Registry) For(path string) Parser {
	ext := strings.ToLower(filepath.Ext(path))
	if p, ok := r.parsers[ext]; ok {
		return p
	}
	return r.parsers[".txt"]
}

// Parse resolves and runs the parser for path in one call.
func (r *Registry) Parse(path string) ([]chunk.Page, error) {
	p := r.For(path)
	if p == nil {
		return nil, fmt.Errorf("no parser registered for %s", path)
	}
	return p.Parse(path)
}

// VersionFor returns the declared parser version for path's extension, used
// by the reconciler to detect a stale parser_version (invariant 5).
func (r *Registry) VersionFor(path string) int {
	return r.For(path).Version()
}
