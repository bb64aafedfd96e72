package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFallsBackToTextParser(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.unknownext")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	pages, err := r.Parse(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "hello", pages[0].Text)
}

func TestRegistryDispatchesMarkdown(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	path := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nSome **bold** text."), 0o644))

	pages, err := r.Parse(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.NotContains(t, pages[0].Text, "#")
	assert.NotContains(t, pages[0].Text, "**")
}

func TestVersionForIsIndependentAcrossExtensions(t *testing.T) {
	r := NewRegistry()
	textV := r.VersionFor("a.txt")
	mdV := r.VersionFor("a.md")
	codeV := r.VersionFor("a.go")
	assert.Equal(t, 1, textV)
	assert.Equal(t, 1, mdV)
	assert.Equal(t, 1, codeV)
}

func TestCodeParserReturnsErrorOnReadError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Parse("/nonexistent/path/file.go")
	assert.Error(t, err)
}
