package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/foldermind/docindex/internal/chunk"
)

// CodeParser splits source files along top-level declaration boundaries
// using tree-sitter, so the Chunker's windows don't straddle unrelated
// functions as often as naive line-based splitting would. Declares its own
// parser version so grammar upgrades don't force re-parsing of Markdown or
// plain-text files.
type CodeParser struct {
	languages map[string]*sitter.Language
}

func NewCodeParser() *CodeParser {
	return &CodeParser{
		languages: map[string]*sitter.Language{
			".go":   golang.GetLanguage(),
			".py":   python.GetLanguage(),
			".js":   javascript.GetLanguage(),
			".jsx":  javascript.GetLanguage(),
			".ts":   typescript.GetLanguage(),
			".tsx":  typescript.GetLanguage(),
			".rs":   rust.GetLanguage(),
			".java": java.GetLanguage(),
		},
	}
}

// Extensions lists the source extensions this parser claims from the registry.
func (p *CodeParser) Extensions() []string {
	exts := make([]string, 0, len(p.languages))
	for ext := range p.languages {
		exts = append(exts, ext)
	}
	return exts
}

// Version bumps whenever the declaration-boundary splitting rules change.
func (p *CodeParser) Version() int { return 1 }

func (p *CodeParser) Parse(path string) ([]chunk.Page, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lang := p.languages[strings.ToLower(filepath.Ext(path))]
	if lang == nil {
		return []chunk.Page{{Number: 0, Text: string(source)}}, nil
	}

	sp := sitter.NewParser()
	sp.SetLanguage(lang)
	tree, err := sp.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		// A file that fails to parse (syntax error, unsupported dialect) is
		// still indexable as plain text rather than dropped.
		return []chunk.Page{{Number: 0, Text: string(source)}}, nil
	}

	root := tree.RootNode()
	if root == nil || int(root.ChildCount()) == 0 {
		return []chunk.Page{{Number: 0, Text: string(source)}}, nil
	}

	pages := make([]chunk.Page, 0, root.ChildCount())
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		text := string(source[child.StartByte():child.EndByte()])
		pages = append(pages, chunk.Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return []chunk.Page{{Number: 0, Text: string(source)}}, nil
	}
	return pages, nil
}
