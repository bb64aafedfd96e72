package parser

import (
	"os"

	"github.com/foldermind/docindex/internal/chunk"
)

// TextParser reads a file verbatim as UTF-8 plain text.
type TextParser struct{}

// NewTextParser constructs the fallback parser used for any extension
// without a more specific registration.
func NewTextParser() *TextParser { return &TextParser{} }

// Version bumps whenever TextParser's extraction semantics change.
func (p *TextParser) Version() int { return 1 }

func (p *TextParser) Parse(path string) ([]chunk.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []chunk.Page{{Number: 0, Text: string(data)}}, nil
}
