package parser

import (
	"os"
	"regexp"

	"github.com/foldermind/docindex/internal/chunk"
)

var (
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdEmphasis  = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)\1`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdCodeFence = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")
)

// MarkdownParser strips common Markdown markup so the Chunker windows over
// prose rather than syntax. Code-fence markers are removed and their
// contents kept, but the heading, link and emphasis rules are applied to the
// whole text, fence contents included.
type MarkdownParser struct{}

func NewMarkdownParser() *MarkdownParser { return &MarkdownParser{} }

// Version bumps whenever the markup-stripping rules below change.
func (p *MarkdownParser) Version() int { return 1 }

func (p *MarkdownParser) Parse(path string) ([]chunk.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := string(data)
	text = mdCodeFence.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "$2")

	return []chunk.Page{{Number: 0, Text: text}}, nil
}
