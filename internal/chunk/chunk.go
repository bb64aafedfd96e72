// Package chunk implements the Chunker: a deterministic character-window
// splitter with overlap and offset tracking, operating on the plain text a
// Parser Registry entry extracts from a file (optionally per page).
package chunk

import "fmt"

// Page is one page of extracted text. Plain-text and Markdown parsers
// produce a single Page with Number 0; page-oriented formats (PDFs) produce
// one Page per page number.
type Page struct {
	Number int
	Text   string
}

// Chunk is one windowed slice of a page's text, with the character (rune)
// offset into that page's text where the window begins.
type Chunk struct {
	Page   int
	Offset int
	Text   string
}

// Config bounds the chunker's window size and overlap.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Validate rejects a configuration that could not produce forward progress.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be >= 0 and < chunk size")
	}
	return nil
}

// Chunker splits extracted page text into fixed-size, overlapping windows.
// Given the same Config and input it always returns the same chunks in the
// same order: it holds no state and consults nothing but its arguments.
type Chunker struct {
	cfg Config
}

// New constructs a Chunker. cfg must Validate.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Chunk splits every page of pages into windows. Empty pages (after
// trimming is the parser's job, not ours) produce no chunks. A page shorter
// than ChunkSize produces exactly one chunk covering the whole page.
func (c *Chunker) Chunk(pages []Page) []Chunk {
	var out []Chunk
	stride := c.cfg.ChunkSize - c.cfg.ChunkOverlap

	for _, page := range pages {
		runes := []rune(page.Text)
		n := len(runes)
		if n == 0 {
			continue
		}

		for start := 0; start < n; start += stride {
			end := start + c.cfg.ChunkSize
			if end > n {
				end = n
			}
			out = append(out, Chunk{
				Page:   page.Number,
				Offset: start,
				Text:   string(runes[start:end]),
			})
			if end == n {
				break
			}
		}
	}

	return out
}
