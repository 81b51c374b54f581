package chunker

import (
	"errors"
	"iter"
	"strings"
	"unicode/utf8"
)

var ErrInvalidOverlap = errors.New("chunk overlap must be smaller than chunk size")

type ChunkOptions struct {
	ChunkSize    int // window size in words
	ChunkOverlap int // words shared by consecutive windows
	MinChars     int // a window is emitted only if its trimmed length exceeds this
}

func DefaultOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    180,
		ChunkOverlap: 40,
		MinChars:     40,
	}
}

// Chunker splits text into overlapping word windows.
type Chunker struct {
	opts ChunkOptions
}

func New(opts ChunkOptions) (*Chunker, error) {
	if opts.ChunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, ErrInvalidOverlap
	}
	return &Chunker{opts: opts}, nil
}

func (c *Chunker) Options() ChunkOptions {
	return c.opts
}

// Chunks returns the windows of text. The sequence is computed lazily and
// may be ranged over more than once.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	step := c.opts.ChunkSize - c.opts.ChunkOverlap

	return func(yield func(string) bool) {
		words := strings.Fields(text)
		for start := 0; start < len(words); start += step {
			end := min(start+c.opts.ChunkSize, len(words))
			window := strings.Join(words[start:end], " ")
			if utf8.RuneCountInString(strings.TrimSpace(window)) <= c.opts.MinChars {
				continue
			}
			if !yield(window) {
				return
			}
		}
	}
}

// Chunk collects Chunks into a slice.
func (c *Chunker) Chunk(text string) []string {
	var out []string
	for w := range c.Chunks(text) {
		out = append(out, w)
	}
	return out
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
