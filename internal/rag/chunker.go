package rag

import (
	"github.com/nikhilbhutani/pdfchat/pkg/chunker"
	"github.com/nikhilbhutani/pdfchat/pkg/tokenizer"
)

type ChunkResult struct {
	Content    string
	Index      int
	TokenCount int
}

// PageChunks windows one page's text and keeps only windows of at least
// minWords words.
func PageChunks(c *chunker.Chunker, text string, minWords int) []ChunkResult {
	var results []ChunkResult
	for window := range c.Chunks(text) {
		if chunker.WordCount(window) < minWords {
			continue
		}
		results = append(results, ChunkResult{
			Content:    window,
			Index:      len(results),
			TokenCount: tokenizer.Estimate(window),
		})
	}
	return results
}
