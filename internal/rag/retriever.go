package rag

import (
	"sort"
	"strings"

	"github.com/nikhilbhutani/pdfchat/internal/models"
)

const contextSeparator = "\n\n"

// Score ranks every chunk against query by cosine similarity, best
// first. Ties keep store order.
func Score(query []float32, chunks []models.Chunk) []models.ScoredChunk {
	scored := make([]models.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = models.ScoredChunk{Chunk: c, Score: Cosine(query, c.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

// Retrieval is the outcome of the relevance gate.
type Retrieval struct {
	Grounded  bool
	BestScore float64
	Top       []models.ScoredChunk
	Context   string
}

// Gate keeps the topK best chunks of a descending list and reports them as
// grounded only when the best score reaches minScore.
func Gate(scored []models.ScoredChunk, topK int, minScore float64) Retrieval {
	if len(scored) == 0 {
		return Retrieval{}
	}

	r := Retrieval{BestScore: scored[0].Score}
	if r.BestScore < minScore {
		return r
	}

	top := scored[:min(topK, len(scored))]
	texts := make([]string, len(top))
	for i, c := range top {
		texts[i] = c.Chunk.Text
	}

	r.Grounded = true
	r.Top = top
	r.Context = strings.Join(texts, contextSeparator)
	return r
}
