package stub

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kalambet/qadesk/internal/storage"
)

const maxAnswerChunks = 3

const (
	answerNoContent = "I don't have any content yet. Add a website or some text first."
	answerNoMatch   = "I couldn't find anything about that in the stored content."
	answerPreamble  = "Here is what I found in the stored content:"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true, "be": true, "can": true,
	"do": true, "does": true, "for": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "me": true, "much": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "what": true, "when": true, "where": true, "which": true, "who": true,
	"you": true, "your": true,
}

func keywords(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if !stopWords[w] {
			out[w] = true
		}
	}
	return out
}

type scoredChunk struct {
	score int
	order int
	chunk storage.Chunk
}

// relevantChunks ranks chunks by how many query keywords they contain.
func relevantChunks(query string, chunks []storage.Chunk, limit int) []storage.Chunk {
	q := keywords(query)
	if len(q) == 0 {
		return nil
	}

	var scored []scoredChunk
	for i, c := range chunks {
		score := 0
		for w := range keywords(c.Content) {
			if q[w] {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, scoredChunk{score: score, order: i, chunk: c})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]storage.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.chunk
	}
	return out
}

func composeAnswer(query string, chunks []storage.Chunk) string {
	if len(chunks) == 0 {
		return answerNoContent
	}
	hits := relevantChunks(query, chunks, maxAnswerChunks)
	if len(hits) == 0 {
		return answerNoMatch
	}
	parts := make([]string, 0, len(hits)+1)
	parts = append(parts, answerPreamble)
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, "\n\n")
}
