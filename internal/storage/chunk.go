package storage

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	boundaryWindow      = 200
)

// SplitChunks cuts text into overlapping chunks of at most size runes,
// preferring to end a chunk at a sentence or paragraph boundary.
func SplitChunks(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	r := []rune(text)
	if len(r) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(r) {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else if b := sentenceBoundary(r, max(end-boundaryWindow, start), end); b > start {
			end = b
		}

		if c := strings.TrimSpace(string(r[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end >= len(r) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// sentenceBoundary returns the position just after the last sentence end in
// r[from:to], falling back to a paragraph break, then to to.
func sentenceBoundary(r []rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		switch r[i] {
		case '.', '!', '?':
			if i+1 < len(r) && unicode.IsSpace(r[i+1]) {
				return i + 1
			}
		}
	}
	for i := to - 1; i >= from; i-- {
		if r[i] == '\n' && i+1 < len(r) && r[i+1] == '\n' {
			return i + 1
		}
	}
	return to
}
