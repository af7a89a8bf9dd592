package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks_Short(t *testing.T) {
	assert.Nil(t, SplitChunks("   ", 100, 10))
	assert.Equal(t, []string{"hello"}, SplitChunks("  hello ", 100, 10))
}

func TestSplitChunks_SentenceBoundary(t *testing.T) {
	sentence := strings.Repeat("a", 59) + ". "
	text := strings.Repeat(sentence, 40) // 2440 runes

	chunks := SplitChunks(text, DefaultChunkSize, DefaultChunkOverlap)
	require.Greater(t, len(chunks), 2)
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), DefaultChunkSize, "chunk %d", i)
		assert.True(t, strings.HasSuffix(c, "."), "chunk %d should end at a sentence: %q", i, c[len(c)-5:])
	}
}

func TestSplitChunks_Overlap(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks := SplitChunks(text, 100, 20)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 90)
}

func TestSplitChunks_Multibyte(t *testing.T) {
	text := strings.Repeat("é", 150)

	chunks := SplitChunks(text, 100, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, 100, len([]rune(chunks[0])))
	assert.Equal(t, 50, len([]rune(chunks[1])))
}
