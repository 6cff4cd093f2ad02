package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_FixedSizeOverlapping(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxy" // 25 ASCII chars, a..y
	chunks := ChunkText(text, "doc.txt", ChunkConfig{ChunkSize: 10, Overlap: 2, Strategy: FixedSize})

	require.Len(t, chunks, 3)
	assert.Equal(t, "abcdefghij", chunks[0].Text)
	assert.Equal(t, "ijklmnopqr", chunks[1].Text)
	assert.Equal(t, "qrstuvwxy", chunks[2].Text)

	for i, c := range chunks {
		assert.Equal(t, i, c.ID)
		assert.Equal(t, "doc.txt", c.Source)
		assert.Equal(t, 1, c.LineStart)
		assert.Equal(t, 1, c.LineEnd)
	}
}

func TestChunkText_DefaultStrategyIsFixedSize(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxy"
	chunks := ChunkText(text, "doc.txt", ChunkConfig{ChunkSize: 10, Overlap: 2})
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcdefghij", chunks[0].Text)
}

func TestChunkText_ChunkSizeFlooredAtTen(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 1, Overlap: 0}
	cap := cfg.normalize()
	assert.Equal(t, 10, cfg.ChunkSize)
	assert.Equal(t, 2000, cap)
}

func TestChunkText_OverlapClampedBelowChunkSize(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 10, Overlap: 50}
	cfg.normalize()
	assert.Equal(t, 9, cfg.Overlap)
}

func TestChunkText_NegativeOverlapClampedToZero(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 10, Overlap: -5}
	cfg.normalize()
	assert.Equal(t, 0, cfg.Overlap)
}

func TestChunkText_HardCapTruncatesOversizedSentence(t *testing.T) {
	text := strings.Repeat("a", 2500) + "."
	chunks := ChunkText(text, "doc.txt", ChunkConfig{ChunkSize: 10, Strategy: Sentence})

	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Text, 2000)
	assert.Equal(t, 0, chunks[0].ByteStart)
	assert.Equal(t, 2000, chunks[0].ByteEnd)
}

func TestChunkText_EmptyTextProducesNoChunks(t *testing.T) {
	chunks := ChunkText("", "doc.txt", ChunkConfig{ChunkSize: 10})
	assert.Empty(t, chunks)
}

func TestChunkText_ParagraphSkipsBlankSegments(t *testing.T) {
	text := "first paragraph here for the first split point today\n\n\n\nsecond paragraph follows right after with more words"
	chunks := ChunkText(text, "doc.txt", ChunkConfig{ChunkSize: 20, Strategy: Paragraph})
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestChunkText_RecursiveSplitsOversizedParagraphBySentence(t *testing.T) {
	long := strings.Repeat("word word word. ", 20)
	chunks := ChunkText(long, "doc.txt", ChunkConfig{ChunkSize: 20, Strategy: Recursive})
	assert.Greater(t, len(chunks), 1)
}

func TestComputeLineOffsetsAndLineForOffset(t *testing.T) {
	text := "a\nbb\nccc"
	offsets := computeLineOffsets(text)
	assert.Equal(t, []int{0, 2, 5}, offsets)

	assert.Equal(t, 1, lineForOffset(offsets, 0))
	assert.Equal(t, 2, lineForOffset(offsets, 2))
	assert.Equal(t, 3, lineForOffset(offsets, 7))
}
