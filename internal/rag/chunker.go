// Package rag implements the local retrieval-augmented-generation engine:
// chunking, the on-disk index format, mmap'd top-K search, and freshness
// detection. The on-disk format and search
// algorithm are built from a byte-exact contract designed for this
// package, with explicit error wrapping and small
// focused files.
package rag

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// Strategy names the chunking algorithm.
type Strategy string

const (
	FixedSize Strategy = "fixed_size"
	Sentence  Strategy = "sentence"
	Paragraph Strategy = "paragraph"
	Recursive Strategy = "recursive"
)

// ChunkConfig configures a chunking pass.
type ChunkConfig struct {
	ChunkSize int
	Overlap   int
	Strategy  Strategy
}

// normalize floors/clamps the config and returns the
// hard character cap applied after initial chunking.
func (c *ChunkConfig) normalize() int {
	if c.ChunkSize < 10 {
		c.ChunkSize = 10
	}
	if c.Overlap > c.ChunkSize-1 {
		c.Overlap = c.ChunkSize - 1
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	cap := 2 * c.ChunkSize
	if cap < 2000 {
		cap = 2000
	}
	return cap
}

// rawChunk is a pre-line-numbered chunk: byte offsets into the normalized
// text, resolved to line numbers only once, at the end of ChunkText.
type rawChunk struct {
	text      string
	byteStart int
	byteEnd   int
}

// ChunkText splits text (source path recorded on every produced Chunk) per
// cfg.Strategy and returns 0-based sequentially identified chunks with
// 1-based inclusive line spans and byte spans into the CRLF-normalized text.
func ChunkText(text, source string, cfg ChunkConfig) []models.Chunk {
	cap := cfg.normalize()
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var raw []rawChunk
	switch cfg.Strategy {
	case Sentence:
		raw = chunkSentence(normalized, cfg.ChunkSize, cfg.Overlap)
	case Paragraph:
		raw = chunkParagraph(normalized, cfg.ChunkSize, cfg.Overlap)
	case Recursive:
		raw = chunkRecursive(normalized, cfg.ChunkSize, cfg.Overlap)
	default:
		raw = chunkFixedSize(normalized, cfg.ChunkSize, cfg.Overlap)
	}

	raw = applyHardCap(raw, normalized, cap)

	lineOffsets := computeLineOffsets(normalized)
	chunks := make([]models.Chunk, 0, len(raw))
	for i, r := range raw {
		chunks = append(chunks, models.Chunk{
			ID:        i,
			Text:      r.text,
			Source:    source,
			LineStart: lineForOffset(lineOffsets, r.byteStart),
			LineEnd:   lineForOffset(lineOffsets, maxInt(r.byteStart, r.byteEnd-1)),
			ByteStart: r.byteStart,
			ByteEnd:   r.byteEnd,
		})
	}
	return chunks
}

// applyHardCap truncates any chunk exceeding cap characters, adjusting its
// byte range to match.
func applyHardCap(raw []rawChunk, normalized string, cap int) []rawChunk {
	out := make([]rawChunk, 0, len(raw))
	for _, r := range raw {
		if utf8.RuneCountInString(r.text) <= cap {
			out = append(out, r)
			continue
		}
		truncated := truncateToRuneCount(r.text, cap)
		out = append(out, rawChunk{
			text:      truncated,
			byteStart: r.byteStart,
			byteEnd:   r.byteStart + len(truncated),
		})
	}
	return out
}

func truncateToRuneCount(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// chunkFixedSize advances character-wise, preferring a whitespace boundary
// near the target, all boundaries landing on UTF-8 code-point boundaries.
func chunkFixedSize(text string, size, overlap int) []rawChunk {
	runes := []rune(text)
	// byteOffsetOf maps a rune index to its byte offset in text.
	byteOffsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		byteOffsets[i] = off
		off += utf8.RuneLen(r)
	}
	byteOffsets[len(runes)] = off

	var chunks []rawChunk
	start := 0
	n := len(runes)
	if n == 0 {
		return chunks
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}

	for start < n {
		end := start + size
		if end > n {
			end = n
		} else {
			// Prefer a whitespace boundary near the target end.
			pref := end
			for pref > start && pref < n && !isSpaceRune(runes[pref]) {
				pref--
			}
			if pref > start {
				end = pref
			}
		}

		chunkText := string(runes[start:end])
		chunks = append(chunks, rawChunk{
			text:      chunkText,
			byteStart: byteOffsets[start],
			byteEnd:   byteOffsets[end],
		})

		if end >= n {
			break
		}
		nextStart := start + step
		if nextStart <= start {
			nextStart = start + 1
		}
		start = nextStart
	}
	return chunks
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

// sentenceBoundaries finds the byte offsets just after every sentence-ending
// punctuation mark in text (ASCII .!? followed by whitespace/EOF, or CJK
// 。！？ unconditionally), skipping single-uppercase-letter abbreviations.
func sentenceBoundaries(text string) []int {
	runes := []rune(text)
	byteOffsets := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		byteOffsets[i] = off
		off += utf8.RuneLen(r)
	}
	byteOffsets[len(runes)] = off

	var bounds []int
	for i, r := range runes {
		isCJK := r == '。' || r == '！' || r == '？'
		isASCII := r == '.' || r == '!' || r == '?'
		if !isCJK && !isASCII {
			continue
		}
		if isASCII {
			followedByWS := i+1 >= len(runes) || isSpaceRune(runes[i+1])
			if !followedByWS {
				continue
			}
			// Abbreviation heuristic: single uppercase letter then '.'.
			if r == '.' && i >= 1 && isUpperLetter(runes[i-1]) && (i < 2 || isSpaceRune(runes[i-2])) {
				continue
			}
		}
		bounds = append(bounds, byteOffsets[i+1])
	}
	if len(bounds) == 0 || bounds[len(bounds)-1] != byteOffsets[len(runes)] {
		bounds = append(bounds, byteOffsets[len(runes)])
	}
	return bounds
}

func isUpperLetter(r rune) bool { return r >= 'A' && r <= 'Z' }

// chunkSentence splits into sentences then merges until chunkSize chars,
// with overlap applied in characters.
func chunkSentence(text string, size, overlap int) []rawChunk {
	bounds := sentenceBoundaries(text)
	var sentences []rawChunk
	start := 0
	for _, b := range bounds {
		if b <= start {
			continue
		}
		sentences = append(sentences, rawChunk{text: text[start:b], byteStart: start, byteEnd: b})
		start = b
	}
	return mergeToChunkSize(sentences, text, size, overlap)
}

// mergeToChunkSize merges consecutive segments until their combined
// character count reaches size, re-seeding the next chunk with the last
// `overlap` characters of the previous one.
func mergeToChunkSize(segments []rawChunk, fullText string, size, overlap int) []rawChunk {
	if len(segments) == 0 {
		return nil
	}

	var chunks []rawChunk
	i := 0
	for i < len(segments) {
		cur := segments[i]
		curRunes := utf8.RuneCountInString(cur.text)
		j := i + 1
		for j < len(segments) && curRunes < size {
			curRunes += utf8.RuneCountInString(segments[j].text)
			cur.byteEnd = segments[j].byteEnd
			cur.text = fullText[cur.byteStart:cur.byteEnd]
			j++
		}
		chunks = append(chunks, cur)

		if overlap <= 0 || j >= len(segments) {
			i = j
			continue
		}
		// Re-seed next pass from `overlap` characters before cur.byteEnd,
		// by walking segments backward; simplest correct approach: back up
		// to the first segment index whose suffix covers `overlap` chars.
		i = backUpForOverlap(segments, j, cur.byteEnd, overlap, fullText)
	}
	return chunks
}

func backUpForOverlap(segments []rawChunk, nextIdx, _ int, overlap int, fullText string) int {
	// Walk backward from nextIdx-1 accumulating character counts until we've
	// covered `overlap` characters, then resume from there.
	acc := 0
	idx := nextIdx
	for k := nextIdx - 1; k >= 0; k-- {
		acc += utf8.RuneCountInString(segments[k].text)
		idx = k
		if acc >= overlap {
			break
		}
	}
	_ = fullText
	if idx >= nextIdx {
		return nextIdx
	}
	return idx
}

// chunkParagraph splits at \n\n; falls through to sentence strategy on the
// entire text if any resulting chunk exceeds 2*size characters.
func chunkParagraph(text string, size, overlap int) []rawChunk {
	parts := strings.Split(text, "\n\n")
	var chunks []rawChunk
	offset := 0
	tooLarge := false
	for _, p := range parts {
		start := offset
		end := offset + len(p)
		if utf8.RuneCountInString(p) > 2*size {
			tooLarge = true
		}
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, rawChunk{text: p, byteStart: start, byteEnd: end})
		}
		offset = end + 2 // account for the removed "\n\n"
	}
	if tooLarge {
		return chunkSentence(text, size, overlap)
	}
	return chunks
}

// chunkRecursive runs paragraph first; any chunk still exceeding 2*size
// characters is re-split by sentence within that chunk, preserving global
// byte offsets.
func chunkRecursive(text string, size, overlap int) []rawChunk {
	parts := strings.Split(text, "\n\n")
	var chunks []rawChunk
	offset := 0
	for _, p := range parts {
		start := offset
		offset += len(p) + 2

		if strings.TrimSpace(p) == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= 2*size {
			chunks = append(chunks, rawChunk{text: p, byteStart: start, byteEnd: start + len(p)})
			continue
		}
		sub := chunkSentence(p, size, overlap)
		for _, s := range sub {
			chunks = append(chunks, rawChunk{
				text:      s.text,
				byteStart: start + s.byteStart,
				byteEnd:   start + s.byteEnd,
			})
		}
	}
	return chunks
}

// computeLineOffsets returns, for each 0-based line index, the byte offset
// at which that line begins.
func computeLineOffsets(text string) []int {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// lineForOffset binary-searches lineOffsets for the 1-based line number
// containing byteOffset.
func lineForOffset(lineOffsets []int, byteOffset int) int {
	idx := sort.Search(len(lineOffsets), func(i int) bool { return lineOffsets[i] > byteOffset })
	return idx // idx-1 is the 0-based line; +1 for 1-based = idx
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
