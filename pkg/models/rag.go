package models

import "time"

// Chunk is one retrievable unit of a source document.
type Chunk struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	ByteStart  int    `json:"byte_start"`
	ByteEnd    int    `json:"byte_end"`
}

// IndexedFileInfo is the freshness fingerprint recorded per indexed file.
type IndexedFileInfo struct {
	ModifiedAt time.Time `json:"modified_at"`
	ChunkCount int       `json:"chunk_count"`
}

// IndexMeta is the pretty-printed meta.json sidecar of a RAG index.
type IndexMeta struct {
	Version           int                        `json:"version"`
	EmbeddingProvider string                     `json:"embedding_provider"`
	EmbeddingModel    string                     `json:"embedding_model"`
	Dimensions        int                        `json:"dimensions"`
	ChunkSize         int                        `json:"chunk_size"`
	Overlap           int                        `json:"overlap"`
	Strategy          string                     `json:"strategy"`
	FileCount         int                        `json:"file_count"`
	ChunkCount        int                        `json:"chunk_count"`
	TotalChars        int                        `json:"total_chars"`
	IndexedFiles      map[string]IndexedFileInfo `json:"indexed_files"`
	LastIndexedAt     time.Time                  `json:"last_indexed_at"`
	IndexSizeBytes    int64                      `json:"index_size_bytes"`
}

// FreshnessStatus is the outcome of comparing an on-disk index against the
// current state of its source folder.
type FreshnessStatus string

const (
	Fresh        FreshnessStatus = "fresh"
	Stale        FreshnessStatus = "stale"
	Missing      FreshnessStatus = "missing"
	ModelChanged FreshnessStatus = "model_changed"
)

// SearchResult is one scored hit from a RAG search.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// IndexVectorHeader is the fixed-size little-endian header of vectors.bin.
const (
	VectorsMagic   uint32 = 0x52414756 // "RAGV" as a big-endian word; stored little-endian as "VGAR"
	VectorsVersion uint32 = 1
	VectorsHeaderSize = 16
)
