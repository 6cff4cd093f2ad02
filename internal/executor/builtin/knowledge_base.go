package builtin

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/rag"
	"github.com/ai-studio/workflow-core/pkg/models"
)

var binaryExtractFormats = map[string]bool{
	"pdf": true, "docx": true, "xlsx": true, "xls": true, "pptx": true,
}

// KnowledgeBaseExecutor verifies the docs folder, re-indexes if stale,
// embeds the query, and searches.
type KnowledgeBaseExecutor struct{}

func (KnowledgeBaseExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	docsFolder := exec.GetStringDefault(node.Config, "docsFolder", "")
	if docsFolder == "" {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("knowledge_base %s: docsFolder is required", nodeID))
	}
	if _, err := os.Stat(docsFolder); err != nil {
		return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("knowledge_base %s: docs folder missing", nodeID), err)
	}

	indexDir := filepath.Join(docsFolder, ".ai-studio-index")
	provider := exec.GetStringDefault(node.Config, "embeddingProvider", "openai")
	model := exec.GetStringDefault(node.Config, "embeddingModel", "text-embedding-3-small")
	chunkSize := exec.GetIntDefault(node.Config, "chunkSize", 500)
	overlap := exec.GetIntDefault(node.Config, "overlap", 50)
	strategy := exec.GetStringDefault(node.Config, "strategy", "recursive")
	topK := exec.GetIntDefault(node.Config, "topK", 5)
	threshold := exec.GetFloatDefault(node.Config, "threshold", 0.0)

	report, err := rag.Freshness(indexDir, docsFolder, provider, model)
	if err != nil {
		return nil, err
	}
	if report.Status != models.Fresh {
		if err := reindex(ctx, ec, docsFolder, indexDir, provider, model, chunkSize, overlap, strategy); err != nil {
			return nil, err
		}
	}

	query := queryText(node, incoming)
	vectors, _, err := ec.Sidecar.Embed(ctx, []string{query}, provider, model, nil)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperr.New(apperr.Sidecar, "knowledge_base: embedding returned no vectors for query")
	}

	results, err := rag.Search(indexDir, normalize(vectors[0]), topK)
	if err != nil {
		return nil, err
	}

	var filtered []models.SearchResult
	for _, r := range results {
		if float64(r.Score) >= threshold {
			filtered = append(filtered, r)
		}
	}

	meta, _ := rag.ReadMeta(indexDir)
	stats := map[string]interface{}{}
	if meta != nil {
		stats = map[string]interface{}{
			"fileCount":  meta.FileCount,
			"chunkCount": meta.ChunkCount,
			"dimensions": meta.Dimensions,
		}
	}

	return &models.NodeOutput{Value: map[string]interface{}{
		"context":    rag.FormatContext(filtered),
		"results":    filtered,
		"indexStats": stats,
	}}, nil
}

func queryText(node *models.Node, incoming interface{}) string {
	if m, ok := incoming.(map[string]interface{}); ok {
		if q, ok := m["query"].(string); ok && q != "" {
			return q
		}
	}
	if s, ok := incoming.(string); ok && s != "" {
		return s
	}
	return exec.GetStringDefault(node.Config, "query", "")
}

func reindex(ctx context.Context, ec *exec.Context, docsFolder, indexDir, provider, model string, chunkSize, overlap int, strategy string) error {
	files, err := collectDocFiles(docsFolder)
	if err != nil {
		return err
	}

	var allChunks []models.Chunk
	indexedFiles := map[string]models.IndexedFileInfo{}
	totalChars := 0

	for _, relPath := range files {
		fullPath := filepath.Join(docsFolder, relPath)
		text, err := extractText(ctx, ec, fullPath)
		if err != nil {
			return err
		}

		chunks := rag.ChunkText(text, relPath, rag.ChunkConfig{
			ChunkSize: chunkSize, Overlap: overlap, Strategy: rag.Strategy(strategy),
		})
		for i := range chunks {
			chunks[i].ID = len(allChunks)
			allChunks = append(allChunks, chunks[i])
		}
		totalChars += len(text)

		info, err := os.Stat(fullPath)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "stat indexed file", err)
		}
		indexedFiles[relPath] = models.IndexedFileInfo{
			ModifiedAt: info.ModTime().UTC().Truncate(time.Second),
			ChunkCount: len(chunks),
		}
	}

	if len(allChunks) == 0 {
		return apperr.New(apperr.Validation, "knowledge_base: no text extracted from docs folder")
	}

	texts := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.Text
	}

	vectors, dims, err := ec.Sidecar.Embed(ctx, texts, provider, model, nil)
	if err != nil {
		return err
	}
	if len(vectors) != len(allChunks) {
		return apperr.New(apperr.Sidecar, fmt.Sprintf("knowledge_base: embedding returned %d vectors for %d chunks", len(vectors), len(allChunks)))
	}

	for i, v := range vectors {
		if len(v) != dims {
			return apperr.New(apperr.Sidecar, fmt.Sprintf("knowledge_base: vector %d has %d dims, expected %d", i, len(v), dims))
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return apperr.New(apperr.Validation, fmt.Sprintf("knowledge_base: vector %d contains a non-finite value", i))
			}
		}
		vectors[i] = normalize(v)
	}

	meta := models.IndexMeta{
		Version:           1,
		EmbeddingProvider: provider,
		EmbeddingModel:    model,
		Dimensions:        dims,
		ChunkSize:         chunkSize,
		Overlap:           overlap,
		Strategy:          strategy,
		FileCount:         len(files),
		TotalChars:        totalChars,
		IndexedFiles:      indexedFiles,
		LastIndexedAt:     time.Now().UTC().Truncate(time.Second),
	}

	return rag.WriteIndex(indexDir, allChunks, vectors, meta)
}

func collectDocFiles(docsFolder string) ([]string, error) {
	var out []string
	err := filepath.Walk(docsFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.Contains(path, ".ai-studio-index") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Contains(path, ".ai-studio-index") {
			return nil
		}
		rel, err := filepath.Rel(docsFolder, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "walk docs folder", err)
	}
	return out, nil
}

func extractText(ctx context.Context, ec *exec.Context, fullPath string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fullPath)), ".")
	if binaryExtractFormats[ext] {
		return ec.Sidecar.Extract(ctx, fullPath, ext)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read doc file", err)
	}
	return string(data), nil
}

// normalize L2-normalizes v, returning the zero vector unchanged for a
// zero-norm input.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
