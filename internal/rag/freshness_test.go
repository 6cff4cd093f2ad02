package rag

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/pkg/models"
)

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func writeMetaFor(t *testing.T, indexDir string, indexedFiles map[string]models.IndexedFileInfo, provider, model string) {
	t.Helper()
	meta := models.IndexMeta{
		EmbeddingProvider: provider,
		EmbeddingModel:    model,
		IndexedFiles:      indexedFiles,
		LastIndexedAt:     time.Now().UTC(),
	}
	require.NoError(t, WriteIndex(indexDir, sampleChunks(), sampleVectors(), meta))
}

func TestFreshness_MissingIndexReportsMissing(t *testing.T) {
	sourceDir := t.TempDir()
	indexDir := t.TempDir() // exists, but has no meta.json

	report, err := Freshness(indexDir, sourceDir, "openai", "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, models.Missing, report.Status)
}

func TestFreshness_ModelChangeReportsModelChanged(t *testing.T) {
	sourceDir := t.TempDir()
	writeSourceFile(t, sourceDir, "doc.txt", "hello")

	indexDir := t.TempDir()
	writeMetaFor(t, indexDir, map[string]models.IndexedFileInfo{}, "openai", "text-embedding-3-small")

	report, err := Freshness(indexDir, sourceDir, "openai", "text-embedding-3-large")
	require.NoError(t, err)
	assert.Equal(t, models.ModelChanged, report.Status)
}

func TestFreshness_UnchangedSourceIsFresh(t *testing.T) {
	sourceDir := t.TempDir()
	writeSourceFile(t, sourceDir, "doc.txt", "hello")
	info, err := os.Stat(filepath.Join(sourceDir, "doc.txt"))
	require.NoError(t, err)

	indexDir := t.TempDir()
	writeMetaFor(t, indexDir, map[string]models.IndexedFileInfo{
		"doc.txt": {ModifiedAt: info.ModTime().Add(time.Second)},
	}, "openai", "text-embedding-3-small")

	report, err := Freshness(indexDir, sourceDir, "openai", "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, models.Fresh, report.Status)
}

func TestFreshness_NewFileIsStale(t *testing.T) {
	sourceDir := t.TempDir()
	writeSourceFile(t, sourceDir, "doc.txt", "hello")

	indexDir := t.TempDir()
	writeMetaFor(t, indexDir, map[string]models.IndexedFileInfo{}, "openai", "text-embedding-3-small")

	report, err := Freshness(indexDir, sourceDir, "openai", "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, models.Stale, report.Status)
	assert.Contains(t, report.ChangedOrNewFiles, "doc.txt")
}

func TestFreshness_RemovedFileIsStale(t *testing.T) {
	sourceDir := t.TempDir()

	indexDir := t.TempDir()
	writeMetaFor(t, indexDir, map[string]models.IndexedFileInfo{
		"gone.txt": {ModifiedAt: time.Now().UTC()},
	}, "openai", "text-embedding-3-small")

	report, err := Freshness(indexDir, sourceDir, "openai", "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, models.Stale, report.Status)
	assert.Contains(t, report.RemovedFiles, "gone.txt")
}

func TestFreshness_DotfilesSkipped(t *testing.T) {
	sourceDir := t.TempDir()
	writeSourceFile(t, sourceDir, ".hidden", "secret")
	require.NoError(t, os.Mkdir(filepath.Join(sourceDir, ".git"), 0755))
	writeSourceFile(t, filepath.Join(sourceDir, ".git"), "config", "x")

	indexDir := t.TempDir()
	writeMetaFor(t, indexDir, map[string]models.IndexedFileInfo{}, "openai", "text-embedding-3-small")

	report, err := Freshness(indexDir, sourceDir, "openai", "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, models.Fresh, report.Status)
}
