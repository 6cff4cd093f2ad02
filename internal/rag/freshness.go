package rag

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// FreshnessReport is the per-file comparison backing a Freshness call.
type FreshnessReport struct {
	Status      models.FreshnessStatus
	ChangedOrNewFiles []string
	RemovedFiles      []string
}

// Freshness compares an index's meta.json against the current state of
// sourceDir (walked recursively, skipping dotfiles and dotdirs) and the
// embedding model currently configured.
func Freshness(indexDir, sourceDir, embeddingProvider, embeddingModel string) (*FreshnessReport, error) {
	meta, err := ReadMeta(indexDir)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return &FreshnessReport{Status: models.Missing}, nil
		}
		return nil, err
	}

	if meta.EmbeddingProvider != embeddingProvider || meta.EmbeddingModel != embeddingModel {
		return &FreshnessReport{Status: models.ModelChanged}, nil
	}

	current := map[string]os.FileInfo{}
	err = filepath.Walk(sourceDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if info.IsDir() {
			if strings.HasPrefix(base, ".") && path != sourceDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(base, ".") {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		current[rel] = info
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "walk source directory", err)
	}

	report := &FreshnessReport{Status: models.Fresh}

	for rel, info := range current {
		recorded, ok := meta.IndexedFiles[rel]
		if !ok || info.ModTime().After(recorded.ModifiedAt) {
			report.ChangedOrNewFiles = append(report.ChangedOrNewFiles, rel)
		}
	}
	for rel := range meta.IndexedFiles {
		if _, ok := current[rel]; !ok {
			report.RemovedFiles = append(report.RemovedFiles, rel)
		}
	}

	if len(report.ChangedOrNewFiles) > 0 || len(report.RemovedFiles) > 0 {
		report.Status = models.Stale
	}
	return report, nil
}
