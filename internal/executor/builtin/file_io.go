package builtin

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

var deniedPathSubstrings = []string{
	".ssh", ".gnupg", ".config/ai-studio", "/etc/shadow", "/etc/passwd",
}

const defaultFileSizeLimit = 10 * 1024 * 1024

// canonicalizePath resolves path to an absolute, symlink-free form and
// rejects it if it touches the deny-list.
func canonicalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "resolve path", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = abs
		} else {
			return "", apperr.Wrap(apperr.Validation, "resolve symlinks", err)
		}
	}
	lower := strings.ToLower(resolved)
	for _, denied := range deniedPathSubstrings {
		if strings.Contains(lower, strings.ToLower(denied)) {
			return "", apperr.New(apperr.Validation, fmt.Sprintf("path %q touches a denied location", path))
		}
	}
	return resolved, nil
}

// withinBase reports whether candidate (already canonicalized) is inside
// base (already canonicalized) — guards against symlink escape for glob
// results.
func withinBase(base, candidate string) bool {
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FileReadExecutor reads one file in text/json/csv/binary mode.
type FileReadExecutor struct{}

func (FileReadExecutor) Execute(_ context.Context, nodeID string, node *models.Node, _ interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	path := exec.GetStringDefault(node.Config, "path", "")
	mode := exec.GetStringDefault(node.Config, "mode", "text")
	limit := int64(exec.GetIntDefault(node.Config, "maxBytes", defaultFileSizeLimit))

	resolved, err := canonicalizePath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, fmt.Sprintf("file_read %s: stat", nodeID), err)
	}
	if info.Size() > limit {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("file_read %s: file exceeds %d byte limit", nodeID, limit))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("file_read %s: read", nodeID), err)
	}

	switch mode {
	case "json":
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("file_read %s: parse json", nodeID), err)
		}
		return &models.NodeOutput{Value: v}, nil
	case "csv":
		records, err := parseCSV(data)
		if err != nil {
			return nil, err
		}
		return &models.NodeOutput{Value: records}, nil
	case "binary":
		mimeType := mime.TypeByExtension(filepath.Ext(resolved))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		return &models.NodeOutput{Value: map[string]interface{}{
			"data":     base64.StdEncoding.EncodeToString(data),
			"mimeType": mimeType,
		}}, nil
	default:
		return &models.NodeOutput{Value: string(data)}, nil
	}
}

// parseCSV is a simple quoted-field CSV parser. The first row is the
// header; each later row becomes a record keyed by header names, and a
// cell beyond the header's width is keyed col_N (N its 0-based column).
func parseCSV(data []byte) ([]map[string]string, error) {
	rows, err := splitCSVRows(string(data))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	var records []map[string]string
	for _, row := range rows[1:] {
		rec := map[string]string{}
		for i, cell := range row {
			key := fmt.Sprintf("col_%d", i)
			if i < len(header) {
				key = header[i]
			}
			rec[key] = cell
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitCSVRows(text string) ([][]string, error) {
	var rows [][]string
	var row []string
	var field strings.Builder
	inQuotes := false
	runes := []rune(strings.ReplaceAll(text, "\r\n", "\n"))

	flushField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	flushRow := func() {
		flushField()
		rows = append(rows, row)
		row = nil
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuotes:
			if r == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					field.WriteRune('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				field.WriteRune(r)
			}
		case r == '"':
			inQuotes = true
		case r == ',':
			flushField()
		case r == '\n':
			flushRow()
		default:
			field.WriteRune(r)
		}
	}
	if field.Len() > 0 || len(row) > 0 {
		flushRow()
	}
	return rows, nil
}

// FileGlobExecutor lists files matching a glob pattern, rejecting any
// match that escapes the canonical base directory.
type FileGlobExecutor struct{}

func (FileGlobExecutor) Execute(_ context.Context, nodeID string, node *models.Node, _ interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	base := exec.GetStringDefault(node.Config, "baseDir", ".")
	pattern := exec.GetStringDefault(node.Config, "pattern", "*")

	canonicalBase, err := canonicalizePath(base)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(canonicalBase, pattern))
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("file_glob %s: bad pattern", nodeID), err)
	}

	var out []string
	for _, m := range matches {
		resolved, err := canonicalizePath(m)
		if err != nil {
			continue
		}
		if withinBase(canonicalBase, resolved) {
			out = append(out, resolved)
		}
	}
	return &models.NodeOutput{Value: map[string]interface{}{"files": out, "count": len(out)}}, nil
}

// FileWriteExecutor writes text content to a file, expanding a leading
// ~ via os.UserHomeDir. ~otheruser forms are rejected as invalid rather
// than resolved.
type FileWriteExecutor struct{}

func (FileWriteExecutor) Execute(_ context.Context, nodeID string, node *models.Node, incoming interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	path := exec.GetStringDefault(node.Config, "path", "")
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}

	resolved, err := canonicalizeForWrite(expanded)
	if err != nil {
		return nil, err
	}

	content := contentOf(node, incoming)
	append_ := exec.GetBoolDefault(node.Config, "append", false)

	flags := os.O_CREATE | os.O_WRONLY
	if append_ {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(resolved, flags, 0600)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("file_write %s: open", nodeID), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(content); err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("file_write %s: write", nodeID), err)
	}
	if err := w.Flush(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("file_write %s: flush", nodeID), err)
	}

	return &models.NodeOutput{Value: map[string]interface{}{"path": resolved, "bytesWritten": len(content)}}, nil
}

func expandTilde(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, "resolve home directory", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	if strings.HasPrefix(path, "~") {
		return "", apperr.New(apperr.Validation, fmt.Sprintf("path %q: ~otheruser expansion is not supported", path))
	}
	return path, nil
}

// canonicalizeForWrite is like canonicalizePath but tolerates a
// not-yet-existing target file (only its parent directory must exist and
// resolve cleanly).
func canonicalizeForWrite(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "resolve path", err)
	}
	dir, err := canonicalizePath(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

func contentOf(node *models.Node, incoming interface{}) string {
	if content := exec.GetStringDefault(node.Config, "content", ""); content != "" {
		return content
	}
	if s, ok := incoming.(string); ok {
		return s
	}
	b, err := json.Marshal(incoming)
	if err != nil {
		return fmt.Sprintf("%v", incoming)
	}
	return string(b)
}
