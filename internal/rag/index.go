package rag

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/pkg/models"
)

const (
	metaFileName    = "meta.json"
	chunksFileName  = "chunks.jsonl"
	offsetsFileName = "offsets.bin"
	vectorsFileName = "vectors.bin"
	lockFileName    = ".lock"
)

// indexFiles returns the paths of the four index files (not the lock).
func indexFiles(dir string) []string {
	return []string{
		filepath.Join(dir, metaFileName),
		filepath.Join(dir, chunksFileName),
		filepath.Join(dir, offsetsFileName),
		filepath.Join(dir, vectorsFileName),
	}
}

// WriteIndex atomically (re)writes a RAG index directory: the
// writer acquires the exclusive lock, stages all four files under
// .tmp-<uuid>/, moves any existing files aside to .old-<uuid>/, swaps the
// staged files into place, then removes the backup.
func WriteIndex(dir string, chunks []models.Chunk, vectors [][]float32, meta models.IndexMeta) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return apperr.Wrap(apperr.Internal, "create index dir", err)
	}

	lock, err := lockExclusive(filepath.Join(dir, lockFileName))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "acquire exclusive index lock", err)
	}
	defer lock.Unlock()

	tmpDir := filepath.Join(dir, ".tmp-"+uuid.New().String())
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return apperr.Wrap(apperr.Internal, "create staging dir", err)
	}
	defer os.RemoveAll(tmpDir)

	meta.ChunkCount = len(chunks)
	meta.Dimensions = 0
	if len(vectors) > 0 {
		meta.Dimensions = len(vectors[0])
	}

	if err := writeMetaFile(filepath.Join(tmpDir, metaFileName), meta); err != nil {
		return err
	}
	offsets, err := writeChunksFile(filepath.Join(tmpDir, chunksFileName), chunks)
	if err != nil {
		return err
	}
	if err := writeOffsetsFile(filepath.Join(tmpDir, offsetsFileName), offsets); err != nil {
		return err
	}
	if err := writeVectorsFile(filepath.Join(tmpDir, vectorsFileName), vectors, meta.Dimensions); err != nil {
		return err
	}

	gitignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		_ = os.WriteFile(gitignore, []byte("*\n"), 0600)
	}

	existing := indexFiles(dir)
	haveExisting := false
	for _, f := range existing {
		if _, err := os.Stat(f); err == nil {
			haveExisting = true
			break
		}
	}

	var backupDir string
	if haveExisting {
		backupDir = filepath.Join(dir, ".old-"+uuid.New().String())
		if err := os.MkdirAll(backupDir, 0700); err != nil {
			return apperr.Wrap(apperr.Internal, "create backup dir", err)
		}
		for _, f := range existing {
			name := filepath.Base(f)
			if _, err := os.Stat(f); err == nil {
				if err := os.Rename(f, filepath.Join(backupDir, name)); err != nil {
					return apperr.Wrap(apperr.Internal, "move existing index file aside", err)
				}
			}
		}
	}

	for _, name := range []string{metaFileName, chunksFileName, offsetsFileName, vectorsFileName} {
		if err := os.Rename(filepath.Join(tmpDir, name), filepath.Join(dir, name)); err != nil {
			return apperr.Wrap(apperr.Internal, "move staged index file into place", err)
		}
	}

	if backupDir != "" {
		_ = os.RemoveAll(backupDir)
	}

	if runtime.GOOS != "windows" {
		_ = os.Chmod(dir, 0700)
		for _, name := range []string{metaFileName, chunksFileName, offsetsFileName, vectorsFileName} {
			_ = os.Chmod(filepath.Join(dir, name), 0600)
		}
	}

	return nil
}

func writeMetaFile(path string, meta models.IndexMeta) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal index meta", err)
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return apperr.Wrap(apperr.Internal, "write meta.json", err)
	}
	return nil
}

// writeChunksFile writes one JSON chunk per line and returns, for each
// chunk, the byte offset at which its record begins.
func writeChunksFile(path string, chunks []models.Chunk) ([]uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create chunks.jsonl", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	offsets := make([]uint64, 0, len(chunks))
	var pos uint64
	for _, c := range chunks {
		offsets = append(offsets, pos)
		b, err := json.Marshal(c)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "marshal chunk", err)
		}
		n, err := w.Write(b)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "write chunk record", err)
		}
		pos += uint64(n)
		if err := w.WriteByte('\n'); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "write chunk newline", err)
		}
		pos++
	}
	if err := w.Flush(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "flush chunks.jsonl", err)
	}
	return offsets, nil
}

func writeOffsetsFile(path string, offsets []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create offsets.bin", err)
	}
	defer f.Close()

	buf := make([]byte, 8)
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(buf, off)
		if _, err := f.Write(buf); err != nil {
			return apperr.Wrap(apperr.Internal, "write offset record", err)
		}
	}
	return nil
}

// writeVectorsFile writes the fixed header followed by count*dims
// row-major float32s, little-endian.
func writeVectorsFile(path string, vectors [][]float32, dims int) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create vectors.bin", err)
	}
	defer f.Close()

	header := make([]byte, models.VectorsHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], models.VectorsMagic)
	binary.LittleEndian.PutUint32(header[4:8], models.VectorsVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(dims))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(vectors)))
	if _, err := f.Write(header); err != nil {
		return apperr.Wrap(apperr.Internal, "write vectors header", err)
	}

	w := bufio.NewWriter(f)
	buf := make([]byte, 4)
	for _, v := range vectors {
		if len(v) != dims {
			return apperr.New(apperr.Validation, fmt.Sprintf("vector has %d dims, expected %d", len(v), dims))
		}
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return apperr.Wrap(apperr.Internal, "write vector component", err)
			}
		}
	}
	return w.Flush()
}

// ReadMeta reads and parses meta.json. A missing or unreadable file is a
// NotFound-kind apperr (Freshness maps it to status Missing); unparseable
// JSON is a Validation-kind apperr.
func ReadMeta(dir string) (*models.IndexMeta, error) {
	lock, err := lockShared(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquire shared index lock", err)
	}
	defer lock.Unlock()

	b, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "read meta.json", err)
	}
	var meta models.IndexMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "parse meta.json", err)
	}
	return &meta, nil
}

// ReadChunk reads the chunk at position id using the offsets table for
// O(1) lookup.
func ReadChunk(dir string, id int) (*models.Chunk, error) {
	offsets, err := readOffsets(filepath.Join(dir, offsetsFileName))
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= len(offsets) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("chunk id %d out of range", id))
	}

	f, err := os.Open(filepath.Join(dir, chunksFileName))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open chunks.jsonl", err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(offsets[id]), 0); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "seek chunks.jsonl", err)
	}
	r := bufio.NewReader(f)
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, apperr.Wrap(apperr.Internal, "read chunk record", err)
	}

	var c models.Chunk
	if err := json.Unmarshal(trimNewline(line), &c); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "parse chunk record", err)
	}
	return &c, nil
}

func trimNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}

func readOffsets(path string) ([]uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read offsets.bin", err)
	}
	if len(b)%8 != 0 {
		return nil, apperr.New(apperr.Validation, "offsets.bin length is not a multiple of 8")
	}
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[i*8 : i*8+8])
	}
	return out, nil
}
