package rag

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// scoredHit is one candidate in the bounded top-K heap, ordered so that
// container/heap's root is the WORST surviving hit (lowest score, ties
// broken toward the higher chunk id) — the one evicted when a better
// candidate arrives.
type scoredHit struct {
	id    int
	score float32
}

type minHeap []scoredHit

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].id > h[j].id
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scoredHit)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mappedVectors is an mmap'd view of vectors.bin.
type mappedVectors struct {
	data  []byte
	dims  int
	count int
}

func openVectors(path string) (*mappedVectors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open vectors.bin", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "stat vectors.bin", err)
	}
	if info.Size() < models.VectorsHeaderSize {
		return nil, apperr.New(apperr.Validation, "vectors.bin shorter than header")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "mmap vectors.bin", err)
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	dims := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))
	if magic != models.VectorsMagic {
		unix.Munmap(data)
		return nil, apperr.New(apperr.Validation, "vectors.bin bad magic")
	}
	if version != models.VectorsVersion {
		unix.Munmap(data)
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("vectors.bin unsupported version %d", version))
	}
	wantLen := models.VectorsHeaderSize + 4*dims*count
	if len(data) != wantLen {
		unix.Munmap(data)
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("vectors.bin length %d, expected %d", len(data), wantLen))
	}

	return &mappedVectors{data: data, dims: dims, count: count}, nil
}

func (m *mappedVectors) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

func (m *mappedVectors) row(i int) []float32 {
	start := models.VectorsHeaderSize + 4*m.dims*i
	out := make([]float32, m.dims)
	for j := 0; j < m.dims; j++ {
		bits := binary.LittleEndian.Uint32(m.data[start+4*j : start+4*j+4])
		out[j] = math.Float32frombits(bits)
	}
	return out
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Search returns the top-K chunks by dot-product similarity between
// query and every stored vector, mmap'ing vectors.bin rather than loading
// it fully into memory. Ties break toward the lower chunk id.
func Search(dir string, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	mv, err := openVectors(filepath.Join(dir, vectorsFileName))
	if err != nil {
		return nil, err
	}
	defer mv.Close()

	if len(query) != mv.dims {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("query has %d dims, index has %d", len(query), mv.dims))
	}

	h := &minHeap{}
	heap.Init(h)
	for i := 0; i < mv.count; i++ {
		score := dotProduct(query, mv.row(i))
		if h.Len() < k {
			heap.Push(h, scoredHit{id: i, score: score})
			continue
		}
		worst := (*h)[0]
		if score > worst.score || (score == worst.score && i < worst.id) {
			heap.Pop(h)
			heap.Push(h, scoredHit{id: i, score: score})
		}
	}

	hits := make([]scoredHit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(h).(scoredHit)
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		c, err := ReadChunk(dir, hit.id)
		if err != nil {
			return nil, err
		}
		results = append(results, models.SearchResult{Chunk: *c, Score: hit.score})
	}
	return results, nil
}
