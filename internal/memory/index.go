package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// Entry is one stored vector with its document text and metadata.
type Entry struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// Hit is a nearest-neighbour result. Score is a similarity, higher is closer.
type Hit struct {
	Entry
	Score float64
}

// Index is a per-collection nearest-neighbour store. Upsert replaces any
// entry with the same ID.
type Index interface {
	Upsert(ctx context.Context, collection string, e Entry) error
	Query(ctx context.Context, collection string, vec []float32, n int) ([]Hit, error)
	All(ctx context.Context, collection string) ([]Entry, error)
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CollectionName returns the isolated collection for an agent.
func CollectionName(agentID string) string {
	var b strings.Builder
	b.WriteString("agent_")
	for _, r := range agentID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MemoryIndex is an in-process Index. Data does not survive restarts.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]map[string]Entry)}
}

func copyEntry(e Entry) Entry {
	out := Entry{ID: e.ID, Content: e.Content}
	if e.Vector != nil {
		out.Vector = make([]float32, len(e.Vector))
		copy(out.Vector, e.Vector)
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (m *MemoryIndex) Upsert(_ context.Context, collection string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.collections[collection]
	if !ok {
		bucket = make(map[string]Entry)
		m.collections[collection] = bucket
	}
	bucket[e.ID] = copyEntry(e)
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, collection string, vec []float32, n int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.collections[collection]
	hits := make([]Hit, 0, len(bucket))
	for _, e := range bucket {
		if len(e.Vector) == 0 {
			continue
		}
		hits = append(hits, Hit{Entry: copyEntry(e), Score: Cosine(vec, e.Vector)})
	}
	SortHits(hits)
	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func (m *MemoryIndex) All(_ context.Context, collection string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.collections[collection]
	out := make([]Entry, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SortHits orders hits by descending score, then ID.
func SortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
