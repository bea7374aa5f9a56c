package persistence

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/memory"
)

// MemoryIndex is a memory.Index stored in the SQLite database. Queries
// scan the whole collection, which stays small per agent.
type MemoryIndex struct {
	db *DB
}

var _ memory.Index = (*MemoryIndex)(nil)

func NewMemoryIndex(db *DB) *MemoryIndex {
	return &MemoryIndex{db: db}
}

type memoryRow struct {
	Collection   string `db:"collection"`
	ID           string `db:"id"`
	Content      string `db:"content"`
	Embedding    []byte `db:"embedding"`
	MetadataJSON string `db:"metadata_json"`
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func (r memoryRow) entry() (memory.Entry, error) {
	e := memory.Entry{ID: r.ID, Content: r.Content, Vector: decodeVector(r.Embedding)}
	if err := json.Unmarshal([]byte(r.MetadataJSON), &e.Metadata); err != nil {
		return memory.Entry{}, goerr.Wrap(err, "bad memory metadata", goerr.V("id", r.ID))
	}
	return e, nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, collection string, e memory.Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return goerr.Wrap(err, "failed to encode metadata", goerr.V("id", e.ID))
	}
	_, err = m.db.conn.NamedExecContext(ctx, `INSERT INTO memories (collection, id, content, embedding, metadata_json)
		VALUES (:collection, :id, :content, :embedding, :metadata_json)
		ON CONFLICT (collection, id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata_json = excluded.metadata_json`,
		memoryRow{
			Collection:   collection,
			ID:           e.ID,
			Content:      e.Content,
			Embedding:    encodeVector(e.Vector),
			MetadataJSON: string(meta),
		})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert memory", goerr.V("collection", collection), goerr.V("id", e.ID))
	}
	return nil
}

func (m *MemoryIndex) load(ctx context.Context, collection string) ([]memory.Entry, error) {
	var rows []memoryRow
	if err := m.db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM memories WHERE collection = ? ORDER BY id", collection); err != nil {
		return nil, goerr.Wrap(err, "failed to load memories", goerr.V("collection", collection))
	}
	out := make([]memory.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			slog.Warn("skipping unreadable memory", "collection", collection, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryIndex) Query(ctx context.Context, collection string, vec []float32, n int) ([]memory.Hit, error) {
	entries, err := m.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	hits := make([]memory.Hit, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		hits = append(hits, memory.Hit{Entry: e, Score: memory.Cosine(vec, e.Vector)})
	}
	memory.SortHits(hits)
	if n >= 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

func (m *MemoryIndex) All(ctx context.Context, collection string) ([]memory.Entry, error) {
	return m.load(ctx, collection)
}
