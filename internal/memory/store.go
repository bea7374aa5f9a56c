package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Retrieval defaults.
const (
	DefaultDecayFactor = 0.99
	DefaultTopK        = 10
)

// Scored is a retrieved record with its combined score.
type Scored struct {
	Record
	Relevance float64 `json:"relevance"`
	Recency   float64 `json:"recency"`
	Score     float64 `json:"score"`
}

// Store adds and retrieves agent memories. It never returns errors to the
// caller: storage and embedding failures are logged and yield empty
// results so the simulation keeps running.
type Store struct {
	index     Index
	embedder  Embedder
	estimator ImportanceEstimator
	decay     float64
	topK      int
}

type Option func(*Store)

// WithDecayFactor sets the hourly recency decay; values outside (0,1) are ignored.
func WithDecayFactor(f float64) Option {
	return func(s *Store) {
		if f > 0 && f < 1 {
			s.decay = f
		} else {
			slog.Warn("ignoring invalid memory decay factor", "decay", f)
		}
	}
}

// WithImportanceEstimator replaces the keyword heuristic.
func WithImportanceEstimator(e ImportanceEstimator) Option {
	return func(s *Store) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithTopK sets the default number of records returned by Retrieve.
func WithTopK(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.topK = k
		}
	}
}

func NewStore(idx Index, emb Embedder, opts ...Option) *Store {
	s := &Store{
		index:     idx,
		embedder:  emb,
		estimator: heuristicEstimator{},
		decay:     DefaultDecayFactor,
		topK:      DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DecayFactor() float64 { return s.decay }
func (s *Store) TopK() int            { return s.topK }

func (s *Store) importance(ctx context.Context, content string) int {
	v, err := s.estimator.EstimateImportance(ctx, content)
	if err != nil {
		slog.Warn("importance estimation failed, using default", "error", err, "default", DefaultImportance)
		return DefaultImportance
	}
	return ClampImportance(v)
}

// Add scores rec and stores it in the owning agent's collection. Empty
// content is skipped. Re-adding the same ID replaces the stored record.
func (s *Store) Add(ctx context.Context, rec Record) {
	if strings.TrimSpace(rec.Content) == "" {
		slog.Warn("skipping memory with empty content", "agent", rec.AgentID)
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Importance = s.importance(ctx, rec.Content)

	vecs, err := s.embedder.Embed(ctx, []string{rec.Content})
	if err != nil || len(vecs) != 1 {
		slog.Error("failed to embed memory", "agent", rec.AgentID, "memory", rec.ID, "error", err)
		return
	}

	if err := s.index.Upsert(ctx, CollectionName(rec.AgentID), rec.Entry(vecs[0])); err != nil {
		slog.Error("failed to store memory", "agent", rec.AgentID, "memory", rec.ID, "error", err)
		return
	}
	slog.Debug("memory added", "agent", rec.AgentID, "memory", rec.ID, "type", rec.Type, "importance", rec.Importance)
}

// Retrieve returns up to topK records for agentID ranked by
// relevance * importance/10 * decay^hours. A non-positive topK uses the
// store default.
func (s *Store) Retrieve(ctx context.Context, agentID, query string, now time.Time, topK int) []Record {
	scored := s.RetrieveScored(ctx, agentID, query, now, topK)
	out := make([]Record, len(scored))
	for i, sc := range scored {
		out[i] = sc.Record
	}
	return out
}

// RetrieveScored is Retrieve with the score components attached.
func (s *Store) RetrieveScored(ctx context.Context, agentID, query string, now time.Time, topK int) []Scored {
	if topK <= 0 {
		topK = s.topK
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		slog.Error("failed to embed memory query", "agent", agentID, "error", err)
		return nil
	}

	hits, err := s.index.Query(ctx, CollectionName(agentID), vecs[0], 2*topK)
	if err != nil {
		slog.Error("failed to query memories", "agent", agentID, "error", err)
		return nil
	}

	candidates := make([]Scored, 0, len(hits))
	for _, h := range hits {
		rec, err := RecordFromEntry(h.Entry)
		if err != nil {
			slog.Warn("dropping malformed memory", "agent", agentID, "id", h.ID, "error", err)
			continue
		}
		candidates = append(candidates, s.score(rec, h.Score, now))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	slog.Debug("memories retrieved", "agent", agentID, "candidates", len(hits), "returned", len(candidates))
	return candidates
}

func (s *Store) score(rec Record, relevance float64, now time.Time) Scored {
	hours := now.Sub(rec.Timestamp).Hours()
	recency := math.Pow(s.decay, hours)
	return Scored{
		Record:    rec,
		Relevance: relevance,
		Recency:   recency,
		Score:     relevance * (float64(rec.Importance) / 10) * recency,
	}
}

// GetAll returns every stored record of agentID, oldest first.
func (s *Store) GetAll(ctx context.Context, agentID string) []Record {
	entries, err := s.index.All(ctx, CollectionName(agentID))
	if err != nil {
		slog.Error("failed to list memories", "agent", agentID, "error", err)
		return nil
	}

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		rec, err := RecordFromEntry(e)
		if err != nil {
			slog.Warn("dropping malformed memory", "agent", agentID, "id", e.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
