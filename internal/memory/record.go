// Package memory stores agent experiences and ranks them for recall by a
// combined relevance, recency and importance score.
package memory

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Type classifies a memory record.
type Type string

const (
	TypeObservation    Type = "observation"
	TypeDialogue       Type = "dialogue"
	TypeAction         Type = "action"
	TypeReflection     Type = "reflection"
	TypeMentorGuidance Type = "mentor_guidance"
	TypeUserSpecified  Type = "user_specified"
)

// ParseType validates a stored type string.
func ParseType(s string) (Type, bool) {
	switch t := Type(s); t {
	case TypeObservation, TypeDialogue, TypeAction, TypeReflection, TypeMentorGuidance, TypeUserSpecified:
		return t, true
	}
	return "", false
}

// Record is one immutable memory of one agent.
type Record struct {
	ID              string    `json:"memory_id"`
	AgentID         string    `json:"agent_id"`
	Timestamp       time.Time `json:"timestamp"`
	Type            Type      `json:"type"`
	Content         string    `json:"content"`
	Importance      int       `json:"importance"`
	RelatedAgentIDs []string  `json:"related_agent_ids,omitempty"`
}

// NewRecord builds a record with a fresh id. Importance is filled in by
// the store when the record is added.
func NewRecord(agentID string, ts time.Time, typ Type, content string, related ...string) Record {
	return Record{
		ID:              uuid.NewString(),
		AgentID:         agentID,
		Timestamp:       ts,
		Type:            typ,
		Content:         content,
		Importance:      DefaultImportance,
		RelatedAgentIDs: related,
	}
}

// Metadata keys stored next to each vector.
const (
	metaAgentID    = "agent_id"
	metaTimeISO    = "timestamp_iso"
	metaTimeUnix   = "timestamp_unix"
	metaType       = "type"
	metaImportance = "importance"
	metaMemoryID   = "memory_id"
	metaRelated    = "related_agent_ids"
)

// Metadata encodes the record's fields for a vector index.
func (r Record) Metadata() map[string]string {
	return map[string]string{
		metaAgentID:    r.AgentID,
		metaTimeISO:    r.Timestamp.UTC().Format(time.RFC3339),
		metaTimeUnix:   strconv.FormatInt(r.Timestamp.Unix(), 10),
		metaType:       string(r.Type),
		metaImportance: strconv.Itoa(r.Importance),
		metaMemoryID:   r.ID,
		metaRelated:    strings.Join(r.RelatedAgentIDs, ","),
	}
}

// Entry converts the record into an index entry carrying vec.
func (r Record) Entry(vec []float32) Entry {
	return Entry{ID: r.ID, Content: r.Content, Vector: vec, Metadata: r.Metadata()}
}

// RecordFromEntry rebuilds a record from stored metadata. The unix
// timestamp is authoritative; the ISO form is a fallback.
func RecordFromEntry(e Entry) (Record, error) {
	md := e.Metadata
	if md == nil {
		return Record{}, goerr.New("memory entry has no metadata", goerr.V("id", e.ID))
	}

	rec := Record{
		ID:      md[metaMemoryID],
		AgentID: md[metaAgentID],
		Content: e.Content,
	}
	if rec.ID == "" {
		rec.ID = e.ID
	}
	if rec.ID == "" || rec.AgentID == "" {
		return Record{}, goerr.New("memory entry missing identity", goerr.V("id", e.ID))
	}

	typ, ok := ParseType(md[metaType])
	if !ok {
		return Record{}, goerr.New("unknown memory type", goerr.V("id", rec.ID), goerr.V("type", md[metaType]))
	}
	rec.Type = typ

	imp, err := strconv.Atoi(md[metaImportance])
	if err != nil {
		return Record{}, goerr.Wrap(err, "invalid importance", goerr.V("id", rec.ID))
	}
	if imp < MinImportance || imp > MaxImportance {
		return Record{}, goerr.New("importance out of range", goerr.V("id", rec.ID), goerr.V("importance", imp))
	}
	rec.Importance = imp

	if unix, err := strconv.ParseInt(md[metaTimeUnix], 10, 64); err == nil {
		rec.Timestamp = time.Unix(unix, 0).UTC()
	} else if ts, err := time.Parse(time.RFC3339, md[metaTimeISO]); err == nil {
		rec.Timestamp = ts.UTC()
	} else {
		return Record{}, goerr.New("invalid memory timestamp", goerr.V("id", rec.ID))
	}

	if related := md[metaRelated]; related != "" {
		for _, id := range strings.Split(related, ",") {
			if id = strings.TrimSpace(id); id != "" {
				rec.RelatedAgentIDs = append(rec.RelatedAgentIDs, id)
			}
		}
	}
	return rec, nil
}
