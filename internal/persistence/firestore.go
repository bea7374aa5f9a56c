package persistence

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/talgya/mini-town/internal/memory"
)

const distanceField = "VectorDistance"

// memoryDoc is the Firestore document for one memory entry. Embedding is
// stored as a Vector32 so FindNearest can search it.
type memoryDoc struct {
	ID        string             `firestore:"ID"`
	Content   string             `firestore:"Content"`
	Embedding firestore.Vector32 `firestore:"Embedding,omitempty"`
	Metadata  map[string]string  `firestore:"Metadata"`
}

func toMemoryDoc(e memory.Entry) *memoryDoc {
	doc := &memoryDoc{ID: e.ID, Content: e.Content, Metadata: e.Metadata}
	if len(e.Vector) > 0 {
		doc.Embedding = firestore.Vector32(e.Vector)
	}
	return doc
}

func (d *memoryDoc) entry() memory.Entry {
	e := memory.Entry{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
	if len(d.Embedding) > 0 {
		e.Vector = []float32(d.Embedding)
	}
	return e
}

// FirestoreIndex is a memory.Index backed by Firestore vector search. Each
// memory collection is a subcollection under <prefix>memory_collections.
// Queries need a vector index on Embedding with cosine distance.
type FirestoreIndex struct {
	client *firestore.Client
	prefix string
}

var _ memory.Index = (*FirestoreIndex)(nil)

type FirestoreOption func(*FirestoreIndex)

// WithCollectionPrefix namespaces the root collection, e.g. per test run.
func WithCollectionPrefix(prefix string) FirestoreOption {
	return func(f *FirestoreIndex) {
		f.prefix = prefix
	}
}

func NewFirestoreIndex(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*FirestoreIndex, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}
	f := &FirestoreIndex{client: client}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FirestoreIndex) Close() error {
	return f.client.Close()
}

func (f *FirestoreIndex) entries(collection string) *firestore.CollectionRef {
	return f.client.Collection(f.prefix + "memory_collections").Doc(collection).Collection("entries")
}

func (f *FirestoreIndex) Upsert(ctx context.Context, collection string, e memory.Entry) error {
	if _, err := f.entries(collection).Doc(e.ID).Set(ctx, toMemoryDoc(e)); err != nil {
		return goerr.Wrap(err, "failed to upsert memory", goerr.V("collection", collection), goerr.V("id", e.ID))
	}
	return nil
}

// Query returns the n nearest entries. Score is 1 - cosine distance.
func (f *FirestoreIndex) Query(ctx context.Context, collection string, vec []float32, n int) ([]memory.Hit, error) {
	if n <= 0 || len(vec) == 0 {
		return nil, nil
	}
	vq := f.entries(collection).FindNearest("Embedding", firestore.Vector32(vec), n,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]memory.Hit, 0, n)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if status.Code(err) == codes.NotFound {
			return hits, nil
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate vector search results", goerr.V("collection", collection))
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory from vector search", goerr.V("doc", doc.Ref.ID))
		}
		dist, _ := doc.Data()[distanceField].(float64)
		hits = append(hits, memory.Hit{Entry: d.entry(), Score: 1 - dist})
	}
	memory.SortHits(hits)
	return hits, nil
}

func (f *FirestoreIndex) All(ctx context.Context, collection string) ([]memory.Entry, error) {
	iter := f.entries(collection).Documents(ctx)
	defer iter.Stop()

	var out []memory.Entry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories", goerr.V("collection", collection))
		}
		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory", goerr.V("doc", doc.Ref.ID))
		}
		out = append(out, d.entry())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
