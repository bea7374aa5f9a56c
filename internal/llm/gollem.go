package llm

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// GollemCompleter adapts a gollem client. Each call opens a fresh session
// so agents never share conversation history.
type GollemCompleter struct {
	client gollem.LLMClient
	json   bool
}

// NewGollemCompleter wraps client. With jsonOutput the session asks the
// model for a JSON response.
func NewGollemCompleter(client gollem.LLMClient, jsonOutput bool) *GollemCompleter {
	return &GollemCompleter{client: client, json: jsonOutput}
}

func (g *GollemCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	opts := []gollem.SessionOption{gollem.WithSessionSystemPrompt(system)}
	if g.json {
		opts = append(opts, gollem.WithSessionContentType(gollem.ContentTypeJSON))
	}

	session, err := g.client.NewSession(ctx, opts...)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(user))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return "", goerr.New("empty LLM response")
	}
	return strings.Join(resp.Texts, "\n"), nil
}

// Embedder produces embeddings through a gollem client.
type Embedder struct {
	client    gollem.LLMClient
	dimension int
}

func NewEmbedder(client gollem.LLMClient, dimension int) *Embedder {
	return &Embedder{client: client, dimension: dimension}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := e.client.GenerateEmbedding(ctx, e.dimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embeddings", goerr.V("count", len(texts)))
	}
	if len(embeddings) != len(texts) {
		return nil, goerr.New("embedding count mismatch", goerr.V("want", len(texts)), goerr.V("got", len(embeddings)))
	}

	out := make([][]float32, len(embeddings))
	for i, vec64 := range embeddings {
		if len(vec64) == 0 {
			return nil, goerr.New("empty embedding", goerr.V("index", i))
		}
		vec := make([]float32, len(vec64))
		for j, v := range vec64 {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
