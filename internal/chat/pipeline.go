// Package chat answers free-text questions grounded in a project's analyzed
// files.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ttony15/cpmai/internal/ai"
	"github.com/ttony15/cpmai/internal/model"
	"github.com/ttony15/cpmai/internal/vector"
)

const (
	// candidateLimit caps how many scoped records are pulled before ranking;
	// resultLimit caps how many ranked records enter the grounding context.
	candidateLimit = 150
	resultLimit    = 100

	queryCacheSize = 256
)

// FileSearcher returns a scope's embedded file records. The (owner,
// project) filter is a hard constraint applied by the store, never a
// ranking factor.
type FileSearcher interface {
	ListEmbedded(ctx context.Context, ownerID, projectID string, limit int) ([]model.UploadedFile, error)
}

// Pipeline embeds queries, ranks scoped documents and streams grounded
// answers.
type Pipeline struct {
	files FileSearcher
	ai    ai.Client
	// Query embeddings are cached so repeated questions skip one backend
	// round trip. Documents and queries must share one embedding model.
	queryCache *lru.Cache[string, []float32]
}

// New constructs the pipeline.
func New(files FileSearcher, aiClient ai.Client) (*Pipeline, error) {
	cache, err := lru.New[string, []float32](queryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init query cache: %w", err)
	}
	return &Pipeline{files: files, ai: aiClient, queryCache: cache}, nil
}

// Search returns the grounding-context entries best matching the query,
// scoped to one owner and project. Internal identifiers, storage keys and
// embedding vectors are already stripped from the result.
func (p *Pipeline) Search(ctx context.Context, ownerID, projectID, query string) ([]model.ContextEntry, error) {
	queryVec, err := p.queryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := p.files.ListEmbedded(ctx, ownerID, projectID, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(candidates))
	for i := range candidates {
		vectors[i] = candidates[i].Embeddings
	}
	matches := vector.TopK(queryVec, vectors, resultLimit)
	entries := make([]model.ContextEntry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, candidates[m.Index].ContextView())
	}
	return entries, nil
}

// Answer runs the full retrieval-augmented generation flow, forwarding
// tokens to emit as they arrive. Cancelling ctx stops the backend stream;
// a failed stream surfaces as a truncated answer, not a restart.
func (p *Pipeline) Answer(ctx context.Context, ownerID, projectID, query string, emit func(token string) error) error {
	entries, err := p.Search(ctx, ownerID, projectID, query)
	if err != nil {
		return err
	}
	contextJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal grounding context: %w", err)
	}
	prompt := ai.GroundingPrompt(string(contextJSON), query)
	return p.ai.StreamAnswer(ctx, prompt, emit)
}

func (p *Pipeline) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := p.queryCache.Get(query); ok {
		return vec, nil
	}
	vec, err := p.ai.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	p.queryCache.Add(query, vec)
	return vec, nil
}
