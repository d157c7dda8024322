package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttony15/cpmai/internal/model"
	"github.com/ttony15/cpmai/internal/repository"
)

type stubAI struct {
	embeddings map[string][]float32
	embedCalls int
	streamed   string
	tokens     []string
}

func (s *stubAI) Name() string { return "stub" }

func (s *stubAI) AnalyzeDocument(context.Context, []byte, string, model.DocumentCategory) (*model.AnalysisResult, error) {
	return nil, errors.New("not used in chat")
}

func (s *stubAI) Embed(_ context.Context, text string) ([]float32, error) {
	s.embedCalls++
	if vec, ok := s.embeddings[text]; ok {
		return vec, nil
	}
	return []float32{1, 0}, nil
}

func (s *stubAI) StreamAnswer(ctx context.Context, prompt string, emit func(string) error) error {
	s.streamed = prompt
	for _, tok := range s.tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(tok); err != nil {
			return err
		}
	}
	return nil
}

func seedFile(t *testing.T, mem *repository.Memory, owner, project, id, name string, vec []float32) {
	t.Helper()
	require.NoError(t, mem.CreateFile(context.Background(), &model.UploadedFile{
		ID: id, FileName: name, StorageKey: owner + "/" + project + "/drawing/" + name,
		OwnerID: owner, ProjectID: project, DocumentCategory: model.CategoryDrawing,
	}))
	require.NoError(t, mem.SaveProcessingResult(context.Background(), id, &model.AnalysisResult{}, vec))
}

func TestSearchScopeIsolation(t *testing.T) {
	mem := repository.NewMemory()
	// File X belongs to (p1, u1), file Y to (q1, v1). Y is an exact match
	// for the query vector but must never leak into u1's scope.
	seedFile(t, mem, "u1", "p1", "x", "x.pdf", []float32{0.9, 0.1})
	seedFile(t, mem, "v1", "q1", "y", "y.pdf", []float32{1, 0})

	ai := &stubAI{embeddings: map[string][]float32{"where is the rebar schedule?": {1, 0}}}
	pipe, err := New(mem, ai)
	require.NoError(t, err)

	entries, err := pipe.Search(context.Background(), "u1", "p1", "where is the rebar schedule?")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "x.pdf", entries[0].FileName)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	mem := repository.NewMemory()
	seedFile(t, mem, "u1", "p1", "far", "far.pdf", []float32{0, 1})
	seedFile(t, mem, "u1", "p1", "near", "near.pdf", []float32{1, 0.05})

	ai := &stubAI{embeddings: map[string][]float32{"q": {1, 0}}}
	pipe, err := New(mem, ai)
	require.NoError(t, err)

	entries, err := pipe.Search(context.Background(), "u1", "p1", "q")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "near.pdf", entries[0].FileName)
	require.Equal(t, "far.pdf", entries[1].FileName)
}

func TestSearchEmptyScope(t *testing.T) {
	mem := repository.NewMemory()
	pipe, err := New(mem, &stubAI{})
	require.NoError(t, err)
	entries, err := pipe.Search(context.Background(), "u1", "p1", "anything")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestQueryEmbeddingCached(t *testing.T) {
	mem := repository.NewMemory()
	seedFile(t, mem, "u1", "p1", "x", "x.pdf", []float32{1, 0})
	ai := &stubAI{}
	pipe, err := New(mem, ai)
	require.NoError(t, err)

	_, err = pipe.Search(context.Background(), "u1", "p1", "same question")
	require.NoError(t, err)
	_, err = pipe.Search(context.Background(), "u1", "p1", "same question")
	require.NoError(t, err)
	require.Equal(t, 1, ai.embedCalls)
}

func TestAnswerGroundsPromptAndStrips(t *testing.T) {
	mem := repository.NewMemory()
	seedFile(t, mem, "u1", "p1", "x", "plans.pdf", []float32{1, 0})

	ai := &stubAI{tokens: []string{"All ", "good."}}
	pipe, err := New(mem, ai)
	require.NoError(t, err)

	var sb strings.Builder
	err = pipe.Answer(context.Background(), "u1", "p1", "are the plans complete?", func(tok string) error {
		sb.WriteString(tok)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "All good.", sb.String())

	require.Contains(t, ai.streamed, "plans.pdf")
	require.Contains(t, ai.streamed, "are the plans complete?")
	require.Contains(t, ai.streamed, "don't have enough information")
	// Identifiers and vectors must never reach the model prompt.
	require.NotContains(t, ai.streamed, "storage_key")
	require.NotContains(t, ai.streamed, "embeddings")
	require.NotContains(t, ai.streamed, "u1/p1/drawing/plans.pdf")
}

func TestAnswerStopsWhenCallerGone(t *testing.T) {
	mem := repository.NewMemory()
	seedFile(t, mem, "u1", "p1", "x", "plans.pdf", []float32{1, 0})

	ai := &stubAI{tokens: []string{"a", "b", "c", "d"}}
	pipe, err := New(mem, ai)
	require.NoError(t, err)

	disconnect := errors.New("client disconnected")
	var got int
	err = pipe.Answer(context.Background(), "u1", "p1", "q", func(string) error {
		got++
		if got == 2 {
			return disconnect
		}
		return nil
	})
	require.ErrorIs(t, err, disconnect)
	require.Equal(t, 2, got)
}
