package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/ttony15/cpmai/internal/ai"
	"github.com/ttony15/cpmai/internal/model"
	"github.com/ttony15/cpmai/internal/queue"
	"github.com/ttony15/cpmai/internal/repository"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fetches int
	failOn  map[string]bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, failOn: map[string]bool{}}
}

func (f *fakeObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.failOn[key] {
		return nil, errors.New("object unavailable")
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeAI struct {
	mu           sync.Mutex
	analyzeCalls int
	embedCalls   int
	analyzeErr   error
	embedErr     error
	dimension    int
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) AnalyzeDocument(context.Context, []byte, string, model.DocumentCategory) (*model.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	result := &model.AnalysisResult{}
	result.Normalize()
	return result, nil
}

func (f *fakeAI) Embed(context.Context, string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	dim := f.dimension
	if dim == 0 {
		dim = 1536
	}
	return make([]float32, dim), nil
}

func (f *fakeAI) StreamAnswer(context.Context, string, func(string) error) error {
	return errors.New("not used in worker")
}

var _ ai.Client = (*fakeAI)(nil)

func setup(t *testing.T) (*repository.Memory, *fakeObjectStore, *fakeAI, *Processor) {
	t.Helper()
	mem := repository.NewMemory()
	store := newFakeObjectStore()
	aiClient := &fakeAI{}
	proc := NewProcessor(mem, mem, store, aiClient, 2)
	require.NoError(t, mem.CreateProject(context.Background(), &model.Project{
		ProjectID: "p1", OwnerID: "u1", Name: "Renovation",
	}))
	return mem, store, aiClient, proc
}

func addFile(t *testing.T, mem *repository.Memory, store *fakeObjectStore, id, name string) {
	t.Helper()
	key := "u1/p1/drawing/" + name
	store.objects[key] = []byte("%PDF-1.4 fake")
	require.NoError(t, mem.CreateFile(context.Background(), &model.UploadedFile{
		ID: id, FileName: name, StorageKey: key,
		OwnerID: "u1", ProjectID: "p1", DocumentCategory: model.CategoryDrawing,
	}))
}

func TestProcessFreshFile(t *testing.T) {
	mem, store, aiClient, proc := setup(t)
	addFile(t, mem, store, "f1", "plan.pdf")

	require.NoError(t, proc.ProcessProject(context.Background(), "p1", "u1"))

	require.Equal(t, 1, store.fetches)
	require.Equal(t, 1, aiClient.analyzeCalls)

	files, err := mem.ListByProject(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NotNil(t, files[0].AnalysisResult)
	require.Len(t, files[0].Embeddings, 1536)

	project, err := mem.Get(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, model.ProjectCompleted, project.Status)
}

func TestRerunIsIdempotent(t *testing.T) {
	mem, store, aiClient, proc := setup(t)
	addFile(t, mem, store, "f1", "plan.pdf")

	require.NoError(t, proc.ProcessProject(context.Background(), "p1", "u1"))
	require.NoError(t, proc.ProcessProject(context.Background(), "p1", "u1"))

	// The second run must not touch storage or the AI provider again.
	require.Equal(t, 1, store.fetches)
	require.Equal(t, 1, aiClient.analyzeCalls)
	require.Equal(t, 1, aiClient.embedCalls)
}

func TestBatchSurvivesFetchFailure(t *testing.T) {
	mem, store, aiClient, proc := setup(t)
	addFile(t, mem, store, "f1", "a.pdf")
	addFile(t, mem, store, "f2", "b.pdf")
	addFile(t, mem, store, "f3", "c.pdf")
	store.failOn["u1/p1/drawing/b.pdf"] = true

	require.NoError(t, proc.ProcessProject(context.Background(), "p1", "u1"))

	require.Equal(t, 2, aiClient.analyzeCalls)
	files, err := mem.ListByProject(context.Background(), "u1", "p1")
	require.NoError(t, err)
	var analyzed int
	for _, f := range files {
		if f.AnalysisResult != nil {
			analyzed++
		}
	}
	require.Equal(t, 2, analyzed)

	project, err := mem.Get(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, model.ProjectCompleted, project.Status)
}

func TestEmbeddingFailureKeepsAnalysis(t *testing.T) {
	mem, store, aiClient, proc := setup(t)
	addFile(t, mem, store, "f1", "plan.pdf")
	aiClient.embedErr = errors.New("embedding backend down")

	require.NoError(t, proc.ProcessProject(context.Background(), "p1", "u1"))

	files, err := mem.ListByProject(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.NotNil(t, files[0].AnalysisResult)
	require.Nil(t, files[0].Embeddings)
}

func TestAnalysisFailureStillEmbedsMetadata(t *testing.T) {
	mem, store, aiClient, proc := setup(t)
	addFile(t, mem, store, "f1", "plan.pdf")
	aiClient.analyzeErr = ai.ErrModelOutput

	require.NoError(t, proc.ProcessProject(context.Background(), "p1", "u1"))

	files, err := mem.ListByProject(context.Background(), "u1", "p1")
	require.NoError(t, err)
	require.Nil(t, files[0].AnalysisResult)
	require.NotNil(t, files[0].Embeddings)

	// The file stays eligible for an analysis retry on the next run.
	require.False(t, files[0].Processed())
}

func TestProjectNotFoundIsFatal(t *testing.T) {
	_, _, _, proc := setup(t)
	err := proc.ProcessProject(context.Background(), "missing", "u1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHandleProcessRejectsUnsupportedAction(t *testing.T) {
	_, store, aiClient, proc := setup(t)

	payload, err := json.Marshal(queue.ProcessPayload{
		ProjectID: "p1", UserID: "u1", Action: "delete",
	})
	require.NoError(t, err)
	task := asynq.NewTask(queue.ProcessProjectTask, payload)

	err = proc.handleProcess(context.Background(), task)
	require.ErrorIs(t, err, queue.ErrInvalidPayload)
	require.ErrorIs(t, err, asynq.SkipRetry)

	// Validation failures must short-circuit before any storage access.
	require.Equal(t, 0, store.fetches)
	require.Equal(t, 0, aiClient.analyzeCalls)
}

func TestHandleProcessNotFoundSkipsRetry(t *testing.T) {
	_, _, _, proc := setup(t)
	payload, err := json.Marshal(queue.ProcessPayload{
		ProjectID: "ghost", UserID: "u1", Action: "process",
	})
	require.NoError(t, err)
	err = proc.handleProcess(context.Background(), asynq.NewTask(queue.ProcessProjectTask, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
