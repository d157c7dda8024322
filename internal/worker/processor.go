// Package worker runs the file-processing orchestrator as an asynq
// consumer.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/ttony15/cpmai/internal/ai"
	"github.com/ttony15/cpmai/internal/model"
	"github.com/ttony15/cpmai/internal/queue"
	"github.com/ttony15/cpmai/internal/repository"
)

// ProjectStore is the project persistence the orchestrator needs.
type ProjectStore interface {
	Get(ctx context.Context, ownerID, projectID string) (*model.Project, error)
	UpdateStatus(ctx context.Context, projectID string, status model.ProjectStatus) error
}

// FileStore is the file persistence the orchestrator needs.
type FileStore interface {
	ListByProject(ctx context.Context, ownerID, projectID string) ([]model.UploadedFile, error)
	SaveProcessingResult(ctx context.Context, fileID string, analysis *model.AnalysisResult, embeddings []float32) error
}

// ObjectStore fetches document bytes by storage key.
type ObjectStore interface {
	Download(ctx context.Context, objectKey string) ([]byte, error)
}

// Processor drives one project's file set through fetch, analysis,
// embedding and persistence.
type Processor struct {
	projects    ProjectStore
	files       FileStore
	store       ObjectStore
	ai          ai.Client
	concurrency int
}

// NewProcessor constructs the orchestrator. concurrency bounds how many
// files are processed at once, which also bounds outbound AI-provider
// concurrency.
func NewProcessor(projects ProjectStore, files FileStore, store ObjectStore, aiClient ai.Client, concurrency int) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Processor{
		projects:    projects,
		files:       files,
		store:       store,
		ai:          aiClient,
		concurrency: concurrency,
	}
}

// Handler registers the process job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessProjectTask, p.handleProcess)
	return mux
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return errors.Join(fmt.Errorf("decode payload: %w", err), asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		// Client error: surfaced immediately, no storage or database access,
		// no retry.
		return errors.Join(err, asynq.SkipRetry)
	}
	if err := p.ProcessProject(ctx, payload.ProjectID, payload.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errors.Join(err, asynq.SkipRetry)
		}
		// Transient batch failures are retryable: idempotence makes
		// re-running the whole job safe.
		return err
	}
	return nil
}

// ProcessProject runs the batch for one project: every file needing
// processing is attempted exactly once, per-file failures never abort the
// batch, and the project is marked completed once the batch ran to the end.
func (p *Processor) ProcessProject(ctx context.Context, projectID, userID string) error {
	if _, err := p.projects.Get(ctx, userID, projectID); err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	files, err := p.files.ListByProject(ctx, userID, projectID)
	if err != nil {
		return fmt.Errorf("list files for project %s: %w", projectID, err)
	}

	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, p.concurrency)
		mu        sync.Mutex
		processed int
		failed    int
		skipped   int
		fatal     error
	)
	for i := range files {
		file := files[i]
		if file.Processed() {
			// Already analyzed: no re-download, no re-invocation, no
			// re-embedding.
			skipped++
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			ok, err := p.processFile(ctx, &file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal == nil {
					fatal = err
				}
				failed++
				return
			}
			if ok {
				processed++
			} else {
				failed++
			}
		}()
	}
	wg.Wait()

	log.Printf("project %s batch done: %d processed, %d skipped, %d failed", projectID, processed, skipped, failed)
	if fatal != nil {
		return fatal
	}
	if err := p.projects.UpdateStatus(ctx, projectID, model.ProjectCompleted); err != nil {
		return fmt.Errorf("mark project %s completed: %w", projectID, err)
	}
	return nil
}

// processFile runs steps fetch, analyze, embed, persist for one file. The
// returned error is batch-fatal (persistence unreachable); everything else
// is logged and contained at the file boundary.
func (p *Processor) processFile(ctx context.Context, file *model.UploadedFile) (bool, error) {
	content, err := p.store.Download(ctx, file.StorageKey)
	if err != nil {
		log.Printf("project %s file %s: fetch %s failed: %v", file.ProjectID, file.FileName, file.StorageKey, err)
		return false, nil
	}

	analysis, err := p.ai.AnalyzeDocument(ctx, content, file.FileName, file.DocumentCategory)
	if err != nil {
		// Analysis failure still proceeds to embedding: the vector also
		// indexes file name, category and description.
		log.Printf("project %s file %s: analysis failed: %v", file.ProjectID, file.FileName, err)
		analysis = nil
	}
	if analysis != nil {
		file.AnalysisResult = analysis
	}

	var embeddings []float32
	if text, err := file.EmbeddingText(); err != nil {
		log.Printf("project %s file %s: embedding payload: %v", file.ProjectID, file.FileName, err)
	} else if vec, err := p.ai.Embed(ctx, text); err != nil {
		log.Printf("project %s file %s: embedding failed: %v", file.ProjectID, file.FileName, err)
	} else {
		embeddings = vec
	}

	if analysis == nil && embeddings == nil {
		// Nothing achieved this pass; the file stays unprocessed and a job
		// re-run will pick it up again.
		return false, nil
	}
	if err := p.files.SaveProcessingResult(ctx, file.ID, analysis, embeddings); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("project %s file %s: record vanished before save", file.ProjectID, file.FileName)
			return false, nil
		}
		// Persistence unreachable is batch-fatal; re-running the job is the
		// recovery path.
		return false, fmt.Errorf("save result for file %s: %w", file.ID, err)
	}
	return analysis != nil, nil
}
