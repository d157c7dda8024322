package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ttony15/cpmai/internal/model"
)

// Memory is an in-process implementation of the project and file
// repositories. It backs tests and the CLI dry-run mode where no Postgres is
// available, and mirrors the SQL implementations' semantics, including
// insertion-order listing.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]model.Project
	files    []model.UploadedFile
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{projects: make(map[string]model.Project)}
}

// CreateProject stores a project in status "created".
func (m *Memory) CreateProject(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Status = model.ProjectCreated
	p.CreatedAt = time.Now().UTC()
	m.projects[p.ProjectID] = *p
	return nil
}

// Get returns a project scoped to its owner.
func (m *Memory) Get(_ context.Context, ownerID, projectID string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}

// UpdateStatus moves the project through its lifecycle.
func (m *Memory) UpdateStatus(_ context.Context, projectID string, status model.ProjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	p.Status = status
	p.UpdatedAt = &now
	m.projects[projectID] = p
	return nil
}

// CreateFile appends a file record, preserving insertion order.
func (m *Memory) CreateFile(_ context.Context, f *model.UploadedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.CreatedAt = time.Now().UTC()
	m.files = append(m.files, *f)
	return nil
}

// ListByProject returns the scope's files in insertion order.
func (m *Memory) ListByProject(_ context.Context, ownerID, projectID string) ([]model.UploadedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.UploadedFile
	for _, f := range m.files {
		if f.OwnerID == ownerID && f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListEmbedded returns up to limit files of the scope carrying embeddings.
func (m *Memory) ListEmbedded(_ context.Context, ownerID, projectID string, limit int) ([]model.UploadedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 150
	}
	var out []model.UploadedFile
	for _, f := range m.files {
		if f.OwnerID == ownerID && f.ProjectID == projectID && f.Embeddings != nil {
			out = append(out, f)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SaveProcessingResult merges a processing pass into the stored record,
// matching the SQL COALESCE behavior: nil inputs leave existing values.
func (m *Memory) SaveProcessingResult(_ context.Context, fileID string, analysis *model.AnalysisResult, embeddings []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.files {
		if m.files[i].ID == fileID {
			if analysis != nil {
				m.files[i].AnalysisResult = analysis
			}
			if embeddings != nil {
				m.files[i].Embeddings = embeddings
			}
			return nil
		}
	}
	return ErrNotFound
}
