// Package model contains the domain types shared across the API, worker and
// chat pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProjectStatus describes the processing lifecycle of a project.
type ProjectStatus string

const (
	ProjectCreated    ProjectStatus = "created"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
)

// DocumentCategory classifies an uploaded construction document.
type DocumentCategory string

const (
	CategoryDrawing       DocumentCategory = "drawing"
	CategorySpecification DocumentCategory = "specification"
	CategoryQuote         DocumentCategory = "quote"
	CategoryContract      DocumentCategory = "contract"
	CategorySchedule      DocumentCategory = "schedule"
	CategoryOther         DocumentCategory = "other"
)

// ParseCategory maps free input onto a known category, defaulting to "other".
func ParseCategory(s string) DocumentCategory {
	switch DocumentCategory(s) {
	case CategoryDrawing, CategorySpecification, CategoryQuote, CategoryContract, CategorySchedule:
		return DocumentCategory(s)
	default:
		return CategoryOther
	}
}

// Project is one logical unit of work owning a set of uploaded files.
type Project struct {
	ProjectID   string        `json:"project_id"`
	OwnerID     string        `json:"owner_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
}

// UploadedFile is one ingested document. StorageKey points into object
// storage and is never reused for a different payload once processing has
// begun. Embeddings is non-nil iff at least one processing pass produced a
// successful embedding.
type UploadedFile struct {
	ID               string           `json:"id"`
	FileName         string           `json:"file_name"`
	StorageKey       string           `json:"storage_key"`
	OwnerID          string           `json:"owner_id"`
	ProjectID        string           `json:"project_id"`
	FileDescription  string           `json:"file_description"`
	DocumentCategory DocumentCategory `json:"document_category"`
	AnalysisResult   *AnalysisResult  `json:"analysis_result,omitempty"`
	Embeddings       []float32        `json:"embeddings,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Processed reports whether the file already carries a completed analysis
// pass and must be skipped by the orchestrator.
func (f *UploadedFile) Processed() bool {
	return f.AnalysisResult != nil
}

// embeddingPayload is what gets serialized for the embedding model. Internal
// identifiers and the storage key are excluded so embeddings stay stable
// under identifier churn, and the raw vector itself is never re-embedded.
type embeddingPayload struct {
	FileName         string           `json:"file_name"`
	FileDescription  string           `json:"file_description"`
	DocumentCategory DocumentCategory `json:"document_category"`
	AnalysisResult   *AnalysisResult  `json:"analysis_result,omitempty"`
}

// EmbeddingText serializes the searchable portion of the file record.
func (f *UploadedFile) EmbeddingText() (string, error) {
	data, err := json.Marshal(embeddingPayload{
		FileName:         f.FileName,
		FileDescription:  f.FileDescription,
		DocumentCategory: f.DocumentCategory,
		AnalysisResult:   f.AnalysisResult,
	})
	if err != nil {
		return "", fmt.Errorf("marshal embedding payload: %w", err)
	}
	return string(data), nil
}

// ContextEntry is the grounding-context view of a matched file: internal
// identifiers, storage keys and embedding vectors stripped.
type ContextEntry struct {
	FileName         string           `json:"file_name"`
	FileDescription  string           `json:"file_description,omitempty"`
	DocumentCategory DocumentCategory `json:"document_category"`
	AnalysisResult   *AnalysisResult  `json:"analysis_result,omitempty"`
}

// ContextView projects the file down to the fields safe to hand to a model.
func (f *UploadedFile) ContextView() ContextEntry {
	return ContextEntry{
		FileName:         f.FileName,
		FileDescription:  f.FileDescription,
		DocumentCategory: f.DocumentCategory,
		AnalysisResult:   f.AnalysisResult,
	}
}
