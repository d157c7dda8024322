package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ttony15/cpmai/internal/model"
)

// FileRepository persists UploadedFile records. Analysis results and
// embedding vectors are stored as JSONB so the schema stays stable while the
// analysis shape evolves per document category.
type FileRepository struct {
	pool *pgxpool.Pool
}

// NewFileRepository constructs a repository.
func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

// Create inserts a freshly uploaded file before any processing pass.
func (r *FileRepository) Create(ctx context.Context, f *model.UploadedFile) error {
	f.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO uploaded_files (id, file_name, storage_key, owner_id, project_id, file_description, document_category, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, f.ID, f.FileName, f.StorageKey, f.OwnerID, f.ProjectID, f.FileDescription, f.DocumentCategory, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// Get returns one file scoped to its owner and project.
func (r *FileRepository) Get(ctx context.Context, ownerID, projectID, fileID string) (*model.UploadedFile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, file_name, storage_key, owner_id, project_id, file_description, document_category, analysis_result, embeddings, created_at
		FROM uploaded_files WHERE id=$1 AND owner_id=$2 AND project_id=$3
	`, fileID, ownerID, projectID)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select file: %w", err)
	}
	return f, nil
}

// ListByProject returns all of a project's files in insertion order. The
// orchestrator relies on that order being deterministic.
func (r *FileRepository) ListByProject(ctx context.Context, ownerID, projectID string) ([]model.UploadedFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, file_name, storage_key, owner_id, project_id, file_description, document_category, analysis_result, embeddings, created_at
		FROM uploaded_files WHERE owner_id=$1 AND project_id=$2
		ORDER BY created_at, id
	`, ownerID, projectID)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	defer rows.Close()
	var out []model.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}

// ListEmbedded returns up to limit files of the scope that carry an
// embedding vector. Scope is a hard equality filter; ranking happens in the
// chat pipeline.
func (r *FileRepository) ListEmbedded(ctx context.Context, ownerID, projectID string, limit int) ([]model.UploadedFile, error) {
	if limit <= 0 {
		limit = 150
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, file_name, storage_key, owner_id, project_id, file_description, document_category, analysis_result, embeddings, created_at
		FROM uploaded_files
		WHERE owner_id=$1 AND project_id=$2 AND embeddings IS NOT NULL
		ORDER BY created_at, id
		LIMIT $3
	`, ownerID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("select embedded files: %w", err)
	}
	defer rows.Close()
	var out []model.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return out, nil
}

// UpdateDescription sets the user-editable description and category.
func (r *FileRepository) UpdateDescription(ctx context.Context, ownerID, projectID, storageKey, description string, category model.DocumentCategory) (*model.UploadedFile, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE uploaded_files
		SET file_description=$1, document_category=$2
		WHERE owner_id=$3 AND project_id=$4 AND storage_key=$5
		RETURNING id, file_name, storage_key, owner_id, project_id, file_description, document_category, analysis_result, embeddings, created_at
	`, description, category, ownerID, projectID, storageKey)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update file description: %w", err)
	}
	return f, nil
}

// SaveProcessingResult persists whatever combination of analysis and
// embedding one processing pass achieved. A nil embedding leaves the column
// untouched so an embedding-only retry can fill it later.
func (r *FileRepository) SaveProcessingResult(ctx context.Context, fileID string, analysis *model.AnalysisResult, embeddings []float32) error {
	var analysisJSON, embeddingsJSON []byte
	var err error
	if analysis != nil {
		if analysisJSON, err = json.Marshal(analysis); err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
	}
	if embeddings != nil {
		if embeddingsJSON, err = json.Marshal(embeddings); err != nil {
			return fmt.Errorf("marshal embeddings: %w", err)
		}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploaded_files
		SET analysis_result = COALESCE($1, analysis_result),
			embeddings = COALESCE($2, embeddings)
		WHERE id=$3
	`, analysisJSON, embeddingsJSON, fileID)
	if err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.UploadedFile, error) {
	var (
		f              model.UploadedFile
		analysisJSON   []byte
		embeddingsJSON []byte
	)
	if err := row.Scan(&f.ID, &f.FileName, &f.StorageKey, &f.OwnerID, &f.ProjectID,
		&f.FileDescription, &f.DocumentCategory, &analysisJSON, &embeddingsJSON, &f.CreatedAt); err != nil {
		return nil, err
	}
	if len(analysisJSON) > 0 {
		var a model.AnalysisResult
		if err := json.Unmarshal(analysisJSON, &a); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		f.AnalysisResult = &a
	}
	if len(embeddingsJSON) > 0 {
		if err := json.Unmarshal(embeddingsJSON, &f.Embeddings); err != nil {
			return nil, fmt.Errorf("decode embeddings: %w", err)
		}
	}
	return &f, nil
}
