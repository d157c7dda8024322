// Package repository wraps all SQL used throughout the API and worker.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ttony15/cpmai/internal/model"
)

// ErrNotFound is returned when a referenced project or file is absent.
var ErrNotFound = errors.New("not found")

// ProjectRepository persists Project records.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository constructs a repository.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

// Create inserts a new project in status "created".
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	p.Status = model.ProjectCreated
	p.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projects (project_id, owner_id, name, description, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.ProjectID, p.OwnerID, p.Name, p.Description, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get returns a project scoped to its owner.
func (r *ProjectRepository) Get(ctx context.Context, ownerID, projectID string) (*model.Project, error) {
	var (
		p       model.Project
		desc    sql.NullString
		updated sql.NullTime
	)
	row := r.pool.QueryRow(ctx, `
		SELECT project_id, owner_id, name, description, status, created_at, updated_at
		FROM projects WHERE project_id=$1 AND owner_id=$2
	`, projectID, ownerID)
	if err := row.Scan(&p.ProjectID, &p.OwnerID, &p.Name, &desc, &p.Status, &p.CreatedAt, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select project: %w", err)
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if updated.Valid {
		t := updated.Time
		p.UpdatedAt = &t
	}
	return &p, nil
}

// List returns a page of the owner's projects, newest first, plus the total
// count.
func (r *ProjectRepository) List(ctx context.Context, ownerID string, page, pageSize int) ([]model.Project, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT project_id, owner_id, name, description, status, created_at, updated_at
		FROM projects WHERE owner_id=$1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`, ownerID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("select projects: %w", err)
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		var (
			p       model.Project
			desc    sql.NullString
			updated sql.NullTime
		)
		if err := rows.Scan(&p.ProjectID, &p.OwnerID, &p.Name, &desc, &p.Status, &p.CreatedAt, &updated); err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		if desc.Valid {
			p.Description = desc.String
		}
		if updated.Valid {
			t := updated.Time
			p.UpdatedAt = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate projects: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE owner_id=$1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}
	return out, total, nil
}

// Update applies name/description changes.
func (r *ProjectRepository) Update(ctx context.Context, ownerID, projectID string, name, description *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET name = COALESCE($1, name),
			description = COALESCE($2, description),
			updated_at = $3
		WHERE project_id=$4 AND owner_id=$5
	`, name, description, time.Now().UTC(), projectID, ownerID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves the project through its lifecycle.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, projectID string, status model.ProjectStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET status=$1, updated_at=$2 WHERE project_id=$3
	`, status, time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
