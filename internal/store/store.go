package store

import (
	"context"

	"github.com/Seasonsling/clarion/internal/models"
)

// Store defines the persistence gateway for project plans. Saves are atomic
// whole-document replaces; there is no field-level update at this boundary.
type Store interface {
	// CreateProject persists a new plan. Fails on a duplicate id.
	CreateProject(ctx context.Context, p *models.Project) error
	// GetProject loads a plan by id.
	GetProject(ctx context.Context, id string) (*models.Project, error)
	// ListProjects returns the plans the user owns or is a member of.
	// An empty userID lists everything (local single-user mode).
	ListProjects(ctx context.Context, userID string) ([]*models.Project, error)
	// UpdateProject replaces the whole document by id.
	UpdateProject(ctx context.Context, p *models.Project) error
	// DeleteProject removes a plan and its membership rows.
	DeleteProject(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
