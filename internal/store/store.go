// Package store provides artifact persistence.
package store

import (
	"context"
	"errors"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore persists artifacts built through conversation. The store is
// the write target of the side-effecting tools and of the artifact CRUD API.
type ArtifactStore interface {
	Create(ctx context.Context, artifact *model.Artifact) error
	Get(ctx context.Context, tenantID, id string) (*model.Artifact, error)
	List(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Artifact, error)
	Update(ctx context.Context, artifact *model.Artifact) error
	Delete(ctx context.Context, tenantID, id string) error
	Close() error
}
