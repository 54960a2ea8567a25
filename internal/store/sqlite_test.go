package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestArtifact(tenantID string) *model.Artifact {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Artifact{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Kind:      model.ArtifactKindCode,
		Title:     "button component",
		Content:   "export const Button = () => null",
		Language:  "tsx",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestArtifact("tenant-1")
	require.NoError(t, s.Create(ctx, a))

	got, err := s.Get(ctx, "tenant-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Title, got.Title)
	assert.Equal(t, a.Content, got.Content)
	assert.Equal(t, model.ArtifactKindCode, got.Kind)
}

func TestGetArtifactWrongTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestArtifact("tenant-1")
	require.NoError(t, s.Create(ctx, a))

	_, err := s.Get(ctx, "tenant-2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListArtifactsByConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a1 := newTestArtifact("tenant-1")
	a1.ConversationID = "conv-a"
	a2 := newTestArtifact("tenant-1")
	a2.ConversationID = "conv-b"
	require.NoError(t, s.Create(ctx, a1))
	require.NoError(t, s.Create(ctx, a2))

	all, err := s.List(ctx, "tenant-1", "", 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := s.List(ctx, "tenant-1", "conv-a", 50)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, a1.ID, scoped[0].ID)
}

func TestUpdateArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestArtifact("tenant-1")
	require.NoError(t, s.Create(ctx, a))

	a.Title = "renamed"
	a.Content = "updated content"
	require.NoError(t, s.Update(ctx, a))

	got, err := s.Get(ctx, "tenant-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, "updated content", got.Content)
}

func TestUpdateMissingArtifact(t *testing.T) {
	s := newTestStore(t)

	a := newTestArtifact("tenant-1")
	err := s.Update(context.Background(), a)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestArtifact("tenant-1")
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Delete(ctx, "tenant-1", a.ID))

	_, err := s.Get(ctx, "tenant-1", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "tenant-1", a.ID), ErrNotFound)
}
