package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

func TestMemoryConversationLifecycle(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()

	conv, err := g.CreateConversation(ctx, "tenant-1", "user-1", &model.CreateConversationRequest{
		Title:    "building a button",
		Metadata: map[string]string{"mode": "agent"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	got, err := g.GetConversation(ctx, "tenant-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "building a button", got.Title)

	_, err = g.GetConversation(ctx, "tenant-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := g.UpdateConversation(ctx, "tenant-1", conv.ID, &model.UpdateConversationRequest{Title: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	require.NoError(t, g.DeleteConversation(ctx, "tenant-1", conv.ID))
	_, err = g.GetConversation(ctx, "tenant-1", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAppendAndHistory(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()

	conv, err := g.CreateConversation(ctx, "tenant-1", "user-1", &model.CreateConversationRequest{Title: "t"})
	require.NoError(t, err)

	var lastSeq uint64
	for i, content := range []string{"one", "two", "three"} {
		seq, err := g.AddMessage(ctx, &model.Message{
			ID:             string(rune('a' + i)),
			ConversationID: conv.ID,
			TenantID:       "tenant-1",
			Role:           model.RoleUser,
			Content:        content,
			CreatedAt:      time.Now(),
		})
		require.NoError(t, err)
		assert.Greater(t, seq, lastSeq, "sequences must be monotonic")
		lastSeq = seq
	}

	history, err := g.History(ctx, "tenant-1", conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Content)
	assert.Equal(t, "three", history[2].Content)

	// Trailing window keeps the newest entries.
	window, err := g.History(ctx, "tenant-1", conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "two", window[0].Content)

	got, err := g.GetConversation(ctx, "tenant-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "three", got.LastMessage.Content)
}

func TestMemoryListPagination(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.CreateConversation(ctx, "tenant-1", "user-1", &model.CreateConversationRequest{Title: "t"})
		require.NoError(t, err)
	}

	resp, err := g.ListConversations(ctx, "tenant-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, resp.Conversations, 2)
	assert.Equal(t, 5, resp.Total)
	assert.True(t, resp.HasMore)
}

func TestMemoryListOrderIsStable(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		conv, err := g.CreateConversation(ctx, "tenant-1", "user-1", &model.CreateConversationRequest{Title: "t"})
		require.NoError(t, err)
		ids = append(ids, conv.ID)
	}

	// Touching a conversation moves it to the front.
	time.Sleep(time.Millisecond)
	_, err := g.UpdateConversation(ctx, "tenant-1", ids[2], &model.UpdateConversationRequest{Title: "touched"})
	require.NoError(t, err)

	first, err := g.ListConversations(ctx, "tenant-1", 100, 0)
	require.NoError(t, err)
	require.Len(t, first.Conversations, 6)
	assert.Equal(t, ids[2], first.Conversations[0].ID)

	// Repeat the listing and page through; the order must not shift and
	// pages must neither repeat nor skip entries.
	again, err := g.ListConversations(ctx, "tenant-1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Conversations, again.Conversations)

	var paged []string
	for offset := 0; offset < 6; offset += 2 {
		page, err := g.ListConversations(ctx, "tenant-1", 2, offset)
		require.NoError(t, err)
		for _, c := range page.Conversations {
			paged = append(paged, c.ID)
		}
	}
	require.Len(t, paged, 6)
	for i, c := range first.Conversations {
		assert.Equal(t, c.ID, paged[i])
	}
}
