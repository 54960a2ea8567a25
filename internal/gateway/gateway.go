// Package gateway provides the conversation gateway: conversation records
// plus an append-only, read-after-write message log the orchestrator
// persists transcripts into.
package gateway

import (
	"context"
	"errors"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Gateway is the conversation gateway consumed by the orchestrator and the
// CRUD handlers. Implementations serialize their own writes; messages are
// immutable once appended.
type Gateway interface {
	CreateConversation(ctx context.Context, tenantID, userID string, req *model.CreateConversationRequest) (*model.Conversation, error)
	GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, tenantID string, limit, offset int) (*model.ListConversationsResponse, error)
	UpdateConversation(ctx context.Context, tenantID, id string, req *model.UpdateConversationRequest) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, tenantID, id string) error

	// AddMessage appends one immutable message and returns its log sequence.
	AddMessage(ctx context.Context, msg *model.Message) (uint64, error)

	// History returns the trailing window of a conversation's messages in
	// append order, at most limit entries.
	History(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error)
}
