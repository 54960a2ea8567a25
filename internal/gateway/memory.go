package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// Memory is an in-process Gateway. It backs tests and lets the server start
// without a broker; the JetStream gateway replaces the message log with a
// durable one.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	sequence      uint64
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
	}
}

// CreateConversation creates a new conversation.
func (m *Memory) CreateConversation(ctx context.Context, tenantID, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     req.Title,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.conversations[conv.ID] = conv
	m.mu.Unlock()

	return conv, nil
}

// GetConversation retrieves a conversation by id.
func (m *Memory) GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(tenantID, id)
}

func (m *Memory) lookupLocked(tenantID, id string) (*model.Conversation, error) {
	conv, ok := m.conversations[id]
	if !ok || conv.Deleted || conv.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListConversations retrieves conversations for a tenant.
func (m *Memory) ListConversations(ctx context.Context, tenantID string, limit, offset int) (*model.ListConversationsResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range m.conversations {
		if conv.TenantID == tenantID && !conv.Deleted {
			convs = append(convs, *conv)
		}
	}

	// Most recently active first, matching the sqlite store; id breaks ties
	// so pages stay stable across calls.
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID > convs[j].ID
	})

	total := len(convs)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListConversationsResponse{
		Conversations: convs[start:end],
		Total:         total,
		HasMore:       end < total,
	}, nil
}

// UpdateConversation updates title/metadata.
func (m *Memory) UpdateConversation(ctx context.Context, tenantID, id string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.lookupLocked(tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.Title != "" {
		conv.Title = req.Title
	}
	if req.Metadata != nil {
		conv.Metadata = req.Metadata
	}
	conv.UpdatedAt = time.Now()
	return conv, nil
}

// DeleteConversation soft deletes a conversation.
func (m *Memory) DeleteConversation(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.lookupLocked(tenantID, id)
	if err != nil {
		return err
	}
	conv.Deleted = true
	conv.UpdatedAt = time.Now()
	return nil
}

// AddMessage appends one message and returns its sequence.
func (m *Memory) AddMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequence++
	msg.Sequence = m.sequence
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)

	if conv, ok := m.conversations[msg.ConversationID]; ok {
		stored := *msg
		conv.LastMessage = &stored
		conv.MessageCount++
		conv.UpdatedAt = time.Now()
	}
	return m.sequence, nil
}

// History returns the trailing window of messages in append order.
func (m *Memory) History(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
