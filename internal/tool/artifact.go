package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/internal/store"
)

// CreateArtifactInput is the input for create_artifact.
type CreateArtifactInput struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Validate implements Input.
func (in *CreateArtifactInput) Validate() error {
	if !model.ArtifactKind(in.Kind).Valid() {
		return fmt.Errorf("unknown artifact kind %q", in.Kind)
	}
	if in.Title == "" {
		return errors.New("title is required")
	}
	if in.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// UpdateArtifactInput is the input for update_artifact.
type UpdateArtifactInput struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// Validate implements Input.
func (in *UpdateArtifactInput) Validate() error {
	if in.ID == "" {
		return errors.New("id is required")
	}
	if in.Title == "" && in.Content == "" {
		return errors.New("nothing to update")
	}
	return nil
}

// ArtifactIDInput is the input for tools addressing one artifact by id.
type ArtifactIDInput struct {
	ID string `json:"id"`
}

// Validate implements Input.
func (in *ArtifactIDInput) Validate() error {
	if in.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// ListArtifactsInput is the input for list_artifacts.
type ListArtifactsInput struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// Validate implements Input.
func (in *ListArtifactsInput) Validate() error {
	if in.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

var artifactKindSchema = map[string]any{
	"type": "string",
	"enum": []string{"code", "mindmap", "learning_path"},
}

// RegisterArtifactTools wires the artifact tool set against the given store.
func RegisterArtifactTools(r *Registry, artifacts store.ArtifactStore) {
	r.MustRegister(&Tool{
		Name:        "create_artifact",
		Description: "Create a new artifact (code, mindmap or learning path content) from the conversation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind":     artifactKindSchema,
				"title":    map[string]any{"type": "string"},
				"content":  map[string]any{"type": "string"},
				"language": map[string]any{"type": "string"},
			},
			"required": []string{"kind", "title", "content"},
		},
		NewInput: func() Input { return &CreateArtifactInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			in := input.(*CreateArtifactInput)
			now := time.Now()
			artifact := &model.Artifact{
				ID:             uuid.Must(uuid.NewV7()).String(),
				TenantID:       scope.TenantID,
				ConversationID: scope.ConversationID,
				Kind:           model.ArtifactKind(in.Kind),
				Title:          in.Title,
				Content:        in.Content,
				Language:       in.Language,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := artifacts.Create(ctx, artifact); err != nil {
				return nil, err
			}
			return artifact, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "update_artifact",
		Description: "Update the title or content of an existing artifact.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":      map[string]any{"type": "string"},
				"title":   map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		NewInput: func() Input { return &UpdateArtifactInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			in := input.(*UpdateArtifactInput)
			artifact, err := artifacts.Get(ctx, scope.TenantID, in.ID)
			if err != nil {
				return nil, err
			}
			if in.Title != "" {
				artifact.Title = in.Title
			}
			if in.Content != "" {
				artifact.Content = in.Content
			}
			if err := artifacts.Update(ctx, artifact); err != nil {
				return nil, err
			}
			return artifact, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "delete_artifact",
		Description: "Delete an artifact by id.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		NewInput: func() Input { return &ArtifactIDInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			in := input.(*ArtifactIDInput)
			if err := artifacts.Delete(ctx, scope.TenantID, in.ID); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": in.ID}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_artifact",
		Description: "Fetch one artifact by id.",
		ReadOnly:    true,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
		NewInput: func() Input { return &ArtifactIDInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			in := input.(*ArtifactIDInput)
			return artifacts.Get(ctx, scope.TenantID, in.ID)
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_artifacts",
		Description: "List artifacts, optionally scoped to one conversation.",
		ReadOnly:    true,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"conversation_id": map[string]any{"type": "string"},
				"limit":           map[string]any{"type": "integer"},
			},
		},
		NewInput: func() Input { return &ListArtifactsInput{} },
		Handler: func(ctx context.Context, scope Scope, input Input) (any, error) {
			in := input.(*ListArtifactsInput)
			conversationID := in.ConversationID
			if conversationID == "" {
				conversationID = scope.ConversationID
			}
			return artifacts.List(ctx, scope.TenantID, conversationID, in.Limit)
		},
	})
}
