package model

import (
	"time"
)

// ArtifactKind is the category of content an artifact holds.
type ArtifactKind string

const (
	ArtifactKindCode         ArtifactKind = "code"
	ArtifactKindMindmap      ArtifactKind = "mindmap"
	ArtifactKindLearningPath ArtifactKind = "learning_path"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactKindCode, ArtifactKindMindmap, ArtifactKindLearningPath:
		return true
	}
	return false
}

// Artifact is a piece of content built through conversation: a code snippet,
// a mindmap, or learning-path material.
type Artifact struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Kind           ArtifactKind `json:"kind"`
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	Language       string       `json:"language,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CreateArtifactRequest is the request to create an artifact via the CRUD API.
type CreateArtifactRequest struct {
	ConversationID string       `json:"conversation_id,omitempty"`
	Kind           ArtifactKind `json:"kind"`
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	Language       string       `json:"language,omitempty"`
}

// UpdateArtifactRequest is the request to update an artifact via the CRUD API.
type UpdateArtifactRequest struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// ListArtifactsResponse is the response for listing artifacts.
type ListArtifactsResponse struct {
	Artifacts []Artifact `json:"artifacts"`
	Total     int        `json:"total"`
}
