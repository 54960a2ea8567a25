package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateArtifactID validates an artifact ID.
func ValidateArtifactID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid artifact ID format")
	}
	return nil
}

// ValidateTitle validates a conversation or artifact title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}

// ValidateArtifactKind validates an artifact kind string.
func ValidateArtifactKind(kind string) error {
	if !model.ArtifactKind(kind).Valid() {
		return errors.New("unknown artifact kind")
	}
	return nil
}

// ValidateMode validates a chat mode string. Empty is fine; it defaults
// downstream.
func ValidateMode(mode string) error {
	if mode == "" {
		return nil
	}
	if !model.Mode(mode).Valid() {
		return errors.New("mode must be chat or agent")
	}
	return nil
}
