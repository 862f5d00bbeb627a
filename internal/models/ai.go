package models

import (
	"time"

	"github.com/google/uuid"
)

// AIConfig is the per-tenant assistant configuration
type AIConfig struct {
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	SystemPrompt string    `json:"system_prompt" db:"system_prompt"`
	Temperature  float64   `json:"temperature" db:"temperature"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Chat message roles
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a stored assistant chat
type Conversation struct {
	ID        uuid.UUID     `json:"conversation_id" db:"id"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
	TenantID  uuid.UUID     `json:"-" db:"tenant_id"`
	UserID    uuid.UUID     `json:"user_id" db:"user_id"`
	Title     string        `json:"title" db:"title"`
	Messages  []ChatMessage `json:"messages,omitempty" db:"messages"`
}
