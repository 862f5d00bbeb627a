package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== AI Config Methods ==========

// GetAIConfig gets the assistant configuration of a tenant
func (s *PostgresStore) GetAIConfig(ctx context.Context, tenantID uuid.UUID) (*models.AIConfig, error) {
	c := &models.AIConfig{}
	err := s.getDB().QueryRowContext(ctx,
		`SELECT tenant_id, enabled, system_prompt, temperature, updated_at
		 FROM ai_configs WHERE tenant_id = $1`, tenantID).Scan(
		&c.TenantID, &c.Enabled, &c.SystemPrompt, &c.Temperature, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// SaveAIConfig creates or replaces the assistant configuration of a tenant
func (s *PostgresStore) SaveAIConfig(ctx context.Context, cfg *models.AIConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.getDB().ExecContext(ctx, `
		INSERT INTO ai_configs (tenant_id, enabled, system_prompt, temperature, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			system_prompt = EXCLUDED.system_prompt,
			temperature = EXCLUDED.temperature,
			updated_at = EXCLUDED.updated_at`,
		cfg.TenantID, cfg.Enabled, cfg.SystemPrompt, cfg.Temperature, cfg.UpdatedAt)
	return mapError(err)
}

// ========== Conversation Methods ==========

func marshalMessages(msgs []models.ChatMessage) ([]byte, error) {
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return json.Marshal(msgs)
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	var raw []byte
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.TenantID, &c.UserID, &c.Title, &raw); err != nil {
		return nil, mapError(err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Messages); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateConversation creates a conversation
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	raw, err := marshalMessages(conv.Messages)
	if err != nil {
		return err
	}
	_, err = s.getDB().ExecContext(ctx,
		`INSERT INTO conversations (id, created_at, updated_at, tenant_id, user_id, title, messages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conv.ID, conv.CreatedAt, conv.UpdatedAt, conv.TenantID, conv.UserID, conv.Title, raw)
	return mapError(err)
}

// GetConversation gets a conversation of a tenant
func (s *PostgresStore) GetConversation(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error) {
	return scanConversation(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, tenant_id, user_id, title, messages
		 FROM conversations WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// UpdateConversation replaces the title and messages of a conversation
func (s *PostgresStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	raw, err := marshalMessages(conv.Messages)
	if err != nil {
		return err
	}
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE conversations SET updated_at = $3, title = $4, messages = $5
		 WHERE id = $1 AND tenant_id = $2`,
		conv.ID, conv.TenantID, conv.UpdatedAt, conv.Title, raw))
}

// DeleteConversation deletes a conversation
func (s *PostgresStore) DeleteConversation(ctx context.Context, tenantID, id uuid.UUID) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// ListConversations lists a user's conversations without messages, most
// recently updated first
func (s *PostgresStore) ListConversations(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.Conversation, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT id, created_at, updated_at, tenant_id, user_id, title
		 FROM conversations WHERE tenant_id = $1 AND user_id = $2
		 ORDER BY updated_at DESC`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.TenantID, &c.UserID, &c.Title); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountConversations counts conversations across tenants
func (s *PostgresStore) CountConversations(ctx context.Context) (int64, error) {
	var n int64
	err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}
