package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// MinClientQueryLength is the shortest query that searches the directory
const MinClientQueryLength = 2

// SearchClients matches query against client names and phones. Queries
// shorter than MinClientQueryLength return no clients.
func (s *Service) SearchClients(ctx context.Context, actor Actor, query string) ([]*models.Client, error) {
	if err := s.requirePermission(ctx, actor, PermClientsView); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinClientQueryLength {
		return []*models.Client{}, nil
	}

	clients, err := s.store.SearchClients(ctx, actor.TenantID, query, s.cfg.Subscription.SearchMaxItems)
	if err != nil {
		return nil, storeErr(err, "Clientul")
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	return clients, nil
}

// ListClients returns the directory with ticket counts
func (s *Service) ListClients(ctx context.Context, actor Actor) ([]*models.Client, error) {
	if err := s.requirePermission(ctx, actor, PermClientsView); err != nil {
		return nil, err
	}
	clients, err := s.store.ListClients(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Clientul")
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	return clients, nil
}
