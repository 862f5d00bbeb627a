package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// likePattern builds a %substring% pattern with LIKE metacharacters escaped
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// ========== Client Methods ==========

func scanClient(row rowScanner) (*models.Client, error) {
	c := &models.Client{}
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.TenantID, &c.Name, &c.Phone); err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// CreateClient inserts the (name, phone) client of a tenant. When it already
// exists nothing is written, client is filled from the stored row and
// created is false.
func (s *PostgresStore) CreateClient(ctx context.Context, client *models.Client) (bool, error) {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	result, err := s.getDB().ExecContext(ctx,
		`INSERT INTO clients (id, created_at, tenant_id, name, phone) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, name, phone) DO NOTHING`,
		client.ID, client.CreatedAt, client.TenantID, client.Name, client.Phone)
	if err != nil {
		return false, mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	existing, err := s.FindClient(ctx, client.TenantID, client.Name, client.Phone)
	if err != nil {
		return false, err
	}
	*client = *existing
	return false, nil
}

// FindClient finds a client by exact name and phone
func (s *PostgresStore) FindClient(ctx context.Context, tenantID uuid.UUID, name, phone string) (*models.Client, error) {
	return scanClient(s.getDB().QueryRowContext(ctx,
		`SELECT id, created_at, tenant_id, name, phone FROM clients
		 WHERE tenant_id = $1 AND name = $2 AND phone = $3`, tenantID, name, phone))
}

// SearchClients matches query against name (case-insensitive) or phone
func (s *PostgresStore) SearchClients(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*models.Client, error) {
	q := `SELECT id, created_at, tenant_id, name, phone FROM clients
		WHERE tenant_id = $1 AND (LOWER(name) LIKE LOWER($2) OR phone LIKE $2)
		ORDER BY created_at DESC, id`
	q, args := withPage(q, []interface{}{tenantID, likePattern(query)}, limit, 0)

	rows, err := s.getDB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ListClients lists the clients of a tenant with their ticket counts
func (s *PostgresStore) ListClients(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	rows, err := s.getDB().QueryContext(ctx,
		`SELECT c.id, c.created_at, c.tenant_id, c.name, c.phone,
		        (SELECT COUNT(*) FROM tickets t
		         WHERE t.tenant_id = c.tenant_id AND t.client_name = c.name AND t.client_phone = c.phone)
		 FROM clients c WHERE c.tenant_id = $1 ORDER BY c.created_at DESC, c.id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c := &models.Client{}
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.TenantID, &c.Name, &c.Phone, &c.TicketCount); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ========== Ticket Methods ==========

const ticketColumns = `id, created_at, updated_at, tenant_id, client_name, client_phone, device_model,
	imei, visual_aspect, reported_issue, service_operations, access_code, colors, defect_cause,
	observations, estimated_cost, urgent, location_id, status, status_note, created_by`

func scanTicket(row rowScanner) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.TenantID, &t.ClientName, &t.ClientPhone, &t.DeviceModel,
		&t.IMEI, &t.VisualAspect, &t.ReportedIssue, &t.ServiceOperations, &t.AccessCode, &t.Colors,
		&t.DefectCause, &t.Observations, &t.EstimatedCost, &t.Urgent, &t.LocationID, &t.Status,
		&t.StatusNote, &t.CreatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return t, nil
}

// CreateTicket creates a ticket
func (s *PostgresStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		return ErrInvalidData
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now

	_, err := s.getDB().ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		ticket.ID, ticket.CreatedAt, ticket.UpdatedAt, ticket.TenantID, ticket.ClientName, ticket.ClientPhone,
		ticket.DeviceModel, ticket.IMEI, ticket.VisualAspect, ticket.ReportedIssue, ticket.ServiceOperations,
		ticket.AccessCode, ticket.Colors, ticket.DefectCause, ticket.Observations, ticket.EstimatedCost,
		ticket.Urgent, ticket.LocationID, ticket.Status, ticket.StatusNote, ticket.CreatedBy)
	return mapError(err)
}

// GetTicket gets a ticket of a tenant
func (s *PostgresStore) GetTicket(ctx context.Context, tenantID uuid.UUID, id string) (*models.Ticket, error) {
	return scanTicket(s.getDB().QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// FindTicket gets a ticket by id regardless of tenant
func (s *PostgresStore) FindTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return scanTicket(s.getDB().QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

// UpdateTicket updates a ticket
func (s *PostgresStore) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now().UTC()
	return expectRows(s.getDB().ExecContext(ctx,
		`UPDATE tickets SET
			updated_at = $3, client_name = $4, client_phone = $5, device_model = $6, imei = $7,
			visual_aspect = $8, reported_issue = $9, service_operations = $10, access_code = $11,
			colors = $12, defect_cause = $13, observations = $14, estimated_cost = $15, urgent = $16,
			location_id = $17, status = $18, status_note = $19
		 WHERE id = $1 AND tenant_id = $2`,
		ticket.ID, ticket.TenantID, ticket.UpdatedAt, ticket.ClientName, ticket.ClientPhone,
		ticket.DeviceModel, ticket.IMEI, ticket.VisualAspect, ticket.ReportedIssue,
		ticket.ServiceOperations, ticket.AccessCode, ticket.Colors, ticket.DefectCause,
		ticket.Observations, ticket.EstimatedCost, ticket.Urgent, ticket.LocationID, ticket.Status,
		ticket.StatusNote))
}

// DeleteTicket deletes a ticket
func (s *PostgresStore) DeleteTicket(ctx context.Context, tenantID uuid.UUID, id string) error {
	return expectRows(s.getDB().ExecContext(ctx,
		`DELETE FROM tickets WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// ListTickets lists the tickets of a tenant, newest first
func (s *PostgresStore) ListTickets(ctx context.Context, tenantID uuid.UUID, filter models.TicketFilter) ([]*models.Ticket, int64, error) {
	where := " WHERE tenant_id = $1"
	args := []interface{}{tenantID}

	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		where += fmt.Sprintf(" AND location_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, likePattern(strings.ToLower(filter.Search)), likePattern(filter.Search))
		n := len(args)
		where += fmt.Sprintf(` AND (LOWER(id) LIKE $%d OR LOWER(client_name) LIKE $%d
			OR LOWER(device_model) LIKE $%d OR client_phone LIKE $%d)`, n-1, n-1, n-1, n)
	}

	var count int64
	if err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets"+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query, args := withPage("SELECT "+ticketColumns+" FROM tickets"+where+" ORDER BY created_at DESC, id DESC",
		args, filter.Limit, filter.Offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, t)
	}
	return tickets, count, rows.Err()
}

// CountTickets counts tickets across tenants
func (s *PostgresStore) CountTickets(ctx context.Context, filter TicketCountFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM tickets WHERE 1=1"
	args := []interface{}{}

	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		query += fmt.Sprintf(" AND location_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	var n int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// RelabelTickets moves every ticket of a tenant from oldLabel to newLabel
func (s *PostgresStore) RelabelTickets(ctx context.Context, tenantID uuid.UUID, oldLabel, newLabel string) (int64, error) {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE tickets SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND status = $2`,
		tenantID, oldLabel, newLabel, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
