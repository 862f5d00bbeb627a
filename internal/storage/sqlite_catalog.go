package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/models"
)

// ========== Location Methods ==========

const locationColumns = `id, created_at, tenant_id, name, address, phone`

func sqliteLocation(r *sqliteRow) (*models.Location, error) {
	l := &models.Location{
		ID:        r.id(),
		CreatedAt: r.time(),
		TenantID:  r.id(),
		Name:      r.text(),
		Address:   r.text(),
		Phone:     r.text(),
	}
	return l, r.err
}

// CreateLocation creates a location
func (s *SQLiteStore) CreateLocation(ctx context.Context, location *models.Location) error {
	if location.ID == uuid.Nil {
		location.ID = uuid.New()
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO locations (`+locationColumns+`) VALUES (?1, ?2, ?3, ?4, ?5, ?6)`,
		idArg(location.ID), timeArg(location.CreatedAt), idArg(location.TenantID),
		location.Name, location.Address, location.Phone)
	return err
}

// GetLocation gets a location of a tenant
func (s *SQLiteStore) GetLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.Location, error) {
	return sqliteOne(ctx, s, `SELECT `+locationColumns+` FROM locations WHERE id = ?1 AND tenant_id = ?2`,
		[]any{idArg(id), idArg(tenantID)}, sqliteLocation)
}

// UpdateLocation updates a location
func (s *SQLiteStore) UpdateLocation(ctx context.Context, location *models.Location) error {
	return s.execOne(ctx, `UPDATE locations SET name = ?3, address = ?4, phone = ?5 WHERE id = ?1 AND tenant_id = ?2`,
		idArg(location.ID), idArg(location.TenantID), location.Name, location.Address, location.Phone)
}

// DeleteLocation deletes a location
func (s *SQLiteStore) DeleteLocation(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM locations WHERE id = ?1 AND tenant_id = ?2`, idArg(id), idArg(tenantID))
}

// ListLocations lists the locations of a tenant
func (s *SQLiteStore) ListLocations(ctx context.Context, tenantID uuid.UUID) ([]*models.Location, error) {
	return sqliteCollect(ctx, s, `SELECT `+locationColumns+` FROM locations WHERE tenant_id = ?1 ORDER BY created_at, id`,
		[]any{idArg(tenantID)}, sqliteLocation)
}

// CountLocations counts the locations of a tenant
func (s *SQLiteStore) CountLocations(ctx context.Context, tenantID uuid.UUID) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM locations WHERE tenant_id = ?1`, idArg(tenantID))
	return int(n), err
}

// ========== Custom Status Methods ==========

func sqliteStatus(r *sqliteRow) (*models.CustomStatus, error) {
	st := &models.CustomStatus{
		ID:           r.id(),
		CreatedAt:    r.time(),
		UpdatedAt:    r.time(),
		TenantID:     r.id(),
		Category:     models.StatusCategory(r.text()),
		Label:        r.text(),
		Color:        r.text(),
		Icon:         r.text(),
		Description:  r.text(),
		Order:        r.integer(),
		IsFinal:      r.flag(),
		RequiresNote: r.flag(),
	}
	return st, r.err
}

// CreateStatus creates a custom status
func (s *SQLiteStore) CreateStatus(ctx context.Context, status *models.CustomStatus) error {
	if status.ID == uuid.Nil {
		status.ID = uuid.New()
	}
	now := time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO custom_statuses (`+statusColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12)`,
		idArg(status.ID), timeArg(status.CreatedAt), timeArg(status.UpdatedAt), idArg(status.TenantID),
		string(status.Category), status.Label, status.Color, status.Icon, status.Description,
		int64(status.Order), boolArg(status.IsFinal), boolArg(status.RequiresNote))
	return err
}

// GetStatus gets a custom status of a tenant
func (s *SQLiteStore) GetStatus(ctx context.Context, tenantID, id uuid.UUID) (*models.CustomStatus, error) {
	return sqliteOne(ctx, s, `SELECT `+statusColumns+` FROM custom_statuses WHERE id = ?1 AND tenant_id = ?2`,
		[]any{idArg(id), idArg(tenantID)}, sqliteStatus)
}

// UpdateStatus updates a custom status
func (s *SQLiteStore) UpdateStatus(ctx context.Context, status *models.CustomStatus) error {
	status.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, `UPDATE custom_statuses SET
			updated_at = ?3, category = ?4, label = ?5, color = ?6, icon = ?7,
			description = ?8, sort_order = ?9, is_final = ?10, requires_note = ?11
		WHERE id = ?1 AND tenant_id = ?2`,
		idArg(status.ID), idArg(status.TenantID), timeArg(status.UpdatedAt), string(status.Category),
		status.Label, status.Color, status.Icon, status.Description, int64(status.Order),
		boolArg(status.IsFinal), boolArg(status.RequiresNote))
}

// DeleteStatus deletes a custom status
func (s *SQLiteStore) DeleteStatus(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.execOne(ctx, `DELETE FROM custom_statuses WHERE id = ?1 AND tenant_id = ?2`, idArg(id), idArg(tenantID))
}

// ListStatuses lists the statuses of a tenant in display order
func (s *SQLiteStore) ListStatuses(ctx context.Context, tenantID uuid.UUID) ([]*models.CustomStatus, error) {
	statuses, err := sqliteCollect(ctx, s, `SELECT `+statusColumns+` FROM custom_statuses WHERE tenant_id = ?1
		ORDER BY sort_order, created_at, id`, []any{idArg(tenantID)}, sqliteStatus)
	if err != nil {
		return nil, err
	}
	models.SortStatuses(statuses)
	return statuses, nil
}

// ========== Client Methods ==========

const clientColumns = `id, created_at, tenant_id, name, phone`

func sqliteClient(r *sqliteRow) (*models.Client, error) {
	c := &models.Client{
		ID:        r.id(),
		CreatedAt: r.time(),
		TenantID:  r.id(),
		Name:      r.text(),
		Phone:     r.text(),
	}
	return c, r.err
}

// CreateClient inserts the (name, phone) client of a tenant. When it already
// exists nothing is written, client is filled from the stored row and
// created is false.
func (s *SQLiteStore) CreateClient(ctx context.Context, client *models.Client) (bool, error) {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	n, err := s.exec(ctx, `INSERT INTO clients (`+clientColumns+`) VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (tenant_id, name, phone) DO NOTHING`,
		idArg(client.ID), timeArg(client.CreatedAt), idArg(client.TenantID), client.Name, client.Phone)
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
func (s *SQLiteStore) FindClient(ctx context.Context, tenantID uuid.UUID, name, phone string) (*models.Client, error) {
	return sqliteOne(ctx, s, `SELECT `+clientColumns+` FROM clients WHERE tenant_id = ?1 AND name = ?2 AND phone = ?3`,
		[]any{idArg(tenantID), name, phone}, sqliteClient)
}

// SearchClients matches query against name (case-insensitive) or phone
func (s *SQLiteStore) SearchClients(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]*models.Client, error) {
	q, args := sqlitePage(`SELECT `+clientColumns+` FROM clients
		WHERE tenant_id = ?1 AND (fold(name) LIKE ?2 ESCAPE '\' OR phone LIKE ?3 ESCAPE '\')
		ORDER BY created_at DESC, id`,
		[]any{idArg(tenantID), likePattern(strings.ToLower(query)), likePattern(query)}, limit, 0)
	return sqliteCollect(ctx, s, q, args, sqliteClient)
}

// ListClients lists the clients of a tenant with their ticket counts
func (s *SQLiteStore) ListClients(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	return sqliteCollect(ctx, s, `SELECT c.id, c.created_at, c.tenant_id, c.name, c.phone,
		       (SELECT COUNT(*) FROM tickets t
		        WHERE t.tenant_id = c.tenant_id AND t.client_name = c.name AND t.client_phone = c.phone)
		FROM clients c WHERE c.tenant_id = ?1 ORDER BY c.created_at DESC, c.id`,
		[]any{idArg(tenantID)}, func(r *sqliteRow) (*models.Client, error) {
			c, err := sqliteClient(r)
			if err != nil {
				return nil, err
			}
			c.TicketCount = r.integer()
			return c, nil
		})
}

// ========== Ticket Methods ==========

func sqliteTicket(r *sqliteRow) (*models.Ticket, error) {
	t := &models.Ticket{
		ID:                r.text(),
		CreatedAt:         r.time(),
		UpdatedAt:         r.time(),
		TenantID:          r.id(),
		ClientName:        r.text(),
		ClientPhone:       r.text(),
		DeviceModel:       r.text(),
		IMEI:              r.text(),
		VisualAspect:      r.text(),
		ReportedIssue:     r.text(),
		ServiceOperations: r.text(),
		AccessCode:        r.text(),
		Colors:            r.text(),
		DefectCause:       r.text(),
		Observations:      r.text(),
		EstimatedCost:     r.decimal(),
		Urgent:            r.flag(),
		LocationID:        r.id(),
		Status:            r.text(),
		StatusNote:        r.text(),
		CreatedBy:         r.optID(),
	}
	return t, r.err
}

// CreateTicket creates a ticket
func (s *SQLiteStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		return ErrInvalidData
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now

	_, err := s.exec(ctx, `INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14, ?15, ?16, ?17, ?18, ?19, ?20, ?21)`,
		ticket.ID, timeArg(ticket.CreatedAt), timeArg(ticket.UpdatedAt), idArg(ticket.TenantID),
		ticket.ClientName, ticket.ClientPhone, ticket.DeviceModel, ticket.IMEI, ticket.VisualAspect,
		ticket.ReportedIssue, ticket.ServiceOperations, ticket.AccessCode, ticket.Colors,
		ticket.DefectCause, ticket.Observations, decimalArg(ticket.EstimatedCost), boolArg(ticket.Urgent),
		idArg(ticket.LocationID), ticket.Status, ticket.StatusNote, optIDArg(ticket.CreatedBy))
	return err
}

// GetTicket gets a ticket of a tenant
func (s *SQLiteStore) GetTicket(ctx context.Context, tenantID uuid.UUID, id string) (*models.Ticket, error) {
	return sqliteOne(ctx, s, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?1 AND tenant_id = ?2`,
		[]any{id, idArg(tenantID)}, sqliteTicket)
}

// FindTicket gets a ticket by id regardless of tenant
func (s *SQLiteStore) FindTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return sqliteOne(ctx, s, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?1`, []any{id}, sqliteTicket)
}

// UpdateTicket updates a ticket
func (s *SQLiteStore) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, `UPDATE tickets SET
			updated_at = ?3, client_name = ?4, client_phone = ?5, device_model = ?6, imei = ?7,
			visual_aspect = ?8, reported_issue = ?9, service_operations = ?10, access_code = ?11,
			colors = ?12, defect_cause = ?13, observations = ?14, estimated_cost = ?15, urgent = ?16,
			location_id = ?17, status = ?18, status_note = ?19
		WHERE id = ?1 AND tenant_id = ?2`,
		ticket.ID, idArg(ticket.TenantID), timeArg(ticket.UpdatedAt), ticket.ClientName, ticket.ClientPhone,
		ticket.DeviceModel, ticket.IMEI, ticket.VisualAspect, ticket.ReportedIssue,
		ticket.ServiceOperations, ticket.AccessCode, ticket.Colors, ticket.DefectCause,
		ticket.Observations, decimalArg(ticket.EstimatedCost), boolArg(ticket.Urgent),
		idArg(ticket.LocationID), ticket.Status, ticket.StatusNote)
}

// DeleteTicket deletes a ticket
func (s *SQLiteStore) DeleteTicket(ctx context.Context, tenantID uuid.UUID, id string) error {
	return s.execOne(ctx, `DELETE FROM tickets WHERE id = ?1 AND tenant_id = ?2`, id, idArg(tenantID))
}

// ListTickets lists the tickets of a tenant, newest first
func (s *SQLiteStore) ListTickets(ctx context.Context, tenantID uuid.UUID, filter models.TicketFilter) ([]*models.Ticket, int64, error) {
	where := " WHERE tenant_id = ?1"
	args := []any{idArg(tenantID)}

	if filter.LocationID != nil {
		args = append(args, idArg(*filter.LocationID))
		where += fmt.Sprintf(" AND location_id = ?%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = ?%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, likePattern(strings.ToLower(filter.Search)), likePattern(filter.Search))
		n := len(args)
		where += fmt.Sprintf(` AND (fold(id) LIKE ?%d ESCAPE '\' OR fold(client_name) LIKE ?%d ESCAPE '\'
			OR fold(device_model) LIKE ?%d ESCAPE '\' OR client_phone LIKE ?%d ESCAPE '\')`, n-1, n-1, n-1, n)
	}

	var (
		tickets []*models.Ticket
		total   int64
	)
	err := s.withSavepoint(ctx, func(v *SQLiteStore) error {
		var err error
		if total, err = v.count(ctx, "SELECT COUNT(*) FROM tickets"+where, args...); err != nil {
			return err
		}
		query, pageArgs := sqlitePage("SELECT "+ticketColumns+" FROM tickets"+where+" ORDER BY created_at DESC, id DESC",
			args, filter.Limit, filter.Offset)
		tickets, err = sqliteCollect(ctx, v, query, pageArgs, sqliteTicket)
		return err
	})
	return tickets, total, err
}

// CountTickets counts tickets across tenants
func (s *SQLiteStore) CountTickets(ctx context.Context, filter TicketCountFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM tickets WHERE 1=1"
	args := []any{}

	if filter.TenantID != nil {
		args = append(args, idArg(*filter.TenantID))
		query += fmt.Sprintf(" AND tenant_id = ?%d", len(args))
	}
	if filter.LocationID != nil {
		args = append(args, idArg(*filter.LocationID))
		query += fmt.Sprintf(" AND location_id = ?%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = ?%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, timeArg(*filter.Since))
		query += fmt.Sprintf(" AND created_at >= ?%d", len(args))
	}
	return s.count(ctx, query, args...)
}

// RelabelTickets moves every ticket of a tenant from oldLabel to newLabel
func (s *SQLiteStore) RelabelTickets(ctx context.Context, tenantID uuid.UUID, oldLabel, newLabel string) (int64, error) {
	n, err := s.exec(ctx, `UPDATE tickets SET status = ?3, updated_at = ?4 WHERE tenant_id = ?1 AND status = ?2`,
		idArg(tenantID), oldLabel, newLabel, timeArg(time.Now().UTC()))
	return int64(n), err
}
