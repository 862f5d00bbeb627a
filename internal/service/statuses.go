package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

// CreateStatusRequest is the body of a status creation
type CreateStatusRequest struct {
	Category     string `json:"category" validate:"required"`
	Label        string `json:"label" validate:"required,max=50"`
	Color        string `json:"color" validate:"hexcolor"`
	Icon         string `json:"icon" validate:"max=16"`
	Description  string `json:"description" validate:"max=255"`
	Order        int    `json:"order"`
	IsFinal      bool   `json:"is_final"`
	RequiresNote bool   `json:"requires_note"`
}

// UpdateStatusRequest is a partial status update
type UpdateStatusRequest struct {
	Category     *string `json:"category" validate:"min=1"`
	Label        *string `json:"label" validate:"min=1,max=50"`
	Color        *string `json:"color" validate:"hexcolor"`
	Icon         *string `json:"icon" validate:"max=16"`
	Description  *string `json:"description" validate:"max=255"`
	Order        *int    `json:"order"`
	IsFinal      *bool   `json:"is_final"`
	RequiresNote *bool   `json:"requires_note"`
}

func parseCategory(raw string) (models.StatusCategory, error) {
	c := models.StatusCategory(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", apperr.Validation("Categoria %q nu este validă", raw)
	}
	return c, nil
}

// ListStatuses returns the catalog in display order
func (s *Service) ListStatuses(ctx context.Context, actor Actor) ([]*models.CustomStatus, error) {
	statuses, err := s.store.ListStatuses(ctx, actor.TenantID)
	if err != nil {
		return nil, storeErr(err, "Statusul")
	}
	return statuses, nil
}

// GroupedStatuses returns the catalog bucketed by category
func (s *Service) GroupedStatuses(ctx context.Context, actor Actor) ([]models.StatusGroup, error) {
	statuses, err := s.ListStatuses(ctx, actor)
	if err != nil {
		return nil, err
	}
	return models.GroupByCategory(statuses), nil
}

// CreateStatus adds a status to the catalog
func (s *Service) CreateStatus(ctx context.Context, actor Actor, req CreateStatusRequest) (*models.CustomStatus, error) {
	if err := s.requirePermission(ctx, actor, PermStatusesManage); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}

	status := &models.CustomStatus{
		TenantID:     actor.TenantID,
		Category:     category,
		Label:        strings.TrimSpace(req.Label),
		Color:        req.Color,
		Icon:         req.Icon,
		Description:  req.Description,
		Order:        req.Order,
		IsFinal:      req.IsFinal,
		RequiresNote: req.RequiresNote,
	}
	if status.Color == "" {
		status.Color = models.DefaultStatusColor
	}

	if err := s.store.CreateStatus(ctx, status); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, apperr.Conflict("Statusul %q există deja", status.Label)
		}
		return nil, storeErr(err, "Statusul")
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.StatusCreated,
		Category: "statuses",
		Message:  "Status creat: " + status.Label,
		Data:     models.Variables{"status_id": status.ID.String(), "category": string(status.Category)},
	})
	return status, nil
}

// UpdateStatus changes a status. A new label is carried over to every
// ticket holding the old one in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, req UpdateStatusRequest) (*models.CustomStatus, error) {
	if err := s.requirePermission(ctx, actor, PermStatusesManage); err != nil {
		return nil, err
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var status *models.CustomStatus
	var oldLabel string
	var relabeled int64
	err := s.inTx(ctx, func(tx storage.Store) error {
		var err error
		status, err = tx.GetStatus(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err, "Statusul")
		}
		oldLabel = status.Label

		if req.Category != nil {
			if status.Category, err = parseCategory(*req.Category); err != nil {
				return err
			}
		}
		if req.Label != nil {
			status.Label = strings.TrimSpace(*req.Label)
		}
		if req.Color != nil {
			status.Color = *req.Color
			if status.Color == "" {
				status.Color = models.DefaultStatusColor
			}
		}
		if req.Icon != nil {
			status.Icon = *req.Icon
		}
		if req.Description != nil {
			status.Description = *req.Description
		}
		if req.Order != nil {
			status.Order = *req.Order
		}
		if req.IsFinal != nil {
			status.IsFinal = *req.IsFinal
		}
		if req.RequiresNote != nil {
			status.RequiresNote = *req.RequiresNote
		}

		if err := tx.UpdateStatus(ctx, status); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Statusul %q există deja", status.Label)
			}
			return storeErr(err, "Statusul")
		}

		if status.Label != oldLabel {
			relabeled, err = tx.RelabelTickets(ctx, actor.TenantID, oldLabel, status.Label)
			if err != nil {
				return storeErr(err, "Statusul")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data := models.Variables{"status_id": status.ID.String()}
	if status.Label != oldLabel {
		data["old_label"] = oldLabel
		data["tickets_relabeled"] = relabeled
	}
	s.publish(ctx, actor, events.Event{
		Type:     events.StatusUpdated,
		Category: "statuses",
		Message:  "Status actualizat: " + status.Label,
		Data:     data,
	})
	return status, nil
}

// DeleteStatus removes a status that no ticket references
func (s *Service) DeleteStatus(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := s.requirePermission(ctx, actor, PermStatusesManage); err != nil {
		return err
	}

	var label string
	err := s.inTx(ctx, func(tx storage.Store) error {
		status, err := tx.GetStatus(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err, "Statusul")
		}
		label = status.Label

		tenantID := actor.TenantID
		inUse, err := tx.CountTickets(ctx, storage.TicketCountFilter{TenantID: &tenantID, Status: label})
		if err != nil {
			return storeErr(err, "Statusul")
		}
		if inUse > 0 {
			return apperr.Conflict("Statusul %q este folosit de %d fișe. Mutați fișele pe alt status înainte de ștergere.", label, inUse)
		}
		return storeErr(tx.DeleteStatus(ctx, actor.TenantID, id), "Statusul")
	})
	if err != nil {
		return err
	}

	s.publish(ctx, actor, events.Event{
		Type:     events.StatusDeleted,
		Category: "statuses",
		Message:  "Status șters: " + label,
		Data:     models.Variables{"status_id": id.String()},
	})
	return nil
}

// defaultStatus picks the status applied when intake names none: the first
// NOU status by order, else the first status of the catalog
func defaultStatus(statuses []*models.CustomStatus) *models.CustomStatus {
	if len(statuses) == 0 {
		return nil
	}
	sorted := make([]*models.CustomStatus, len(statuses))
	copy(sorted, statuses)
	models.SortStatuses(sorted)
	for _, st := range sorted {
		if st.Category == models.CategoryNew {
			return st
		}
	}
	return sorted[0]
}

func findStatus(statuses []*models.CustomStatus, label string) *models.CustomStatus {
	for _, st := range statuses {
		if st.Label == label {
			return st
		}
	}
	return nil
}
