package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

// AnnouncementRequest creates or replaces an announcement
type AnnouncementRequest struct {
	Title     string                  `json:"title" validate:"required,max=200"`
	Message   string                  `json:"message" validate:"required,max=2000"`
	Type      models.AnnouncementType `json:"type"`
	IsActive  *bool                   `json:"is_active"`
	ExpiresAt *time.Time              `json:"expires_at"`
}

func (req *AnnouncementRequest) apply(a *models.Announcement) error {
	if req.Type == "" {
		req.Type = models.AnnouncementInfo
	}
	if !req.Type.Valid() {
		return apperr.Validation("Tip de anunț necunoscut: %q", req.Type)
	}
	a.Title = strings.TrimSpace(req.Title)
	a.Message = strings.TrimSpace(req.Message)
	a.Type = req.Type
	a.ExpiresAt = req.ExpiresAt
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	return nil
}

// ListAnnouncements returns every announcement, newest first
func (s *Service) ListAnnouncements(ctx context.Context) ([]*models.Announcement, error) {
	list, err := s.store.ListAnnouncements(ctx)
	if err != nil {
		return nil, storeErr(err, "Anunțul")
	}
	if list == nil {
		list = []*models.Announcement{}
	}
	return list, nil
}

// ActiveAnnouncements returns the announcements visible now
func (s *Service) ActiveAnnouncements(ctx context.Context) ([]*models.Announcement, error) {
	list, err := s.ListAnnouncements(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	visible := make([]*models.Announcement, 0, len(list))
	for _, a := range list {
		if a.Visible(now) {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// CreateAnnouncement publishes a banner to every tenant
func (s *Service) CreateAnnouncement(ctx context.Context, actor Actor, req AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	a := &models.Announcement{IsActive: true}
	if err := req.apply(a); err != nil {
		return nil, err
	}
	if err := s.store.CreateAnnouncement(ctx, a); err != nil {
		return nil, storeErr(err, "Anunțul")
	}
	s.publishAnnouncement(ctx, actor, a, "create")
	return a, nil
}

// UpdateAnnouncement replaces an announcement
func (s *Service) UpdateAnnouncement(ctx context.Context, actor Actor, id uuid.UUID, req AnnouncementRequest) (*models.Announcement, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	a, err := s.store.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Anunțul")
	}
	if err := req.apply(a); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAnnouncement(ctx, a); err != nil {
		return nil, storeErr(err, "Anunțul")
	}
	s.publishAnnouncement(ctx, actor, a, "update")
	return a, nil
}

// DeleteAnnouncement removes an announcement
func (s *Service) DeleteAnnouncement(ctx context.Context, actor Actor, id uuid.UUID) error {
	a, err := s.store.GetAnnouncement(ctx, id)
	if err != nil {
		return storeErr(err, "Anunțul")
	}
	if err := s.store.DeleteAnnouncement(ctx, id); err != nil {
		return storeErr(err, "Anunțul")
	}
	s.publishAnnouncement(ctx, actor, a, "delete")
	return nil
}

func (s *Service) publishAnnouncement(ctx context.Context, actor Actor, a *models.Announcement, action string) {
	s.publish(ctx, actor, events.Event{
		Type:     events.AnnouncementChange,
		LogType:  models.LogTypeSystem,
		Category: "announcements",
		Message:  "Anunț " + action + ": " + a.Title,
		Data:     models.Variables{"announcement_id": a.ID.String(), "action": action},
	})
}
