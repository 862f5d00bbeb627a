// Package service implements the FixGSM domain operations on top of a
// storage.Store. Handlers translate HTTP to these calls; every method takes
// the acting principal explicitly.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/ai"
	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/backup"
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/metrics"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
	"github.com/fixgsm/fixgsm-server/internal/validation"
)

// Options wires the service dependencies. Store, Config and JWT are
// required; the rest fall back to in-process defaults.
type Options struct {
	Store   storage.Store
	Config  *config.Config
	JWT     *auth.JWTManager
	Bus     events.Bus
	AI      ai.Provider
	Backups *backup.Manager
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service holds every domain operation
type Service struct {
	store     storage.Store
	cfg       *config.Config
	jwt       *auth.JWTManager
	bus       events.Bus
	ai        ai.Provider
	backups   *backup.Manager
	metrics   *metrics.Metrics
	validator *validation.Validator
	workflow  *Policy
	now       func() time.Time
	startedAt time.Time
}

// New creates the service
func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		cfg:       opts.Config,
		jwt:       opts.JWT,
		bus:       opts.Bus,
		ai:        opts.AI,
		backups:   opts.Backups,
		metrics:   opts.Metrics,
		validator: validation.NewValidator(),
		workflow:  NewPolicy(opts.Config.Workflow),
		now:       opts.Now,
	}
	if s.bus == nil {
		s.bus = events.NewLocalBus()
	}
	if s.ai == nil {
		s.ai = ai.Disabled{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New(opts.Config.Metrics.Namespace, nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.startedAt = s.now()
	return s
}

// Actor is the authenticated principal behind a call
type Actor struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	UserType models.UserType
	Role     string
	Name     string
	Email    string
	IP       string
}

// ActorFromClaims builds the actor of a request
func ActorFromClaims(c *auth.Claims, ip string) Actor {
	a := Actor{
		UserID:   c.UserID,
		UserType: c.UserType,
		Role:     c.Role,
		Name:     c.Name,
		Email:    c.Email,
		IP:       ip,
	}
	if c.TenantID != nil {
		a.TenantID = *c.TenantID
	}
	return a
}

// IsAdmin reports whether the actor is a platform admin
func (a Actor) IsAdmin() bool {
	return a.UserType == models.UserTypeAdmin
}

// IsOwner reports whether the actor owns its tenant
func (a Actor) IsOwner() bool {
	return a.UserType == models.UserTypeOwner
}

// validate runs struct tag validation and returns a validation error
func (s *Service) validate(req interface{}) error {
	if err := s.validator.Validate(req); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

// inTx runs fn inside a store transaction
func (s *Service) inTx(ctx context.Context, fn func(tx storage.Store) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return apperr.Internal(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// storeErr translates a storage error. what names the entity in not-found
// details.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound(what)
	case errors.As(err, new(*apperr.Error)):
		return err
	default:
		return apperr.Internal(err)
	}
}

// publish sends an event after the write it describes has committed.
// Failures are logged, never returned.
func (s *Service) publish(ctx context.Context, actor Actor, e events.Event) {
	if e.TenantID == nil && actor.TenantID != uuid.Nil {
		tenantID := actor.TenantID
		e.TenantID = &tenantID
	}
	if e.ActorEmail == "" {
		e.ActorEmail = actor.Email
	}
	if e.IPAddress == "" {
		e.IPAddress = actor.IP
	}

	err := s.bus.Publish(ctx, e)
	s.metrics.EventsPublishedTotal.WithLabelValues(e.Type, metrics.Result(err)).Inc()
	if err != nil {
		log.Error().Err(err).Str("type", e.Type).Msg("Failed to publish event")
	}
}

// parseID parses a uuid path or body parameter
func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.NotFound(what)
	}
	return id, nil
}
