package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fixgsm/fixgsm-server/internal/apperr"
	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
	"github.com/fixgsm/fixgsm-server/pkg/crypto"
)

// LoginRequest authenticates any principal
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the access token and the identity the UI caches
type LoginResponse struct {
	Token    string          `json:"token"`
	UserType models.UserType `json:"user_type"`
	TenantID *uuid.UUID      `json:"tenant_id,omitempty"`
	UserID   uuid.UUID       `json:"user_id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Role     string          `json:"role,omitempty"`
}

const invalidCredentials = "Email sau parolă incorectă"

// Login checks the credentials of an admin or tenant user. Admins are
// looked up first.
func (s *Service) Login(ctx context.Context, req LoginRequest, ip string) (*LoginResponse, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	resp, err := s.login(ctx, email, req.Password)
	if err != nil {
		s.metrics.AuthAttemptsTotal.WithLabelValues("unknown", "failure").Inc()
		if apperr.Is(err, apperr.KindUnauthorized) || apperr.Is(err, apperr.KindForbidden) {
			s.publish(ctx, Actor{Email: email, IP: ip}, events.Event{
				Type:     events.LoginFailed,
				LogType:  models.LogTypeSystem,
				Level:    models.LogLevelWarning,
				Category: "auth",
				Message:  "Autentificare eșuată pentru " + email,
			})
		}
		return nil, err
	}

	s.metrics.AuthAttemptsTotal.WithLabelValues(string(resp.UserType), "success").Inc()
	actor := Actor{UserID: resp.UserID, UserType: resp.UserType, Email: resp.Email, IP: ip}
	if resp.TenantID != nil {
		actor.TenantID = *resp.TenantID
	}
	s.publish(ctx, actor, events.Event{
		Type:     events.UserLoggedIn,
		Category: "auth",
		Message:  "Autentificare reușită: " + resp.Email,
		Data:     models.Variables{"user_type": string(resp.UserType)},
	})
	return resp, nil
}

func (s *Service) login(ctx context.Context, email, password string) (*LoginResponse, error) {
	admin, err := s.store.GetAdminByEmail(ctx, email)
	switch {
	case err == nil:
		if !crypto.VerifyPassword(password, admin.PasswordHash) {
			return nil, apperr.Unauthorized(invalidCredentials)
		}
		return s.issue(auth.ForAdmin(admin))
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storeErr(err, "Utilizatorul")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Unauthorized(invalidCredentials)
		}
		return nil, storeErr(err, "Utilizatorul")
	}
	if !crypto.VerifyPassword(password, user.PasswordHash) {
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("Contul de angajat este dezactivat")
	}
	return s.issue(auth.ForUser(user))
}

func (s *Service) issue(claims auth.Claims) (*LoginResponse, error) {
	token, err := s.jwt.GenerateToken(claims)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &LoginResponse{
		Token:    token,
		UserType: claims.UserType,
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     claims.Role,
	}, nil
}

// RegisterServiceRequest onboards a new repair shop
type RegisterServiceRequest struct {
	ServiceName string `json:"service_name" validate:"required,min=2,max=100"`
	OwnerName   string `json:"owner_name" validate:"required,min=2,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"max=30"`
	Password    string `json:"password" validate:"required,min=6"`
	Address     string `json:"address" validate:"max=255"`
}

// RegisterService creates a tenant on the trial plan together with its
// owner, first location, default status catalog and assistant config
func (s *Service) RegisterService(ctx context.Context, req RegisterServiceRequest, ip string) (*LoginResponse, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var tenant *models.Tenant
	var owner *models.User
	err = s.inTx(ctx, func(tx storage.Store) error {
		taken, err := emailTaken(ctx, tx, email)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("Email-ul %s este deja înregistrat", email)
		}

		settings, err := s.platformSettings(ctx, tx)
		if err != nil {
			return err
		}
		trialDays := s.cfg.Subscription.TrialDays
		if settings.DefaultTrialDays > 0 {
			trialDays = settings.DefaultTrialDays
		}
		plan, err := planFor(ctx, tx, s.cfg.Subscription.TrialPlan)
		if err != nil {
			return err
		}

		tenant = &models.Tenant{
			ServiceName:         strings.TrimSpace(req.ServiceName),
			OwnerName:           strings.TrimSpace(req.OwnerName),
			Email:               email,
			Phone:               strings.TrimSpace(req.Phone),
			SubscriptionStatus:  models.SubscriptionActive,
			SubscriptionPlan:    plan.Name,
			SubscriptionPrice:   plan.Price,
			SubscriptionEndDate: s.now().AddDate(0, 0, trialDays),
			IsTrial:             true,
			AIEnabled:           true,
		}
		if err := tx.CreateTenant(ctx, tenant); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Email-ul %s este deja înregistrat", email)
			}
			return storeErr(err, "Service-ul")
		}

		location := &models.Location{
			TenantID: tenant.ID,
			Name:     tenant.ServiceName,
			Address:  strings.TrimSpace(req.Address),
			Phone:    tenant.Phone,
		}
		if err := tx.CreateLocation(ctx, location); err != nil {
			return storeErr(err, "Locația")
		}

		owner = &models.User{
			TenantID:     tenant.ID,
			Name:         tenant.OwnerName,
			Email:        email,
			PasswordHash: hash,
			Role:         models.RoleOwner,
			LocationID:   &location.ID,
			IsOwner:      true,
			IsActive:     true,
		}
		if err := tx.CreateUser(ctx, owner); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return apperr.Conflict("Email-ul %s este deja înregistrat", email)
			}
			return storeErr(err, "Utilizatorul")
		}

		for _, status := range models.DefaultStatuses() {
			status.TenantID = tenant.ID
			if err := tx.CreateStatus(ctx, status); err != nil {
				return storeErr(err, "Statusul")
			}
		}

		return storeErr(tx.SaveAIConfig(ctx, &models.AIConfig{
			TenantID:    tenant.ID,
			Enabled:     true,
			Temperature: 0.7,
		}), "Configurația AI")
	})
	if err != nil {
		return nil, err
	}

	actor := Actor{UserID: owner.ID, TenantID: tenant.ID, UserType: models.UserTypeOwner, Email: email, IP: ip}
	s.publish(ctx, actor, events.Event{
		Type:     events.TenantRegistered,
		LogType:  models.LogTypeSystem,
		Category: "tenant",
		Message:  "Service nou înregistrat: " + tenant.ServiceName,
		Data:     models.Variables{"plan": tenant.SubscriptionPlan},
	})
	return s.issue(auth.ForUser(owner))
}

// platformSettings returns the stored settings or the defaults
func (s *Service) platformSettings(ctx context.Context, store storage.Store) (*models.PlatformSettings, error) {
	settings, err := store.GetPlatformSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return defaultPlatformSettings(s.cfg.Subscription.TrialDays), nil
	}
	if err != nil {
		return nil, storeErr(err, "Setările")
	}
	return settings, nil
}

func defaultPlatformSettings(trialDays int) *models.PlatformSettings {
	return &models.PlatformSettings{
		AIGloballyEnabled: true,
		DefaultTrialDays:  trialDays,
	}
}

// EnsureAdmin creates a platform admin unless one with the email exists.
// It reports whether an admin was created.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.store.GetAdminByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, storeErr(err, "Administratorul")
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return false, apperr.Validation("%s", err.Error())
	}
	admin := &models.Admin{Name: name, Email: email, PasswordHash: hash}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return false, nil
		}
		return false, storeErr(err, "Administratorul")
	}
	return true, nil
}

// SeedPlans inserts the default plan catalog when no plan exists yet
func (s *Service) SeedPlans(ctx context.Context) (int, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return 0, storeErr(err, "Planul")
	}
	if len(plans) > 0 {
		return 0, nil
	}
	created := 0
	for _, p := range DefaultPlans() {
		if err := s.store.CreatePlan(ctx, p); err != nil {
			return created, storeErr(err, "Planul")
		}
		created++
	}
	return created, nil
}

// Bootstrap prepares a fresh store: plan catalog, platform settings and
// the configured first admin
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.Subscription.SeedPlans {
		n, err := s.SeedPlans(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info().Int("plans", n).Msg("Seeded subscription plans")
		}
	}

	if _, err := s.store.GetPlatformSettings(ctx); errors.Is(err, storage.ErrNotFound) {
		if err := s.store.SavePlatformSettings(ctx, defaultPlatformSettings(s.cfg.Subscription.TrialDays)); err != nil {
			return storeErr(err, "Setările")
		}
	} else if err != nil {
		return storeErr(err, "Setările")
	}

	b := s.cfg.Bootstrap
	if b.AdminEmail == "" {
		return nil
	}
	created, err := s.EnsureAdmin(ctx, b.AdminName, b.AdminEmail, b.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("email", b.AdminEmail).Msg("Created bootstrap admin")
	}
	return nil
}
